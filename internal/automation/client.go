package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
)

const (
	DefaultBaseURL = "https://server.smithery.ai/@dmaznest/browsercat-mcp-server"
	DefaultTimeout = 30 * time.Second

	defaultImageRef     = "/tmp/heatmap.png"
	maxErrorBodyBytes   = 64 * 1024
	maxSuccessBodyBytes = 8 * 1024 * 1024
)

// Remote tool names exposed by the automation service.
const (
	ToolNavigate   = "browsercat_navigate"
	ToolClick      = "browsercat_click"
	ToolEvaluate   = "browsercat_evaluate"
	ToolScreenshot = "browsercat_screenshot"
)

// Config configures a Client. Zero values select the defaults.
type Config struct {
	BaseURL string
	APIKey  string
	PageURL string
	// Timeout bounds each step call independently.
	Timeout time.Duration
	// Settle is how long the evaluate step waits for the chart to redraw. It
	// is lowered when the select script would not fit in Timeout.
	Settle     time.Duration
	HTTPClient *http.Client
}

// Client drives the remote browser automation service through the fixed
// navigate, click, evaluate, screenshot sequence. It makes network calls only.
type Client struct {
	baseURL string
	apiKey  string
	pageURL string
	timeout time.Duration
	settle  time.Duration
	http    *http.Client
}

type toolRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		pageURL: strings.TrimSpace(cfg.PageURL),
		timeout: cfg.Timeout,
		settle:  cfg.Settle,
		http:    cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.pageURL == "" {
		c.pageURL = DefaultPageURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	c.settle = SettleFor(c.timeout, c.settle)
	if cfg.Settle > c.settle {
		slog.Warn("heatmap settle lowered to fit the step timeout", "configured", cfg.Settle, "settle", c.settle, "timeout", c.timeout)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.apiKey == "" {
		slog.Warn("no automation API key configured; captures will report a missing credential")
	}
	return c
}

// Settle returns the redraw wait the evaluate step uses.
func (c *Client) Settle() time.Duration { return c.settle }

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool { return c.apiKey != "" }

// Capture runs the four steps in order and stops at the first failure. A
// missing credential short-circuits before any call is made.
func (c *Client) Capture(ctx context.Context, req heatmap.Request) heatmap.Outcome {
	if c.apiKey == "" {
		return heatmap.Failure(heatmap.ErrMissingCredential)
	}

	slog.Debug("automation capture start", "symbol", req.Symbol(), "time_period", req.Period(), "base_url", c.baseURL)

	if _, err := c.Navigate(ctx, c.pageURL); err != nil {
		return heatmap.Failure(err)
	}
	if _, err := c.Click(ctx, PeriodSelector); err != nil {
		return heatmap.Failure(err)
	}
	if _, err := c.Evaluate(ctx, SelectScript(req, c.settle)); err != nil {
		return heatmap.Failure(err)
	}
	raw, err := c.Screenshot(ctx, ScreenshotName(req), HeatmapSelector, ScreenshotWidth, ScreenshotHeight)
	if err != nil {
		return heatmap.Failure(err)
	}
	return heatmap.Success(imageRef(raw), raw)
}

func (c *Client) Navigate(ctx context.Context, url string) (json.RawMessage, error) {
	return c.call(ctx, heatmap.StepNavigate, ToolNavigate, map[string]any{"url": url})
}

func (c *Client) Click(ctx context.Context, selector string) (json.RawMessage, error) {
	return c.call(ctx, heatmap.StepClick, ToolClick, map[string]any{"selector": selector})
}

func (c *Client) Evaluate(ctx context.Context, script string) (json.RawMessage, error) {
	return c.call(ctx, heatmap.StepEvaluate, ToolEvaluate, map[string]any{"script": script})
}

func (c *Client) Screenshot(ctx context.Context, name, selector string, width, height int) (json.RawMessage, error) {
	args := map[string]any{"name": name, "width": width, "height": height}
	if selector != "" {
		args["selector"] = selector
	}
	return c.call(ctx, heatmap.StepScreenshot, ToolScreenshot, args)
}

// call issues one tool request bounded by the per-step timeout. Every error
// it returns is a *heatmap.StepError attributed to step.
func (c *Client) call(ctx context.Context, step heatmap.Step, tool string, args map[string]any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeCanceled, Message: "capture canceled before step", Cause: err}}
	}

	payload, err := json.Marshal(toolRequest{Tool: tool, Arguments: args})
	if err != nil {
		return nil, &heatmap.StepError{Step: step, Cause: fmt.Errorf("encode %s request: %w", tool, err)}
	}

	stepCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(stepCtx, http.MethodPost, c.baseURL+"/tools/"+tool, bytes.NewReader(payload))
	if err != nil {
		return nil, &heatmap.StepError{Step: step, Cause: fmt.Errorf("build %s request: %w", tool, err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, stepCtx, step, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("automation response close failed", "step", step, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Warn("automation step rejected", "step", step, "tool", tool, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
		return nil, &heatmap.StepError{
			Step:         step,
			StatusCode:   resp.StatusCode,
			Response:     body,
			ResponseText: strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSuccessBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, stepCtx, step, err)
	}
	if !json.Valid(body) {
		return nil, &heatmap.StepError{
			Step:         step,
			Response:     body,
			ResponseText: truncate(string(body), 512),
			Cause:        &heatmap.CodedError{Code: heatmap.CodeStepFailure, Message: "malformed response body from " + tool},
		}
	}
	if msg := embeddedError(body); msg != "" {
		return nil, &heatmap.StepError{
			Step:     step,
			Response: body,
			Cause:    &heatmap.CodedError{Code: heatmap.CodeStepFailure, Message: msg},
		}
	}

	slog.Debug("automation step ok", "step", step, "tool", tool, "duration_ms", time.Since(start).Milliseconds())
	return json.RawMessage(body), nil
}

func (c *Client) transportError(parent, stepCtx context.Context, step heatmap.Step, err error) error {
	switch {
	case parent.Err() != nil:
		return &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeCanceled, Message: "capture canceled", Cause: parent.Err()}}
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		slog.Warn("automation step timed out", "step", step, "timeout", c.timeout)
		return &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeStepTimeout, Message: fmt.Sprintf("step timed out after %s", c.timeout), Cause: context.DeadlineExceeded}}
	default:
		return &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeStepTransport, Message: "automation service unreachable", Cause: err}}
	}
}

// embeddedError extracts an "error" field from a 2xx JSON object body.
func embeddedError(body []byte) string {
	var probe struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Error == nil {
		return ""
	}
	switch v := probe.Error.(type) {
	case string:
		return v
	case bool:
		if v {
			return "automation service reported an error"
		}
		return ""
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// imageRef pulls the artifact reference out of a screenshot result.
func imageRef(raw json.RawMessage) string {
	var res struct {
		ScreenshotPath string `json:"screenshot_path"`
		Path           string `json:"path"`
	}
	if err := json.Unmarshal(raw, &res); err == nil {
		if res.ScreenshotPath != "" {
			return res.ScreenshotPath
		}
		if res.Path != "" {
			return res.Path
		}
	}
	return defaultImageRef
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
