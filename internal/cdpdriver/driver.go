// Package cdpdriver runs the heatmap capture against a self-hosted Chromium
// over the DevTools protocol instead of the hosted automation service.
package cdpdriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/dgnsrekt/liqmap_bridge/internal/automation"
	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/snapshot"
)

const defaultTimeout = 30 * time.Second

// ArtifactStore persists screenshot bytes.
type ArtifactStore interface {
	Save(meta snapshot.SnapshotMeta, imageData []byte) error
	ImagePath(meta snapshot.SnapshotMeta) string
}

type Config struct {
	// CDPURL is the browser's DevTools endpoint, e.g. http://127.0.0.1:9222.
	CDPURL  string
	PageURL string
	Timeout time.Duration
	Settle  time.Duration
}

// Driver implements heatmap.Automator with chromedp. Each capture opens a
// fresh tab on the remote browser and closes it afterwards.
type Driver struct {
	cdpURL  string
	pageURL string
	timeout time.Duration
	settle  time.Duration
	store   ArtifactStore
	now     func() time.Time
}

func New(cfg Config, store ArtifactStore) *Driver {
	d := &Driver{
		cdpURL:  strings.TrimSpace(cfg.CDPURL),
		pageURL: strings.TrimSpace(cfg.PageURL),
		timeout: cfg.Timeout,
		settle:  cfg.Settle,
		store:   store,
		now:     time.Now,
	}
	if d.pageURL == "" {
		d.pageURL = automation.DefaultPageURL
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}
	d.settle = automation.SettleFor(d.timeout, d.settle)
	if cfg.Settle > d.settle {
		slog.Warn("heatmap settle lowered to fit the step timeout", "configured", cfg.Settle, "settle", d.settle, "timeout", d.timeout)
	}
	return d
}

// Capture runs navigate, click, evaluate and screenshot in one tab. The
// screenshot is written to the artifact store and its path is the image ref.
func (d *Driver) Capture(ctx context.Context, req heatmap.Request) heatmap.Outcome {
	if d.cdpURL == "" {
		return heatmap.Failure(&heatmap.CodedError{Code: heatmap.CodeMissingCredential, Message: "CDP endpoint is not configured"})
	}

	// The session as a whole is bounded so a hung browser attach cannot
	// outlive the four step budgets.
	sessionCtx, cancelSession := context.WithTimeout(ctx, d.timeout*time.Duration(len(heatmap.Steps)))
	defer cancelSession()

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(sessionCtx, d.cdpURL)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	slog.Debug("cdp capture start", "symbol", req.Symbol(), "time_period", req.Period(), "cdp_url", d.cdpURL)

	// First Run attaches the tab; it must not carry a step deadline or the
	// tab would close when that deadline fires.
	if err := chromedp.Run(tabCtx); err != nil {
		return heatmap.Failure(d.stepError(ctx, nil, heatmap.StepNavigate, err))
	}

	if err := d.run(ctx, tabCtx, heatmap.StepNavigate,
		chromedp.EmulateViewport(automation.ScreenshotWidth, automation.ScreenshotHeight),
		chromedp.Navigate(d.pageURL),
		chromedp.WaitVisible(automation.PeriodSelector, chromedp.ByQuery),
	); err != nil {
		return heatmap.Failure(err)
	}

	if err := d.run(ctx, tabCtx, heatmap.StepClick,
		chromedp.Click(automation.PeriodSelector, chromedp.ByQuery),
	); err != nil {
		return heatmap.Failure(err)
	}

	var selected json.RawMessage
	script := automation.SelectScript(req, d.settle)
	if err := d.run(ctx, tabCtx, heatmap.StepEvaluate,
		chromedp.Evaluate(script, &selected, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	); err != nil {
		return heatmap.Failure(err)
	}

	var png []byte
	if err := d.run(ctx, tabCtx, heatmap.StepScreenshot,
		chromedp.Screenshot(automation.HeatmapSelector, &png, chromedp.ByQuery),
	); err != nil {
		return heatmap.Failure(err)
	}

	meta := snapshot.SnapshotMeta{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol(),
		TimePeriod: string(req.Period()),
		Format:     "png",
		Width:      automation.ScreenshotWidth,
		Height:     automation.ScreenshotHeight,
		CreatedAt:  d.now().UTC(),
		Source:     "cdp",
	}
	if err := d.store.Save(meta, png); err != nil {
		return heatmap.Failure(&heatmap.StepError{Step: heatmap.StepScreenshot, Cause: fmt.Errorf("store screenshot: %w", err)})
	}

	path := d.store.ImagePath(meta)
	raw, err := json.Marshal(map[string]any{
		"screenshot_path": path,
		"snapshot_id":     meta.ID,
		"name":            automation.ScreenshotName(req),
		"selection":       selected,
	})
	if err != nil {
		return heatmap.Failure(&heatmap.StepError{Step: heatmap.StepScreenshot, Cause: err})
	}
	return heatmap.Success(path, raw)
}

func (d *Driver) run(parent, tabCtx context.Context, step heatmap.Step, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(tabCtx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return d.stepError(parent, stepCtx, step, err)
	}
	slog.Debug("cdp step ok", "step", step, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (d *Driver) stepError(parent, stepCtx context.Context, step heatmap.Step, err error) error {
	switch {
	case parent.Err() != nil:
		return &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeCanceled, Message: "capture canceled", Cause: parent.Err()}}
	case stepCtx != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("cdp step timed out", "step", step, "timeout", d.timeout)
		return &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeStepTimeout, Message: fmt.Sprintf("step timed out after %s", d.timeout), Cause: context.DeadlineExceeded}}
	default:
		slog.Warn("cdp step failed", "step", step, "error", err)
		return &heatmap.StepError{Step: step, Cause: &heatmap.CodedError{Code: heatmap.CodeStepTransport, Message: "browser step failed", Cause: err}}
	}
}
