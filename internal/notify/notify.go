package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
)

const sendTimeout = 5 * time.Second

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return send(ctx, client, endpoint, "", message)
}

func send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
		req.Header.Set("Tags", "warning")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Notifier posts capture degradation alerts to an ntfy topic.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func NewNotifier(endpoint string, client *http.Client) *Notifier {
	return &Notifier{endpoint: strings.TrimSpace(endpoint), client: client}
}

// CaptureFailed sends one alert describing a failed capture.
func (n *Notifier) CaptureFailed(ctx context.Context, env heatmap.Envelope) error {
	title := fmt.Sprintf("Heatmap capture failed: %s %s", env.Symbol, env.TimePeriod)
	return send(ctx, n.client, n.endpoint, title, FailureMessage(env))
}

// Hook returns an orchestrator failure callback that sends alerts in the
// background so a slow ntfy server never delays the caller.
func (n *Notifier) Hook() func(context.Context, heatmap.Envelope) {
	return func(_ context.Context, env heatmap.Envelope) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := n.CaptureFailed(ctx, env); err != nil {
				slog.Warn("capture failure notification failed", "capture_id", env.CaptureID, "error", err)
			}
		}()
	}
}

// FailureMessage renders the alert body for a failed capture.
func FailureMessage(env heatmap.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "capture %s for %s (%s) failed", env.CaptureID, env.Symbol, env.TimePeriod)
	if d := env.Primary.Detail(); d != nil {
		if d.Step != heatmap.StepNone {
			fmt.Fprintf(&b, " at %s", d.Step)
		}
		fmt.Fprintf(&b, ": %s [%s]", d.Error, d.Code)
	}
	if env.FallbackProvided {
		b.WriteString("\nsimulated fallback served")
	} else {
		b.WriteString("\nno fallback served")
	}
	return b.String()
}
