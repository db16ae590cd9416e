package cdpdriver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dgnsrekt/liqmap_bridge/internal/automation"
	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/snapshot"
)

type symbolSet map[string]bool

func (s symbolSet) Known(sym string) bool { return s[sym] }

func mustRequest(t *testing.T) heatmap.Request {
	t.Helper()
	req, err := heatmap.NewRequest(symbolSet{"BTC": true}, "BTC", "24h", heatmap.SimulateUnset)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func newStore(t *testing.T) *snapshot.Store {
	t.Helper()
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func TestCaptureWithoutEndpointIsMissingCredential(t *testing.T) {
	d := New(Config{}, newStore(t))

	out := d.Capture(context.Background(), mustRequest(t))
	if out.OK() {
		t.Fatal("Capture() succeeded without an endpoint")
	}
	if out.FailedStep() != heatmap.StepNone {
		t.Fatalf("FailedStep() = %q; want none", out.FailedStep())
	}
	if got := out.Detail().Code; got != heatmap.CodeMissingCredential {
		t.Fatalf("code = %q; want %q", got, heatmap.CodeMissingCredential)
	}
}

func TestCaptureUnreachableBrowserFailsAtNavigate(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	d := New(Config{CDPURL: "ws://" + addr + "/devtools/browser/none", Timeout: 2 * time.Second}, newStore(t))

	out := d.Capture(context.Background(), mustRequest(t))
	if out.OK() {
		t.Fatal("Capture() succeeded against a closed port")
	}
	if out.FailedStep() != heatmap.StepNavigate {
		t.Fatalf("FailedStep() = %q; want navigate", out.FailedStep())
	}
	var stepErr *heatmap.StepError
	if !errors.As(out.Err, &stepErr) {
		t.Fatalf("error %T is not a StepError", out.Err)
	}
	if stepErr.StatusCode != 0 {
		t.Fatalf("StatusCode = %d; want 0", stepErr.StatusCode)
	}
}

func TestCaptureCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(Config{CDPURL: "ws://127.0.0.1:1/devtools/browser/none"}, newStore(t))
	out := d.Capture(ctx, mustRequest(t))
	if out.OK() {
		t.Fatal("Capture() succeeded with canceled context")
	}
	if got := out.Detail().Code; got != heatmap.CodeCanceled {
		t.Fatalf("code = %q; want %q", got, heatmap.CodeCanceled)
	}
}

func TestNewDefaults(t *testing.T) {
	d := New(Config{CDPURL: " http://127.0.0.1:9222 "}, nil)
	if d.cdpURL != "http://127.0.0.1:9222" {
		t.Fatalf("cdpURL = %q", d.cdpURL)
	}
	if d.timeout != defaultTimeout {
		t.Fatalf("timeout = %s", d.timeout)
	}
	if d.pageURL == "" {
		t.Fatal("pageURL left empty")
	}
}

func TestNewLowersSettleToFitTimeout(t *testing.T) {
	d := New(Config{CDPURL: "http://127.0.0.1:9222", Timeout: 2 * time.Second, Settle: 5 * time.Second}, nil)
	if automation.ScriptBudget(d.settle) >= d.timeout {
		t.Fatalf("settle %s does not fit step timeout %s", d.settle, d.timeout)
	}
}
