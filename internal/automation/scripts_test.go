package automation

import (
	"context"
	"fmt"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

var settleMsRe = regexp.MustCompile(`var settleMs = (\d+);`)

func scriptSettle(t *testing.T, script string) time.Duration {
	t.Helper()
	m := settleMsRe.FindStringSubmatch(script)
	if m == nil {
		t.Fatalf("script has no settleMs declaration")
	}
	ms, err := strconv.Atoi(m[1])
	if err != nil {
		t.Fatalf("settleMs %q: %v", m[1], err)
	}
	return time.Duration(ms) * time.Millisecond
}

func TestSettleForFitsStepTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		settle  time.Duration
	}{
		{time.Second, DefaultSettle},
		{3 * time.Second, DefaultSettle},
		{10 * time.Second, DefaultSettle},
		{11 * time.Second, 8 * time.Second},
		{30 * time.Second, DefaultSettle},
		{2 * time.Minute, 20 * time.Second},
	}
	for _, tt := range tests {
		got := SettleFor(tt.timeout, tt.settle)
		if got <= 0 || got > tt.settle {
			t.Errorf("SettleFor(%s, %s) = %s", tt.timeout, tt.settle, got)
		}
		if budget := ScriptBudget(got); budget >= tt.timeout {
			t.Errorf("timeout %s: budget %s for settle %s does not fit", tt.timeout, budget, got)
		}
	}
}

func TestSettleForKeepsFittingValues(t *testing.T) {
	if got := SettleFor(30*time.Second, 0); got != DefaultSettle {
		t.Fatalf("SettleFor(30s, 0) = %s; want %s", got, DefaultSettle)
	}
	if got := SettleFor(30*time.Second, time.Millisecond); got != time.Millisecond {
		t.Fatalf("SettleFor(30s, 1ms) = %s; want 1ms", got)
	}
}

func TestSelectScriptWaitsDeriveFromSettle(t *testing.T) {
	script := SelectScript(mustRequest(t, "ETH", "24h"), 400*time.Millisecond)

	if got := scriptSettle(t, script); got != 400*time.Millisecond {
		t.Fatalf("settleMs = %s", got)
	}
	for _, fixed := range []string{"10000", "5000", "_sleep(500)", "_sleep(250)"} {
		if strings.Contains(script, fixed) {
			t.Errorf("script still carries fixed wait %q", fixed)
		}
	}
	if !strings.Contains(script, fmt.Sprintf("var pollMs = %d;", pollInterval.Milliseconds())) {
		t.Error("script missing poll interval")
	}
}

func TestShortTimeoutLowersEvaluateSettle(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Timeout: 3 * time.Second})
	if ScriptBudget(c.Settle()) >= 3*time.Second {
		t.Fatalf("settle %s leaves budget %s over a 3s step timeout", c.Settle(), ScriptBudget(c.Settle()))
	}

	if out := c.Capture(context.Background(), mustRequest(t, "ETH", "24h")); !out.OK() {
		t.Fatalf("Capture() error = %v", out.Err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	for _, call := range svc.calls {
		if call.Tool != ToolEvaluate {
			continue
		}
		script, _ := call.Args["script"].(string)
		if got := scriptSettle(t, script); got != c.Settle() {
			t.Fatalf("evaluate settleMs = %s; want %s", got, c.Settle())
		}
		return
	}
	t.Fatal("no evaluate call recorded")
}
