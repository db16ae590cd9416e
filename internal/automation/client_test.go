package automation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/symbols"
)

type recordedCall struct {
	Path   string
	Auth   string
	Tool   string
	Args   map[string]any
	Header http.Header
}

type fakeService struct {
	mu      sync.Mutex
	calls   []recordedCall
	respond func(tool string) (int, string)
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		var req toolRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Tool: req.Tool, Args: req.Arguments, Header: r.Header.Clone()})
		f.mu.Unlock()

		status, resp := http.StatusOK, `{"ok":true}`
		if f.respond != nil {
			status, resp = f.respond(req.Tool)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	})
}

func (f *fakeService) tools() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Tool)
	}
	return out
}

func mustRequest(t *testing.T, symbol, period string) heatmap.Request {
	t.Helper()
	req, err := heatmap.NewRequest(symbols.Default(), symbol, period, heatmap.SimulateUnset)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func newTestClient(srv *httptest.Server, apiKey string, timeout time.Duration) *Client {
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: apiKey, Timeout: timeout, Settle: time.Millisecond})
}

func TestCaptureRunsStepsInOrder(t *testing.T) {
	svc := &fakeService{respond: func(tool string) (int, string) {
		if tool == ToolScreenshot {
			return http.StatusOK, `{"screenshot_path":"/shots/eth.png","width":1200}`
		}
		return http.StatusOK, `{"result":true}`
	}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	out := newTestClient(srv, "secret", time.Second).Capture(context.Background(), mustRequest(t, "eth", "12h"))
	if !out.OK() {
		t.Fatalf("Capture() failed: %v", out.Err)
	}
	if out.ImageRef != "/shots/eth.png" {
		t.Fatalf("image ref = %q; want /shots/eth.png", out.ImageRef)
	}
	if !strings.Contains(string(out.Raw), `"width":1200`) {
		t.Fatalf("raw result = %s", out.Raw)
	}

	want := []string{ToolNavigate, ToolClick, ToolEvaluate, ToolScreenshot}
	if got := svc.tools(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("tools = %v; want %v", got, want)
	}

	calls := svc.calls
	if calls[0].Path != "/tools/"+ToolNavigate {
		t.Fatalf("path = %q", calls[0].Path)
	}
	if calls[0].Auth != "Bearer secret" {
		t.Fatalf("authorization = %q", calls[0].Auth)
	}
	if calls[0].Header.Get("Content-Type") != "application/json" {
		t.Fatalf("content-type = %q", calls[0].Header.Get("Content-Type"))
	}
	if calls[0].Args["url"] != DefaultPageURL {
		t.Fatalf("navigate url = %v", calls[0].Args["url"])
	}
	if calls[1].Args["selector"] != PeriodSelector {
		t.Fatalf("click selector = %v", calls[1].Args["selector"])
	}
	script, _ := calls[2].Args["script"].(string)
	if !strings.Contains(script, `"ETH"`) || !strings.Contains(script, `"12 hour"`) {
		t.Fatalf("evaluate script does not carry symbol and period")
	}
	shot := calls[3].Args
	if shot["name"] != "eth_heatmap_12_hour" || shot["selector"] != HeatmapSelector {
		t.Fatalf("screenshot args = %v", shot)
	}
	if shot["width"] != float64(ScreenshotWidth) || shot["height"] != float64(ScreenshotHeight) {
		t.Fatalf("screenshot size = %vx%v", shot["width"], shot["height"])
	}
}

func TestCaptureImageRefFallbacks(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"path":"/tmp/alt.png"}`, "/tmp/alt.png"},
		{`{"screenshot_path":"/a.png","path":"/b.png"}`, "/a.png"},
		{`{}`, "/tmp/heatmap.png"},
		{`[1,2]`, "/tmp/heatmap.png"},
	}
	for _, tt := range tests {
		svc := &fakeService{respond: func(tool string) (int, string) {
			if tool == ToolScreenshot {
				return http.StatusOK, tt.body
			}
			return http.StatusOK, `{}`
		}}
		srv := httptest.NewServer(svc.handler(t))
		out := newTestClient(srv, "k", time.Second).Capture(context.Background(), mustRequest(t, "BTC", ""))
		srv.Close()
		if !out.OK() || out.ImageRef != tt.want {
			t.Fatalf("body %s: image ref = %q err = %v; want %q", tt.body, out.ImageRef, out.Err, tt.want)
		}
	}
}

func TestCaptureMissingCredentialMakesNoCalls(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	out := newTestClient(srv, "  ", time.Second).Capture(context.Background(), mustRequest(t, "BTC", "24h"))
	if out.OK() {
		t.Fatal("Capture() succeeded without credential")
	}
	if !errors.Is(out.Err, heatmap.ErrMissingCredential) {
		t.Fatalf("error = %v; want ErrMissingCredential", out.Err)
	}
	if out.FailedStep() != heatmap.StepNone {
		t.Fatalf("failed step = %q; want none", out.FailedStep())
	}
	if n := len(svc.tools()); n != 0 {
		t.Fatalf("calls = %d; want 0", n)
	}
}

func TestCaptureAbortsOnFirstFailedStep(t *testing.T) {
	for _, failing := range []string{ToolNavigate, ToolClick, ToolEvaluate, ToolScreenshot} {
		t.Run(failing, func(t *testing.T) {
			svc := &fakeService{respond: func(tool string) (int, string) {
				if tool == failing {
					return http.StatusUnauthorized, `{"message":"bad key"}`
				}
				return http.StatusOK, `{}`
			}}
			srv := httptest.NewServer(svc.handler(t))
			defer srv.Close()

			out := newTestClient(srv, "k", time.Second).Capture(context.Background(), mustRequest(t, "BTC", "24h"))
			if out.OK() {
				t.Fatal("Capture() succeeded")
			}
			tools := svc.tools()
			if tools[len(tools)-1] != failing {
				t.Fatalf("last call = %q; want %q (no steps after failure)", tools[len(tools)-1], failing)
			}
			if n := strings.Count(strings.Join(tools, ","), failing); n != 1 {
				t.Fatalf("%s called %d times; want exactly once (no retry)", failing, n)
			}

			d := out.Detail()
			if d.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d; want 401", d.StatusCode)
			}
			if string(d.Response) != `{"message":"bad key"}` {
				t.Fatalf("response = %s", d.Response)
			}
			if d.Code != heatmap.CodeStepFailure {
				t.Fatalf("code = %q", d.Code)
			}
		})
	}
}

func TestCaptureScreenshotUnauthorized(t *testing.T) {
	svc := &fakeService{respond: func(tool string) (int, string) {
		if tool == ToolScreenshot {
			return http.StatusUnauthorized, "unauthorized"
		}
		return http.StatusOK, `{}`
	}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	out := newTestClient(srv, "k", time.Second).Capture(context.Background(), mustRequest(t, "BTC", "24 hour"))
	if out.FailedStep() != heatmap.StepScreenshot {
		t.Fatalf("failed step = %q; want screenshot", out.FailedStep())
	}
	d := out.Detail()
	if d.ResponseText != "unauthorized" || d.Response != nil {
		t.Fatalf("detail = %+v", d)
	}
	if !strings.Contains(d.Error, "401") {
		t.Fatalf("error = %q; want to mention 401", d.Error)
	}
}

func TestCaptureStepTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	out := newTestClient(srv, "k", 50*time.Millisecond).Capture(context.Background(), mustRequest(t, "DOGE", "24h"))
	if out.FailedStep() != heatmap.StepNavigate {
		t.Fatalf("failed step = %q; want navigate", out.FailedStep())
	}
	if d := out.Detail(); d.Code != heatmap.CodeStepTimeout {
		t.Fatalf("code = %q; want %q", d.Code, heatmap.CodeStepTimeout)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("error %v does not wrap deadline", out.Err)
	}
}

func TestCaptureMalformedBody(t *testing.T) {
	svc := &fakeService{respond: func(tool string) (int, string) {
		if tool == ToolClick {
			return http.StatusOK, "<html>gateway</html>"
		}
		return http.StatusOK, `{}`
	}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	out := newTestClient(srv, "k", time.Second).Capture(context.Background(), mustRequest(t, "BTC", "24h"))
	if out.FailedStep() != heatmap.StepClick {
		t.Fatalf("failed step = %q; want click", out.FailedStep())
	}
	d := out.Detail()
	if d.Code != heatmap.CodeStepFailure || !strings.Contains(d.Error, "malformed") {
		t.Fatalf("detail = %+v", d)
	}
	if got := svc.tools(); len(got) != 2 {
		t.Fatalf("calls = %v; want stop after click", got)
	}
}

func TestCaptureEmbeddedErrorInSuccessBody(t *testing.T) {
	svc := &fakeService{respond: func(tool string) (int, string) {
		if tool == ToolEvaluate {
			return http.StatusOK, `{"error":"script threw"}`
		}
		return http.StatusOK, `{}`
	}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	out := newTestClient(srv, "k", time.Second).Capture(context.Background(), mustRequest(t, "BTC", "24h"))
	if out.FailedStep() != heatmap.StepEvaluate {
		t.Fatalf("failed step = %q; want evaluate", out.FailedStep())
	}
	if !strings.Contains(out.Err.Error(), "script threw") {
		t.Fatalf("error = %v", out.Err)
	}
}

func TestCaptureUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewClient(Config{BaseURL: url, APIKey: "k", Timeout: time.Second}).Capture(context.Background(), mustRequest(t, "BTC", "24h"))
	if d := out.Detail(); d == nil || d.Code != heatmap.CodeStepTransport || d.Step != heatmap.StepNavigate {
		t.Fatalf("detail = %+v; want navigate transport failure", d)
	}
}

func TestCaptureStopsWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &fakeService{respond: func(tool string) (int, string) {
		if tool == ToolClick {
			cancel()
		}
		return http.StatusOK, `{}`
	}}
	srv := httptest.NewServer(svc.handler(t))
	defer srv.Close()

	out := newTestClient(srv, "k", time.Second).Capture(ctx, mustRequest(t, "BTC", "24h"))
	if out.OK() {
		t.Fatal("Capture() succeeded after cancel")
	}
	if d := out.Detail(); d.Code != heatmap.CodeCanceled {
		t.Fatalf("code = %q; want %q", d.Code, heatmap.CodeCanceled)
	}
	for _, tool := range svc.tools() {
		if tool == ToolScreenshot {
			t.Fatal("screenshot issued after cancellation")
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	if c.baseURL != DefaultBaseURL || c.pageURL != DefaultPageURL || c.timeout != DefaultTimeout {
		t.Fatalf("defaults = %q %q %s", c.baseURL, c.pageURL, c.timeout)
	}
	if !c.HasCredential() {
		t.Fatal("HasCredential() = false")
	}
}
