package heatmap

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestNewReportSuccess(t *testing.T) {
	env := Envelope{CaptureID: "c", Symbol: "BTC", TimePeriod: Period24h, Primary: Success("/tmp/a.png", json.RawMessage(`{}`))}

	r, status := NewReport(env)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if r.ImagePath != "/tmp/a.png" || r.FallbackProvided || r.Fallback != nil || r.Error != "" {
		t.Fatalf("report = %+v", r)
	}
}

func TestNewReportFailure(t *testing.T) {
	fb := &FallbackPayload{ImagePath: "/tmp/b.png", Simulated: true, GeneratedAt: time.Now()}
	env := Envelope{
		Symbol:           "BTC",
		TimePeriod:       Period24h,
		Primary:          Failure(&StepError{Step: StepScreenshot, StatusCode: 401, ResponseText: "unauthorized"}),
		Fallback:         fb,
		FallbackProvided: true,
	}

	r, status := NewReport(env)
	if status != http.StatusBadGateway || r.StatusCode != status {
		t.Fatalf("status = %d, report status = %d", status, r.StatusCode)
	}
	if r.BrowsercatStatusCode == nil || *r.BrowsercatStatusCode != 401 {
		t.Fatalf("BrowsercatStatusCode = %v", r.BrowsercatStatusCode)
	}
	if r.FailedStep != "screenshot" || r.BrowsercatResponseText != "unauthorized" {
		t.Fatalf("report = %+v", r)
	}
	if !r.FallbackProvided || r.Fallback != fb {
		t.Fatal("fallback not carried")
	}
	if r.ImagePath != "" {
		t.Fatal("failure report carries a primary image path")
	}
}

func TestFailureStatus(t *testing.T) {
	tests := map[string]int{
		CodeStepTimeout:       http.StatusGatewayTimeout,
		CodeStepTransport:     http.StatusServiceUnavailable,
		CodeMissingCredential: http.StatusServiceUnavailable,
		CodeCanceled:          http.StatusServiceUnavailable,
		CodeStepFailure:       http.StatusBadGateway,
	}
	for code, want := range tests {
		if got := FailureStatus(code); got != want {
			t.Errorf("FailureStatus(%s) = %d; want %d", code, got, want)
		}
	}
}

func TestNewReportNamesBackend(t *testing.T) {
	tests := []struct {
		backend string
		err     error
		want    string
	}{
		{"", &StepError{Step: StepClick, StatusCode: 500}, "Failed to capture heatmap via BrowserCat."},
		{"Chromium CDP", &StepError{Step: StepClick, StatusCode: 500}, "Failed to capture heatmap via Chromium CDP."},
		{"Chromium CDP", &StepError{Step: StepNavigate, Cause: &CodedError{Code: CodeStepTransport, Message: "refused"}}, "Chromium CDP client error while capturing heatmap."},
	}
	for _, tt := range tests {
		env := Envelope{Symbol: "BTC", TimePeriod: Period24h, Backend: tt.backend, Primary: Failure(tt.err)}
		r, _ := NewReport(env)
		if r.Error != tt.want {
			t.Errorf("backend %q: error = %q; want %q", tt.backend, r.Error, tt.want)
		}
	}
}
