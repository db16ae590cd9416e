package heatmap

import (
	"encoding/json"
	"net/http"
)

// Report is the caller-facing rendering of an Envelope, shared by the HTTP
// and MCP surfaces. Success fills the image fields; failure fills the error
// fields and, when permitted, the simulated fallback.
type Report struct {
	CaptureID        string           `json:"capture_id,omitempty"`
	ImagePath        string           `json:"image_path,omitempty"`
	Symbol           string           `json:"symbol"`
	TimePeriod       string           `json:"time_period"`
	BrowsercatResult json.RawMessage  `json:"browsercat_result,omitempty"`
	FallbackProvided bool             `json:"fallback_provided"`
	Fallback         *FallbackPayload `json:"fallback,omitempty"`

	Error                  string          `json:"error,omitempty"`
	ErrorCode              string          `json:"error_code,omitempty"`
	BrowsercatError        string          `json:"browsercat_error,omitempty"`
	BrowsercatStatusCode   *int            `json:"browsercat_status_code,omitempty"`
	BrowsercatResponse     json.RawMessage `json:"browsercat_response,omitempty"`
	BrowsercatResponseText string          `json:"browsercat_response_text,omitempty"`
	FailedStep             string          `json:"failed_step,omitempty"`
	StatusCode             int             `json:"status_code,omitempty"`
}

// DefaultBackendLabel names the HTTP automation service.
const DefaultBackendLabel = "BrowserCat"

// NewReport renders env and returns the HTTP status for its failure class:
// 200 on success, 504 for a step timeout, 503 when the service could not be
// reached (or no credential was configured), 502 otherwise.
func NewReport(env Envelope) (Report, int) {
	r := Report{
		CaptureID:  env.CaptureID,
		Symbol:     env.Symbol,
		TimePeriod: string(env.TimePeriod),
	}
	if env.Primary.OK() {
		r.ImagePath = env.Primary.ImageRef
		r.BrowsercatResult = env.Primary.Raw
		return r, http.StatusOK
	}

	d := env.Primary.Detail()
	status := FailureStatus(d.Code)
	r.StatusCode = status
	r.ErrorCode = d.Code
	r.BrowsercatError = d.Error
	r.FailedStep = string(d.Step)
	r.BrowsercatResponse = d.Response
	r.BrowsercatResponseText = d.ResponseText
	if d.StatusCode != 0 {
		upstream := d.StatusCode
		r.BrowsercatStatusCode = &upstream
	}
	backend := env.Backend
	if backend == "" {
		backend = DefaultBackendLabel
	}
	if status == http.StatusBadGateway {
		r.Error = "Failed to capture heatmap via " + backend + "."
	} else {
		r.Error = backend + " client error while capturing heatmap."
	}
	r.FallbackProvided = env.FallbackProvided
	r.Fallback = env.Fallback
	return r, status
}

// ValidationReport renders a rejected request.
func ValidationReport(symbol, period, message string) Report {
	return Report{
		Symbol:     symbol,
		TimePeriod: period,
		Error:      message,
		ErrorCode:  CodeValidation,
		StatusCode: http.StatusBadRequest,
	}
}

// FailureStatus maps a failure code to an HTTP status.
func FailureStatus(code string) int {
	switch code {
	case CodeStepTimeout:
		return http.StatusGatewayTimeout
	case CodeMissingCredential, CodeStepTransport, CodeCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
