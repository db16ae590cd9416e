package heatmap

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TimePeriod is the heatmap lookback window. The value is the label shown by
// the heatmap page's period selector.
type TimePeriod string

const (
	Period12h TimePeriod = "12 hour"
	Period24h TimePeriod = "24 hour"
	Period1mo TimePeriod = "1 month"
	Period3mo TimePeriod = "3 month"
)

// DefaultPeriod is used when a request omits the time period.
const DefaultPeriod = Period24h

// Periods lists the accepted windows in display order.
var Periods = []TimePeriod{Period12h, Period24h, Period1mo, Period3mo}

var periodAliases = map[string]TimePeriod{
	"12h": Period12h, "12 hour": Period12h, "12_hour": Period12h,
	"24h": Period24h, "24 hour": Period24h, "24_hour": Period24h,
	"1mo": Period1mo, "1 month": Period1mo, "1_month": Period1mo,
	"3mo": Period3mo, "3 month": Period3mo, "3_month": Period3mo,
}

// ParseTimePeriod accepts the short ("24h") and label ("24 hour") spellings.
// An empty string yields DefaultPeriod.
func ParseTimePeriod(s string) (TimePeriod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultPeriod, nil
	}
	if p, ok := periodAliases[s]; ok {
		return p, nil
	}
	labels := make([]string, 0, len(Periods))
	for _, p := range Periods {
		labels = append(labels, string(p))
	}
	return "", newError(CodeValidation, "Invalid timeframe. Use: "+strings.Join(labels, ", "), nil)
}

// Slug returns the label with spaces replaced, for use in artifact names.
func (p TimePeriod) Slug() string {
	return strings.ReplaceAll(string(p), " ", "_")
}

// SimulateOverride is the per-request tri-state for the simulated fallback.
type SimulateOverride uint8

const (
	SimulateUnset SimulateOverride = iota
	SimulateForceOn
	SimulateForceOff
)

func (o SimulateOverride) String() string {
	switch o {
	case SimulateForceOn:
		return "force-on"
	case SimulateForceOff:
		return "force-off"
	default:
		return "unset"
	}
}

var (
	truthyStrings = map[string]bool{"1": true, "true": true, "yes": true, "on": true}
	falsyStrings  = map[string]bool{"0": true, "false": true, "no": true, "off": true}
)

// ParseSimulateOverride maps loosely typed input (query strings, JSON values)
// to an override. Anything unrecognised is treated as unset.
func ParseSimulateOverride(v any) SimulateOverride {
	switch t := v.(type) {
	case nil:
		return SimulateUnset
	case bool:
		return OverrideFromBool(&t)
	case *bool:
		return OverrideFromBool(t)
	case float64:
		return boolOverride(t != 0)
	case int:
		return boolOverride(t != 0)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return SimulateUnset
		}
		return boolOverride(f != 0)
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch {
		case truthyStrings[s]:
			return SimulateForceOn
		case falsyStrings[s]:
			return SimulateForceOff
		}
	}
	return SimulateUnset
}

// OverrideFromBool maps a nullable boolean to an override.
func OverrideFromBool(b *bool) SimulateOverride {
	if b == nil {
		return SimulateUnset
	}
	return boolOverride(*b)
}

func boolOverride(b bool) SimulateOverride {
	if b {
		return SimulateForceOn
	}
	return SimulateForceOff
}

// Step names one remote browser-control operation.
type Step string

const (
	StepNone       Step = ""
	StepNavigate   Step = "navigate"
	StepClick      Step = "click"
	StepEvaluate   Step = "evaluate"
	StepScreenshot Step = "screenshot"
)

// Steps is the fixed order every capture follows.
var Steps = []Step{StepNavigate, StepClick, StepEvaluate, StepScreenshot}

// Automator executes one four-step browser session for a request.
type Automator interface {
	Capture(ctx context.Context, req Request) Outcome
}

// Outcome is the result of one automation session: either a success carrying
// an image reference, or a failure carrying the error. It is not modified
// after it is produced.
type Outcome struct {
	ImageRef string
	Raw      json.RawMessage
	Err      error
}

// Success builds a successful outcome.
func Success(imageRef string, raw json.RawMessage) Outcome {
	return Outcome{ImageRef: imageRef, Raw: raw}
}

// Failure builds a failed outcome. A nil error is replaced so the outcome
// still reads as failed.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("capture failed without detail")
	}
	return Outcome{Err: err}
}

func (o Outcome) OK() bool { return o.Err == nil }

// FailedStep returns the step a failure is attributed to, or StepNone for
// success and pre-flight failures such as a missing credential.
func (o Outcome) FailedStep() Step {
	var stepErr *StepError
	if errors.As(o.Err, &stepErr) {
		return stepErr.Step
	}
	return StepNone
}

// FailureDetail is the caller-visible description of a failed outcome.
type FailureDetail struct {
	Code         string          `json:"code"`
	Error        string          `json:"error"`
	Step         Step            `json:"step,omitempty"`
	StatusCode   int             `json:"status_code,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	ResponseText string          `json:"response_text,omitempty"`
}

// Detail describes the failure. It returns nil for a successful outcome.
func (o Outcome) Detail() *FailureDetail {
	if o.Err == nil {
		return nil
	}
	d := &FailureDetail{Error: o.Err.Error(), Code: CodeStepFailure}
	var stepErr *StepError
	var coded *CodedError
	switch {
	case errors.As(o.Err, &stepErr):
		d.Code = stepErr.Code()
		d.Step = stepErr.Step
		d.StatusCode = stepErr.StatusCode
		d.ResponseText = stepErr.ResponseText
		if json.Valid(stepErr.Response) {
			d.Response = json.RawMessage(stepErr.Response)
		}
	case errors.As(o.Err, &coded):
		d.Code = coded.Code
	}
	return d
}

// FallbackPayload is a synthesized placeholder returned in place of a real
// screenshot. Simulated is always true.
type FallbackPayload struct {
	ImagePath   string     `json:"image_path"`
	Symbol      string     `json:"symbol"`
	TimePeriod  TimePeriod `json:"time_period"`
	Note        string     `json:"note"`
	Simulated   bool       `json:"simulated"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Envelope is what Capture returns to callers. FallbackProvided is true only
// when Primary failed and the resolved policy allowed simulation.
type Envelope struct {
	CaptureID        string
	Symbol           string
	TimePeriod       TimePeriod
	Primary          Outcome
	Fallback         *FallbackPayload
	FallbackProvided bool
	SimulateAllowed  bool

	// Backend names the automation backend in caller-facing messages.
	Backend string
}
