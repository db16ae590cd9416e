package heatmap

import (
	"errors"
	"fmt"
)

const (
	CodeValidation        = "VALIDATION"
	CodeMissingCredential = "MISSING_CREDENTIAL"
	CodeStepFailure       = "STEP_FAILURE"
	CodeStepTimeout       = "STEP_TIMEOUT"
	CodeStepTransport     = "STEP_TRANSPORT"
	CodeCanceled          = "CANCELED"
	CodeSynthesis         = "SYNTHESIS"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// ErrMissingCredential is reported when no automation credential is configured.
// No remote call is attempted in that case.
var ErrMissingCredential = &CodedError{Code: CodeMissingCredential, Message: "automation credential is not configured"}

// StepError attributes a capture failure to exactly one automation step.
type StepError struct {
	Step         Step
	StatusCode   int
	Response     []byte
	ResponseText string
	Cause        error
}

func (e *StepError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s step failed with status %d", e.Step, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s step failed: %v", e.Step, e.Cause)
	}
	return fmt.Sprintf("%s step failed", e.Step)
}

func (e *StepError) Unwrap() error { return e.Cause }

// Code classifies the step failure for API mapping.
func (e *StepError) Code() string {
	var coded *CodedError
	switch {
	case errors.As(e.Cause, &coded):
		return coded.Code
	case e.StatusCode != 0:
		return CodeStepFailure
	default:
		return CodeStepTransport
	}
}

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == CodeValidation
}
