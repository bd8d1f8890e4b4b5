package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeDepthExceeded     = "DEPTH_EXCEEDED"
	ErrCodeInterpolation     = "INTERPOLATION_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeActionUnavailable = "ACTION_UNAVAILABLE"
)

// RuleError is the structured error type for all ruleflow operations.
type RuleError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	RuleID  string         `json:"rule_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *RuleError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("[%s] rule %s: %s", e.Code, e.RuleID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RuleError) Unwrap() error {
	return e.Cause
}

// NewError creates a new RuleError.
func NewError(code, message string) *RuleError {
	return &RuleError{Code: code, Message: message}
}

// NewErrorf creates a new RuleError with a formatted message.
func NewErrorf(code, format string, args ...any) *RuleError {
	return &RuleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithRule attaches a rule ID to the error.
func (e *RuleError) WithRule(ruleID string) *RuleError {
	e.RuleID = ruleID
	return e
}

// WithCause attaches an underlying cause.
func (e *RuleError) WithCause(err error) *RuleError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *RuleError) WithDetails(details map[string]any) *RuleError {
	e.Details = details
	return e
}
