package schema

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of one rule execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ValidExecutionTransitions defines the allowed status transitions.
// Running is the only non-terminal state; the record is created already
// running and updated exactly once.
var ValidExecutionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusRunning: {ExecutionStatusSkipped, ExecutionStatusSuccess, ExecutionStatusFailed},
	ExecutionStatusSkipped: {},
	ExecutionStatusSuccess: {},
	ExecutionStatusFailed:  {},
}

// IsValidExecutionTransition reports whether from -> to is allowed.
func IsValidExecutionTransition(from, to ExecutionStatus) bool {
	for _, a := range ValidExecutionTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return len(ValidExecutionTransitions[s]) == 0
}

// Execution is the audit record of one attempt to run a rule against one
// trigger payload. Created at invocation start, mutated once at the end of
// the run, never deleted by the engine.
type Execution struct {
	ID              string          `json:"id"`
	RuleID          string          `json:"rule_id"`
	TriggeredBy     string          `json:"triggered_by,omitempty"`
	TriggerData     json.RawMessage `json:"trigger_data,omitempty"`
	Status          ExecutionStatus `json:"status"`
	OutputData      json.RawMessage `json:"output_data,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// ActionResult is one entry of a completed execution's output_data.actions.
type ActionResult struct {
	ActionID string `json:"action_id"`
	Type     string `json:"type"`
	Result   Result `json:"result"`
}

// ExecutionOutput is the JSON shape stored in output_data.
// Exactly one of Actions or Reason is set.
type ExecutionOutput struct {
	Actions []ActionResult `json:"actions,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}
