package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule is a stored automation rule: a trigger, an ordered list of conditions,
// and an ordered list of actions. Immutable for the duration of one execution.
//
// Conditions and Actions are kept as raw JSON: the engine decodes them after
// the execution record exists, so a malformed payload surfaces as a
// structural failure on the execution rather than a load error.
type Rule struct {
	ID            string          `json:"id"`
	Key           string          `json:"key,omitempty"`
	Name          string          `json:"name"`
	TriggerType   string          `json:"trigger_type"`
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"`
	Conditions    json.RawMessage `json:"conditions,omitempty"`
	Actions       json.RawMessage `json:"actions,omitempty"`
	IsActive      bool            `json:"is_active"`
	Priority      int             `json:"priority"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LogicOp joins a condition's result with the NEXT condition's result.
type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// Condition is one predicate over the trigger data.
type Condition struct {
	Field    string  `json:"field"`
	Operator string  `json:"operator"`
	Value    any     `json:"value,omitempty"`
	Logic    LogicOp `json:"logic,omitempty"` // join to the successor; AND when empty
}

// Condition operators.
const (
	OpEquals         = "equals"
	OpNotEquals      = "not_equals"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpStartsWith     = "starts_with"
	OpEndsWith       = "ends_with"
	OpGreaterThan    = "greater_than"
	OpLessThan       = "less_than"
	OpGreaterOrEqual = "greater_or_equal"
	OpLessOrEqual    = "less_or_equal"
	OpIsEmpty        = "is_empty"
	OpIsNotEmpty     = "is_not_empty"
	OpIsNull         = "is_null"
	OpIsNotNull      = "is_not_null"
	OpInList         = "in_list"
	OpNotInList      = "not_in_list"
	OpMatchesRegex   = "matches_regex"
	OpBetween        = "between"
	OpExpression     = "expression"
)

// ActionDefinition is one step of a rule: an action type plus its
// type-specific config. Actions run in ascending Order; ties preserve
// declaration order.
type ActionDefinition struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
	Order  int            `json:"order"`
}

// Action types.
const (
	ActionSendEmail        = "send_email"
	ActionSendSMS          = "send_sms"
	ActionSendNotification = "send_notification"
	ActionCreateRecord     = "create_record"
	ActionUpdateRecord     = "update_record"
	ActionDeleteRecord     = "delete_record"
	ActionAssignUser       = "assign_user"
	ActionChangeStatus     = "change_status"
	ActionCallWebhook      = "call_webhook"
	ActionExecuteRule      = "execute_rule"
	ActionLogEvent         = "log_event"
)

// TriggerSchedule marks rules fired by the scheduler from a cron expression
// in trigger_config. All other trigger types are interpreted by the caller.
const TriggerSchedule = "schedule"

// Result is the outcome of one action execution. Always carries a boolean
// "success" key; failed results carry "error".
type Result map[string]any

// Failure builds a failed Result from an error message.
func Failure(msg string) Result {
	return Result{"success": false, "error": msg}
}

// Failuref builds a failed Result from a formatted message.
func Failuref(format string, args ...any) Result {
	return Result{"success": false, "error": fmt.Sprintf(format, args...)}
}

// Success builds a successful Result with extra detail fields.
func Success(details map[string]any) Result {
	r := Result{"success": true}
	for k, v := range details {
		r[k] = v
	}
	return r
}

// OK reports whether the result is marked successful.
func (r Result) OK() bool {
	ok, _ := r["success"].(bool)
	return ok
}
