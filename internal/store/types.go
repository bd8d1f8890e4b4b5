package store

import (
	"encoding/json"
	"time"

	"github.com/helixops/ruleflow/pkg/schema"
)

// Notification is an in-app notification row created by send_notification.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEvent is an immutable entry in the audit log, written by log_event
// and by the engine itself.
type AuditEvent struct {
	ID          int64     `json:"id"`
	Level       string    `json:"level,omitempty"`
	Message     string    `json:"message"`
	RuleID      string    `json:"rule_id,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// --- Filter and update types ---

// RuleFilter specifies criteria for listing rules.
type RuleFilter struct {
	IsActive    *bool  `json:"is_active,omitempty"`
	TriggerType string `json:"trigger_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// RuleUpdate specifies mutable fields of a rule.
type RuleUpdate struct {
	Name          *string         `json:"name,omitempty"`
	TriggerType   *string         `json:"trigger_type,omitempty"`
	TriggerConfig json.RawMessage `json:"trigger_config,omitempty"`
	Conditions    json.RawMessage `json:"conditions,omitempty"`
	Actions       json.RawMessage `json:"actions,omitempty"`
	IsActive      *bool           `json:"is_active,omitempty"`
	Priority      *int            `json:"priority,omitempty"`
}

// ExecutionUpdate specifies the terminal update of an execution.
type ExecutionUpdate struct {
	Status          *schema.ExecutionStatus `json:"status,omitempty"`
	OutputData      json.RawMessage         `json:"output_data,omitempty"`
	ErrorMessage    *string                 `json:"error_message,omitempty"`
	ExecutionTimeMs *int64                  `json:"execution_time_ms,omitempty"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	RuleID string                  `json:"rule_id,omitempty"`
	Status *schema.ExecutionStatus `json:"status,omitempty"`
	Limit  int                     `json:"limit,omitempty"`
	Offset int                     `json:"offset,omitempty"`
}

// AuditFilter specifies criteria for listing audit events.
type AuditFilter struct {
	RuleID      string `json:"rule_id,omitempty"`
	ExecutionID string `json:"execution_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}
