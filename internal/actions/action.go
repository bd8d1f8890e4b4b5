package actions

import (
	"context"

	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/pkg/schema"
)

// Action executes one rule action type. Config arrives already interpolated.
// Executors must catch their own failures: every fault is returned as a
// {success:false, error} Result, never as an error to the orchestrator.
type Action interface {
	Type() string
	Describe() string
	Execute(ctx context.Context, config map[string]any, trigger map[string]any) schema.Result
}

// ActionInfo is a summary of a registered action for listing.
type ActionInfo struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// --- Collaborator ports ---
// Narrow consumer-side interfaces; the record store, messaging gateways, and
// audit sink are external systems the engine only talks to through these.

// RecordStore is the relational record collaborator, addressed by table name
// and row id with column-level updates.
type RecordStore interface {
	CreateRecord(ctx context.Context, table string, data map[string]any) (string, error)
	UpdateRecord(ctx context.Context, table, recordID string, data map[string]any) error
	DeleteRecord(ctx context.Context, table, recordID string) error
	SetRecordField(ctx context.Context, table, recordID, field string, value any) error
}

// Mailer delivers outbound email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers outbound SMS.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// NotificationStore inserts notification rows; satisfied by the Store.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *store.Notification) (string, error)
}

// AuditSink appends audit entries; satisfied by the Store.
type AuditSink interface {
	AppendAuditEvent(ctx context.Context, ev *store.AuditEvent) error
}

// RuleInvoker runs a nested rule invocation through the gateway. The engine
// wires it after construction (late-bind, avoids the import cycle).
type RuleInvoker func(ctx context.Context, ruleID string, trigger map[string]any) (map[string]any, error)
