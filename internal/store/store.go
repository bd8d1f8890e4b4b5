package store

import (
	"context"

	"github.com/helixops/ruleflow/pkg/schema"
)

// Store defines the persistence layer contract: the rule repository, the
// execution ledger, and the collaborator-facing tables (notifications,
// audit log, generic records). All implementations must be safe for
// concurrent use.
type Store interface {
	// Rules
	CreateRule(ctx context.Context, r *schema.Rule) error
	GetRule(ctx context.Context, id string) (*schema.Rule, error)
	UpdateRule(ctx context.Context, id string, update RuleUpdate) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, filter RuleFilter) ([]*schema.Rule, error)

	// Executions (created running, updated once to a terminal status,
	// never deleted by the engine)
	CreateExecution(ctx context.Context, e *schema.Execution) error
	GetExecution(ctx context.Context, id string) (*schema.Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error)

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) (string, error)

	// Audit log (append-only)
	AppendAuditEvent(ctx context.Context, ev *AuditEvent) error
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)

	// Generic record store (default RecordStore collaborator)
	CreateRecord(ctx context.Context, table string, data map[string]any) (string, error)
	GetRecord(ctx context.Context, table, id string) (map[string]any, error)
	UpdateRecord(ctx context.Context, table, id string, data map[string]any) error
	DeleteRecord(ctx context.Context, table, id string) error
	SetRecordField(ctx context.Context, table, id, field string, value any) error

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
