package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/helixops/ruleflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return s.applyMigrations(ctx)
}

// --- Rules ---

func (s *LibSQLStore) CreateRule(ctx context.Context, r *schema.Rule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, key, name, trigger_type, trigger_config, conditions, actions, is_active, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullStr(r.Key), r.Name, r.TriggerType,
		nullRaw(r.TriggerConfig), nullRaw(r.Conditions), nullRaw(r.Actions),
		r.IsActive, r.Priority, timeOrNow(r.CreatedAt), timeOrNow(r.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRule(ctx context.Context, id string) (*schema.Rule, error) {
	r := &schema.Rule{}
	var key, triggerConfig, conds, acts sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, key, name, trigger_type, trigger_config, conditions, actions, is_active, priority, created_at, updated_at
		 FROM rules WHERE id = ?`, id,
	).Scan(&r.ID, &key, &r.Name, &r.TriggerType, &triggerConfig, &conds, &acts,
		&r.IsActive, &r.Priority, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("rule", id)
	}
	if err != nil {
		return nil, err
	}
	r.Key = key.String
	r.TriggerConfig = rawOrNil(triggerConfig)
	r.Conditions = rawOrNil(conds)
	r.Actions = rawOrNil(acts)
	return r, nil
}

func (s *LibSQLStore) UpdateRule(ctx context.Context, id string, update RuleUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.TriggerType != nil {
		sets = append(sets, "trigger_type = ?")
		args = append(args, *update.TriggerType)
	}
	if update.TriggerConfig != nil {
		sets = append(sets, "trigger_config = ?")
		args = append(args, string(update.TriggerConfig))
	}
	if update.Conditions != nil {
		sets = append(sets, "conditions = ?")
		args = append(args, string(update.Conditions))
	}
	if update.Actions != nil {
		sets = append(sets, "actions = ?")
		args = append(args, string(update.Actions))
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *update.IsActive)
	}
	if update.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *update.Priority)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE rules SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "rule", id)
}

func (s *LibSQLStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "rule", id)
}

func (s *LibSQLStore) ListRules(ctx context.Context, filter RuleFilter) ([]*schema.Rule, error) {
	var where []string
	var args []any

	if filter.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, *filter.IsActive)
	}
	if filter.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, filter.TriggerType)
	}

	query := `SELECT id, key, name, trigger_type, trigger_config, conditions, actions, is_active, priority, created_at, updated_at FROM rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*schema.Rule
	for rows.Next() {
		r := &schema.Rule{}
		var key, triggerConfig, conds, acts sql.NullString
		if err := rows.Scan(&r.ID, &key, &r.Name, &r.TriggerType, &triggerConfig, &conds, &acts,
			&r.IsActive, &r.Priority, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Key = key.String
		r.TriggerConfig = rawOrNil(triggerConfig)
		r.Conditions = rawOrNil(conds)
		r.Actions = rawOrNil(acts)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, e *schema.Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, rule_id, triggered_by, trigger_data, status, output_data, error_message, execution_time_ms, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RuleID, nullStr(e.TriggeredBy), nullRaw(e.TriggerData),
		string(e.Status), nullRaw(e.OutputData), nullStr(e.ErrorMessage),
		e.ExecutionTimeMs, timeOrNow(e.CreatedAt), nullTime(e.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*schema.Execution, error) {
	e := &schema.Execution{}
	var (
		triggeredBy, triggerData, outputData, errMsg sql.NullString
		completedAt                                  sql.NullTime
		status                                       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, rule_id, triggered_by, trigger_data, status, output_data, error_message, execution_time_ms, created_at, completed_at
		 FROM executions WHERE id = ?`, id,
	).Scan(&e.ID, &e.RuleID, &triggeredBy, &triggerData, &status, &outputData, &errMsg,
		&e.ExecutionTimeMs, &e.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	e.TriggeredBy = triggeredBy.String
	e.TriggerData = rawOrNil(triggerData)
	e.Status = schema.ExecutionStatus(status)
	e.OutputData = rawOrNil(outputData)
	e.ErrorMessage = errMsg.String
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return e, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.OutputData != nil {
		sets = append(sets, "output_data = ?")
		args = append(args, string(update.OutputData))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.ExecutionTimeMs != nil {
		sets = append(sets, "execution_time_ms = ?")
		args = append(args, *update.ExecutionTimeMs)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error) {
	var where []string
	var args []any

	if filter.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, rule_id, triggered_by, trigger_data, status, output_data, error_message, execution_time_ms, created_at, completed_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*schema.Execution
	for rows.Next() {
		e := &schema.Execution{}
		var (
			triggeredBy, triggerData, outputData, errMsg sql.NullString
			completedAt                                  sql.NullTime
			status                                       string
		)
		if err := rows.Scan(&e.ID, &e.RuleID, &triggeredBy, &triggerData, &status, &outputData, &errMsg,
			&e.ExecutionTimeMs, &e.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		e.TriggeredBy = triggeredBy.String
		e.TriggerData = rawOrNil(triggerData)
		e.Status = schema.ExecutionStatus(status)
		e.OutputData = rawOrNil(outputData)
		e.ErrorMessage = errMsg.String
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// --- Notifications ---

func (s *LibSQLStore) CreateNotification(ctx context.Context, n *Notification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, severity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, nullStr(n.Title), nullStr(n.Message), nullStr(n.Severity), timeOrNow(n.CreatedAt),
	)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// --- Audit log ---

func (s *LibSQLStore) AppendAuditEvent(ctx context.Context, ev *AuditEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (level, message, rule_id, execution_id, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		nullStr(ev.Level), ev.Message, nullStr(ev.RuleID), nullStr(ev.ExecutionID), timeOrNow(ev.Timestamp),
	)
	return err
}

func (s *LibSQLStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error) {
	var where []string
	var args []any

	if filter.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}

	query := `SELECT id, level, message, rule_id, execution_id, timestamp FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		ev := &AuditEvent{}
		var level, ruleID, executionID sql.NullString
		if err := rows.Scan(&ev.ID, &level, &ev.Message, &ruleID, &executionID, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Level = level.String
		ev.RuleID = ruleID.String
		ev.ExecutionID = executionID.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Generic record store ---
// Rows are JSON documents keyed by (table_name, id); column-level updates
// merge into the document. This is the default RecordStore collaborator for
// deployments without an external database.

func (s *LibSQLStore) CreateRecord(ctx context.Context, table string, data map[string]any) (string, error) {
	if table == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "record table is empty")
	}
	id := uuid.New().String()
	doc, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal record data: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (table_name, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		table, id, string(doc),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *LibSQLStore) GetRecord(ctx context.Context, table, id string) (map[string]any, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE table_name = ? AND id = ?`, table, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, storeNotFound(table+" record", id)
	}
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(doc), &data); err != nil {
		return nil, fmt.Errorf("unmarshal record data: %w", err)
	}
	return data, nil
}

func (s *LibSQLStore) UpdateRecord(ctx context.Context, table, id string, data map[string]any) error {
	existing, err := s.GetRecord(ctx, table, id)
	if err != nil {
		return err
	}
	for k, v := range data {
		existing[k] = v
	}
	doc, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal record data: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE table_name = ? AND id = ?`,
		string(doc), table, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, table+" record", id)
}

func (s *LibSQLStore) DeleteRecord(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE table_name = ? AND id = ?`, table, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, table+" record", id)
}

func (s *LibSQLStore) SetRecordField(ctx context.Context, table, id, field string, value any) error {
	return s.UpdateRecord(ctx, table, id, map[string]any{field: value})
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.RuleError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
