package actions

import (
	"context"

	"github.com/helixops/ruleflow/pkg/schema"
)

// RecordActions returns the five record-store actions.
func RecordActions(records RecordStore) []Action {
	return []Action{
		&createRecordAction{records: records},
		&updateRecordAction{records: records},
		&deleteRecordAction{records: records},
		&assignUserAction{records: records},
		&changeStatusAction{records: records},
	}
}

// --- create_record ---

type createRecordConfig struct {
	Table string
	Data  map[string]any
}

func parseCreateRecordConfig(m map[string]any) (createRecordConfig, error) {
	cfg := createRecordConfig{
		Table: stringParam(m, "table", ""),
		Data:  mapParam(m, "data"),
	}
	if cfg.Table == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "create_record: missing required config 'table'")
	}
	if cfg.Data == nil {
		return cfg, schema.NewError(schema.ErrCodeValidation, "create_record: missing required config 'data'")
	}
	return cfg, nil
}

type createRecordAction struct {
	records RecordStore
}

func (a *createRecordAction) Type() string { return schema.ActionCreateRecord }

func (a *createRecordAction) Describe() string {
	return "Insert a row into a record-store table."
}

func (a *createRecordAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseCreateRecordConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.records == nil {
		return schema.Failure("create_record: no record store configured")
	}

	id, err := a.records.CreateRecord(ctx, cfg.Table, cfg.Data)
	if err != nil {
		return schema.Failuref("create_record: %v", err)
	}
	return schema.Success(map[string]any{"record_id": id})
}

// --- update_record ---

type updateRecordConfig struct {
	Table    string
	RecordID string
	Data     map[string]any
}

func parseUpdateRecordConfig(m map[string]any) (updateRecordConfig, error) {
	cfg := updateRecordConfig{
		Table:    stringParam(m, "table", ""),
		RecordID: stringParam(m, "record_id", ""),
		Data:     mapParam(m, "data"),
	}
	if cfg.Table == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "update_record: missing required config 'table'")
	}
	if cfg.RecordID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "update_record: missing required config 'record_id'")
	}
	if cfg.Data == nil {
		return cfg, schema.NewError(schema.ErrCodeValidation, "update_record: missing required config 'data'")
	}
	return cfg, nil
}

type updateRecordAction struct {
	records RecordStore
}

func (a *updateRecordAction) Type() string { return schema.ActionUpdateRecord }

func (a *updateRecordAction) Describe() string {
	return "Update a record-store row by id."
}

func (a *updateRecordAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseUpdateRecordConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.records == nil {
		return schema.Failure("update_record: no record store configured")
	}

	if err := a.records.UpdateRecord(ctx, cfg.Table, cfg.RecordID, cfg.Data); err != nil {
		return schema.Failuref("update_record: %v", err)
	}
	return schema.Success(map[string]any{"record_id": cfg.RecordID})
}

// --- delete_record ---

type deleteRecordConfig struct {
	Table    string
	RecordID string
}

func parseDeleteRecordConfig(m map[string]any) (deleteRecordConfig, error) {
	cfg := deleteRecordConfig{
		Table:    stringParam(m, "table", ""),
		RecordID: stringParam(m, "record_id", ""),
	}
	if cfg.Table == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "delete_record: missing required config 'table'")
	}
	if cfg.RecordID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "delete_record: missing required config 'record_id'")
	}
	return cfg, nil
}

type deleteRecordAction struct {
	records RecordStore
}

func (a *deleteRecordAction) Type() string { return schema.ActionDeleteRecord }

func (a *deleteRecordAction) Describe() string {
	return "Delete a record-store row by id."
}

func (a *deleteRecordAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseDeleteRecordConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.records == nil {
		return schema.Failure("delete_record: no record store configured")
	}

	if err := a.records.DeleteRecord(ctx, cfg.Table, cfg.RecordID); err != nil {
		return schema.Failuref("delete_record: %v", err)
	}
	return schema.Success(map[string]any{"record_id": cfg.RecordID})
}

// --- assign_user ---

type assignUserConfig struct {
	Table    string
	RecordID string
	UserID   string
	Field    string
}

func parseAssignUserConfig(m map[string]any) (assignUserConfig, error) {
	cfg := assignUserConfig{
		Table:    stringParam(m, "table", ""),
		RecordID: stringParam(m, "record_id", ""),
		UserID:   stringParam(m, "user_id", ""),
		Field:    stringParam(m, "field", "assigned_to"),
	}
	if cfg.Table == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "assign_user: missing required config 'table'")
	}
	if cfg.RecordID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "assign_user: missing required config 'record_id'")
	}
	if cfg.UserID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "assign_user: missing required config 'user_id'")
	}
	return cfg, nil
}

type assignUserAction struct {
	records RecordStore
}

func (a *assignUserAction) Type() string { return schema.ActionAssignUser }

func (a *assignUserAction) Describe() string {
	return "Set a row's assignee column (default assigned_to)."
}

func (a *assignUserAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseAssignUserConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.records == nil {
		return schema.Failure("assign_user: no record store configured")
	}

	if err := a.records.SetRecordField(ctx, cfg.Table, cfg.RecordID, cfg.Field, cfg.UserID); err != nil {
		return schema.Failuref("assign_user: %v", err)
	}
	return schema.Success(map[string]any{"record_id": cfg.RecordID, "user_id": cfg.UserID})
}

// --- change_status ---

type changeStatusConfig struct {
	Table    string
	RecordID string
	Status   string
	Field    string
}

func parseChangeStatusConfig(m map[string]any) (changeStatusConfig, error) {
	cfg := changeStatusConfig{
		Table:    stringParam(m, "table", ""),
		RecordID: stringParam(m, "record_id", ""),
		Status:   stringParam(m, "status", ""),
		Field:    stringParam(m, "field", "status"),
	}
	if cfg.Table == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "change_status: missing required config 'table'")
	}
	if cfg.RecordID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "change_status: missing required config 'record_id'")
	}
	if cfg.Status == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "change_status: missing required config 'status'")
	}
	return cfg, nil
}

type changeStatusAction struct {
	records RecordStore
}

func (a *changeStatusAction) Type() string { return schema.ActionChangeStatus }

func (a *changeStatusAction) Describe() string {
	return "Set a row's status column (default status)."
}

func (a *changeStatusAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseChangeStatusConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.records == nil {
		return schema.Failure("change_status: no record store configured")
	}

	if err := a.records.SetRecordField(ctx, cfg.Table, cfg.RecordID, cfg.Field, cfg.Status); err != nil {
		return schema.Failuref("change_status: %v", err)
	}
	return schema.Success(map[string]any{"record_id": cfg.RecordID, "status": cfg.Status})
}
