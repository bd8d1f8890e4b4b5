package actions

import (
	"context"
	"log/slog"

	"github.com/helixops/ruleflow/internal/logging"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/pkg/schema"
)

// logEventAction appends an entry to the audit sink and mirrors it to the
// structured logger.
type logEventAction struct {
	audit  AuditSink
	logger *slog.Logger
}

// NewLogEventAction creates the log_event action.
func NewLogEventAction(audit AuditSink, logger *slog.Logger) Action {
	if logger == nil {
		logger = slog.Default()
	}
	return &logEventAction{audit: audit, logger: logger}
}

type logEventConfig struct {
	Message string
	Level   string
}

func parseLogEventConfig(m map[string]any) (logEventConfig, error) {
	cfg := logEventConfig{
		Message: stringParam(m, "message", ""),
		Level:   stringParam(m, "level", "info"),
	}
	if cfg.Message == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "log_event: missing required config 'message'")
	}
	return cfg, nil
}

func (a *logEventAction) Type() string { return schema.ActionLogEvent }

func (a *logEventAction) Describe() string {
	return "Append a templated message to the audit log."
}

func (a *logEventAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseLogEventConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}

	if a.audit != nil {
		ev := &store.AuditEvent{
			Level:       cfg.Level,
			Message:     cfg.Message,
			RuleID:      logging.RuleID(ctx),
			ExecutionID: logging.ExecutionID(ctx),
		}
		if err := a.audit.AppendAuditEvent(ctx, ev); err != nil {
			return schema.Failuref("log_event: %v", err)
		}
	}

	logger := logging.LogWith(ctx, a.logger)
	switch cfg.Level {
	case "debug":
		logger.Debug(cfg.Message)
	case "warn", "warning":
		logger.Warn(cfg.Message)
	case "error":
		logger.Error(cfg.Message)
	default:
		logger.Info(cfg.Message)
	}

	return schema.Success(map[string]any{"message": cfg.Message})
}
