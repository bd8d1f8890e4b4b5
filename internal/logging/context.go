package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	ruleIDKey ctxKey = iota
	executionIDKey
	triggeredByKey
)

// WithRuleID returns a context with the rule ID set.
func WithRuleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ruleIDKey, id)
}

// WithExecutionID returns a context with the execution ID set.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithTriggeredBy returns a context with the triggering actor set.
func WithTriggeredBy(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, triggeredByKey, actor)
}

// RuleID extracts the rule ID from the context, or "" if absent.
func RuleID(ctx context.Context) string {
	v, _ := ctx.Value(ruleIDKey).(string)
	return v
}

// ExecutionID extracts the execution ID from the context, or "" if absent.
func ExecutionID(ctx context.Context) string {
	v, _ := ctx.Value(executionIDKey).(string)
	return v
}

// TriggeredBy extracts the triggering actor from the context, or "" if absent.
func TriggeredBy(ctx context.Context) string {
	v, _ := ctx.Value(triggeredByKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if rID := RuleID(ctx); rID != "" {
		logger = logger.With(slog.String("rule_id", rID))
	}
	if eID := ExecutionID(ctx); eID != "" {
		logger = logger.With(slog.String("execution_id", eID))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := RuleID(ctx); v != "" {
		r.AddAttrs(slog.String("rule_id", v))
	}
	if v := ExecutionID(ctx); v != "" {
		r.AddAttrs(slog.String("execution_id", v))
	}
	if v := TriggeredBy(ctx); v != "" {
		r.AddAttrs(slog.String("triggered_by", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
