package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/helixops/ruleflow/internal/actions"
	"github.com/helixops/ruleflow/internal/conditions"
	"github.com/helixops/ruleflow/internal/expressions"
	"github.com/helixops/ruleflow/internal/logging"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/internal/validation"
	"github.com/helixops/ruleflow/pkg/schema"
)

const (
	// DefaultMaxRuleDepth bounds execute_rule chains. An invocation at
	// depth >= this limit is rejected before any record is written.
	DefaultMaxRuleDepth = 5

	// DefaultActionTimeout bounds a single action. execute_rule is exempt
	// so nested runs get the full budget of their own actions.
	DefaultActionTimeout = 30 * time.Second
)

// Config tunes the runner.
type Config struct {
	// MaxRuleDepth is the maximum rule-invokes-rule nesting depth.
	// Zero means DefaultMaxRuleDepth.
	MaxRuleDepth int

	// ActionTimeout is the per-action deadline. Zero means
	// DefaultActionTimeout; negative disables the deadline.
	ActionTimeout time.Duration
}

func (c Config) maxDepth() int {
	if c.MaxRuleDepth <= 0 {
		return DefaultMaxRuleDepth
	}
	return c.MaxRuleDepth
}

func (c Config) actionTimeout() time.Duration {
	if c.ActionTimeout == 0 {
		return DefaultActionTimeout
	}
	if c.ActionTimeout < 0 {
		return 0
	}
	return c.ActionTimeout
}

// InvokeRequest asks the runner to fire one rule against one trigger payload.
type InvokeRequest struct {
	RuleID      string         `json:"rule_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
}

// InvokeResponse summarizes a completed invocation. Success is false only
// when the execution finished failed; a skipped run is a successful
// invocation that did nothing.
type InvokeResponse struct {
	Success         bool                   `json:"success"`
	ExecutionID     string                 `json:"execution_id"`
	Status          schema.ExecutionStatus `json:"status"`
	ActionsExecuted int                    `json:"actions_executed"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	Reason          string                 `json:"reason,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// Store is the slice of the persistence layer the runner needs.
// Satisfied by store.Store implementations.
type Store interface {
	GetRule(ctx context.Context, id string) (*schema.Rule, error)
	CreateExecution(ctx context.Context, e *schema.Execution) error
	UpdateExecution(ctx context.Context, id string, update store.ExecutionUpdate) error
}

// Runner drives rule executions: it loads the rule, opens the execution
// record, evaluates conditions, runs actions in order, and closes the
// record with a terminal status.
type Runner struct {
	store     Store
	registry  *actions.Registry
	evaluator *conditions.Evaluator
	validator *validation.RuleValidator
	logger    *slog.Logger
	cfg       Config
}

// NewRunner creates a Runner. The registry may still be empty; actions are
// resolved at execution time so late registration (execute_rule) works.
func NewRunner(st Store, reg *actions.Registry, ev *conditions.Evaluator, val *validation.RuleValidator, logger *slog.Logger, cfg Config) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     st,
		registry:  reg,
		evaluator: ev,
		validator: val,
		logger:    logger,
		cfg:       cfg,
	}
}

// NestedInvoker adapts the runner to the execute_rule collaborator port.
func (r *Runner) NestedInvoker() actions.RuleInvoker {
	return func(ctx context.Context, ruleID string, trigger map[string]any) (map[string]any, error) {
		resp, err := r.Invoke(ctx, InvokeRequest{
			RuleID:      ruleID,
			TriggerData: trigger,
			TriggeredBy: nestedActor(ctx),
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":          resp.Success,
			"execution_id":     resp.ExecutionID,
			"status":           string(resp.Status),
			"actions_executed": resp.ActionsExecuted,
		}, nil
	}
}

func nestedActor(ctx context.Context) string {
	if parent := logging.RuleID(ctx); parent != "" {
		return "rule:" + parent
	}
	return "rule"
}

// Invoke fires one rule. A missing or inactive rule and an exhausted depth
// budget return an error without creating an execution record; every other
// outcome is recorded in the ledger and returned as a response.
func (r *Runner) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	depth := depthFrom(ctx)
	if depth >= r.cfg.maxDepth() {
		return nil, schema.NewErrorf(schema.ErrCodeDepthExceeded,
			"rule chain exceeds maximum depth %d", r.cfg.maxDepth()).WithRule(req.RuleID)
	}

	rule, err := r.store.GetRule(ctx, req.RuleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "rule %q is not active", rule.ID).WithRule(rule.ID)
	}

	triggerData := req.TriggerData
	if triggerData == nil {
		triggerData = map[string]any{}
	}
	rawTrigger, err := json.Marshal(triggerData)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "trigger data is not JSON-encodable").WithCause(err)
	}

	exec := &schema.Execution{
		RuleID:      rule.ID,
		TriggeredBy: req.TriggeredBy,
		TriggerData: rawTrigger,
		Status:      schema.ExecutionStatusRunning,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.CreateExecution(ctx, exec); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "create execution record").WithCause(err).WithRule(rule.ID)
	}

	ctx = logging.WithRuleID(ctx, rule.ID)
	ctx = logging.WithExecutionID(ctx, exec.ID)
	if req.TriggeredBy != "" {
		ctx = logging.WithTriggeredBy(ctx, req.TriggeredBy)
	}
	ctx = withDepth(ctx, depth+1)

	r.logger.InfoContext(ctx, "rule execution started",
		slog.String("rule_name", rule.Name),
		slog.Int("depth", depth))

	started := time.Now()
	status, output, errMsg := r.run(ctx, rule, triggerData)
	elapsed := time.Since(started).Milliseconds()

	if err := r.finish(ctx, exec, status, output, errMsg, elapsed); err != nil {
		r.logger.ErrorContext(ctx, "failed to finalize execution", slog.Any("error", err))
	}

	resp := &InvokeResponse{
		Success:         status != schema.ExecutionStatusFailed,
		ExecutionID:     exec.ID,
		Status:          status,
		ActionsExecuted: len(output.Actions),
		ExecutionTimeMs: elapsed,
		Reason:          output.Reason,
		Error:           errMsg,
	}

	r.logger.InfoContext(ctx, "rule execution finished",
		slog.String("status", string(status)),
		slog.Int("actions_executed", resp.ActionsExecuted),
		slog.Int64("duration_ms", elapsed))
	return resp, nil
}

// run evaluates and executes the rule body. Recovered panics and structural
// payload errors come back as a failed status; per-action failures do not.
// Results collected before a panic stay in the failure record.
func (r *Runner) run(ctx context.Context, rule *schema.Rule, triggerData map[string]any) (status schema.ExecutionStatus, output schema.ExecutionOutput, errMsg string) {
	var results []schema.ActionResult
	defer func() {
		if rec := recover(); rec != nil {
			status = schema.ExecutionStatusFailed
			output = schema.ExecutionOutput{Actions: results}
			errMsg = fmt.Sprintf("panic during execution: %v", rec)
			r.logger.ErrorContext(ctx, "rule execution panicked", slog.Any("panic", rec))
		}
	}()

	conds, err := r.validator.DecodeConditions(rule.Conditions)
	if err != nil {
		return schema.ExecutionStatusFailed, schema.ExecutionOutput{}, err.Error()
	}
	defs, err := r.validator.DecodeActions(rule.Actions)
	if err != nil {
		return schema.ExecutionStatusFailed, schema.ExecutionOutput{}, err.Error()
	}

	if !r.evaluator.Evaluate(ctx, conds, triggerData) {
		return schema.ExecutionStatusSkipped, schema.ExecutionOutput{Reason: "Conditions not met"}, ""
	}

	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Order < defs[j].Order })

	results = make([]schema.ActionResult, 0, len(defs))
	for i, def := range defs {
		results = append(results, schema.ActionResult{
			ActionID: actionID(def, i),
			Type:     def.Type,
			Result:   r.runAction(ctx, def, triggerData),
		})
	}

	return schema.ExecutionStatusSuccess, schema.ExecutionOutput{Actions: results}, ""
}

// runAction executes one action. Failures are returned as failed results,
// never as errors; the sequence always continues.
func (r *Runner) runAction(ctx context.Context, def schema.ActionDefinition, triggerData map[string]any) schema.Result {
	action, err := r.registry.Get(def.Type)
	if err != nil {
		r.logger.WarnContext(ctx, "unknown action type", slog.String("type", def.Type))
		return schema.Failure(err.Error())
	}

	config := expressions.InterpolateConfig(def.Config, triggerData)

	actx := ctx
	if timeout := r.cfg.actionTimeout(); timeout > 0 && def.Type != schema.ActionExecuteRule {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := action.Execute(actx, config, triggerData)
	if !result.OK() {
		r.logger.WarnContext(ctx, "action failed",
			slog.String("type", def.Type),
			slog.Any("error", result["error"]))
	}
	return result
}

// finish closes the execution record with its terminal status.
func (r *Runner) finish(ctx context.Context, exec *schema.Execution, status schema.ExecutionStatus, output schema.ExecutionOutput, errMsg string, elapsedMs int64) error {
	if err := checkTransition(exec.Status, status); err != nil {
		return err
	}

	rawOutput, err := json.Marshal(output)
	if err != nil {
		rawOutput = []byte(`{}`)
	}
	now := time.Now().UTC()
	update := store.ExecutionUpdate{
		Status:          &status,
		OutputData:      rawOutput,
		ExecutionTimeMs: &elapsedMs,
		CompletedAt:     &now,
	}
	if errMsg != "" {
		update.ErrorMessage = &errMsg
	}
	if err := r.store.UpdateExecution(ctx, exec.ID, update); err != nil {
		return schema.NewError(schema.ErrCodeStore, "update execution record").WithCause(err)
	}
	exec.Status = status
	return nil
}

func actionID(def schema.ActionDefinition, index int) string {
	if def.ID != "" {
		return def.ID
	}
	return fmt.Sprintf("action_%d", index+1)
}

// --- nesting depth ---

type depthKey struct{}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}
