package actions

import (
	"context"

	"github.com/helixops/ruleflow/pkg/schema"
)

// executeRuleAction triggers another rule through the gateway with the same
// trigger data. Nesting depth is guarded by the engine.
type executeRuleAction struct {
	invoke RuleInvoker
}

// NewExecuteRuleAction creates the execute_rule action. The invoker is wired
// by the engine after construction.
func NewExecuteRuleAction(invoke RuleInvoker) Action {
	return &executeRuleAction{invoke: invoke}
}

type executeRuleConfig struct {
	RuleID string
}

func parseExecuteRuleConfig(m map[string]any) (executeRuleConfig, error) {
	cfg := executeRuleConfig{RuleID: stringParam(m, "rule_id", "")}
	if cfg.RuleID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "execute_rule: missing required config 'rule_id'")
	}
	return cfg, nil
}

func (a *executeRuleAction) Type() string { return schema.ActionExecuteRule }

func (a *executeRuleAction) Describe() string {
	return "Trigger another rule with the current trigger data."
}

func (a *executeRuleAction) Execute(ctx context.Context, config map[string]any, trigger map[string]any) schema.Result {
	cfg, err := parseExecuteRuleConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.invoke == nil {
		return schema.Failure("execute_rule: no rule invoker configured")
	}

	result, err := a.invoke(ctx, cfg.RuleID, trigger)
	if err != nil {
		return schema.Failuref("execute_rule: %v", err)
	}
	return schema.Success(map[string]any{
		"child_rule_id": cfg.RuleID,
		"result":        result,
	})
}
