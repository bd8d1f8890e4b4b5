package actions

import "log/slog"

// BuiltinDeps holds everything the built-in action set needs.
type BuiltinDeps struct {
	Records    RecordStore
	Messaging  MessagingDeps
	Audit      AuditSink
	Webhook    WebhookConfig
	InvokeRule RuleInvoker
	Logger     *slog.Logger
}

// RegisterBuiltins registers the full built-in action set.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) error {
	all := make([]Action, 0, 11)

	all = append(all, RecordActions(deps.Records)...)
	all = append(all, MessagingActions(deps.Messaging)...)
	all = append(all,
		NewWebhookAction(deps.Webhook),
		NewExecuteRuleAction(deps.InvokeRule),
		NewLogEventAction(deps.Audit, deps.Logger),
	)

	for _, a := range all {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
