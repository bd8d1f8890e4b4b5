package actions

import (
	"context"

	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/pkg/schema"
)

// MessagingDeps holds the messaging collaborators.
type MessagingDeps struct {
	Mailer        Mailer
	SMS           SMSSender
	Notifications NotificationStore
}

// MessagingActions returns the three messaging actions.
func MessagingActions(deps MessagingDeps) []Action {
	return []Action{
		&sendEmailAction{mailer: deps.Mailer},
		&sendSMSAction{sms: deps.SMS},
		&sendNotificationAction{notifications: deps.Notifications},
	}
}

// --- send_email ---

type emailConfig struct {
	To      string
	Subject string
	Body    string
}

func parseEmailConfig(m map[string]any) (emailConfig, error) {
	cfg := emailConfig{
		To:      stringParam(m, "to", ""),
		Subject: stringParam(m, "subject", ""),
		Body:    stringParam(m, "body", ""),
	}
	if cfg.To == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "send_email: missing required config 'to'")
	}
	return cfg, nil
}

type sendEmailAction struct {
	mailer Mailer
}

func (a *sendEmailAction) Type() string { return schema.ActionSendEmail }

func (a *sendEmailAction) Describe() string {
	return "Send an email through the messaging gateway."
}

func (a *sendEmailAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseEmailConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.mailer == nil {
		return schema.Failure("send_email: no mail gateway configured")
	}

	if err := a.mailer.SendEmail(ctx, cfg.To, cfg.Subject, cfg.Body); err != nil {
		return schema.Failuref("send_email: %v", err)
	}
	return schema.Success(map[string]any{"to": cfg.To, "subject": cfg.Subject})
}

// --- send_sms ---

type smsConfig struct {
	To      string
	Message string
}

func parseSMSConfig(m map[string]any) (smsConfig, error) {
	cfg := smsConfig{
		To:      stringParam(m, "to", ""),
		Message: stringParam(m, "message", ""),
	}
	if cfg.To == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "send_sms: missing required config 'to'")
	}
	return cfg, nil
}

type sendSMSAction struct {
	sms SMSSender
}

func (a *sendSMSAction) Type() string { return schema.ActionSendSMS }

func (a *sendSMSAction) Describe() string {
	return "Send an SMS through the messaging gateway."
}

func (a *sendSMSAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseSMSConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.sms == nil {
		return schema.Failure("send_sms: no SMS gateway configured")
	}

	if err := a.sms.SendSMS(ctx, cfg.To, cfg.Message); err != nil {
		return schema.Failuref("send_sms: %v", err)
	}
	return schema.Success(map[string]any{"to": cfg.To})
}

// --- send_notification ---

type notificationConfig struct {
	UserID   string
	Title    string
	Message  string
	Severity string
}

func parseNotificationConfig(m map[string]any) (notificationConfig, error) {
	cfg := notificationConfig{
		UserID:   stringParam(m, "user_id", ""),
		Title:    stringParam(m, "title", ""),
		Message:  stringParam(m, "message", ""),
		Severity: stringParam(m, "severity", "info"),
	}
	if cfg.UserID == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "send_notification: missing required config 'user_id'")
	}
	return cfg, nil
}

type sendNotificationAction struct {
	notifications NotificationStore
}

func (a *sendNotificationAction) Type() string { return schema.ActionSendNotification }

func (a *sendNotificationAction) Describe() string {
	return "Insert an in-app notification row for a user."
}

func (a *sendNotificationAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseNotificationConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}
	if a.notifications == nil {
		return schema.Failure("send_notification: no notification store configured")
	}

	_, err = a.notifications.CreateNotification(ctx, &store.Notification{
		UserID:   cfg.UserID,
		Title:    cfg.Title,
		Message:  cfg.Message,
		Severity: cfg.Severity,
	})
	if err != nil {
		return schema.Failuref("send_notification: %v", err)
	}
	return schema.Success(map[string]any{"user_id": cfg.UserID})
}
