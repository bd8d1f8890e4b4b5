package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixops/ruleflow/pkg/schema"
)

// WebhookConfig configures the call_webhook action.
type WebhookConfig struct {
	MaxResponseBody int64
	DefaultTimeout  time.Duration
}

const (
	defaultMaxResponseBody = 1 * 1024 * 1024 // 1MB
	defaultWebhookTimeout  = 30 * time.Second
)

// NewWebhookAction creates the call_webhook action. A zero timeout in cfg
// restores the original unbounded-call behavior.
func NewWebhookAction(cfg WebhookConfig) *WebhookAction {
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	return &WebhookAction{config: cfg}
}

// WebhookAction implements call_webhook.
type WebhookAction struct {
	config WebhookConfig
}

type webhookCallConfig struct {
	URL            string
	Method         string
	Headers        map[string]any
	Body           any
	TimeoutSeconds int
}

func parseWebhookConfig(m map[string]any) (webhookCallConfig, error) {
	cfg := webhookCallConfig{
		URL:            stringParam(m, "url", ""),
		Method:         strings.ToUpper(stringParam(m, "method", "POST")),
		Headers:        mapParam(m, "headers"),
		Body:           m["body"],
		TimeoutSeconds: intParam(m, "timeout_seconds", 0),
	}
	if cfg.URL == "" {
		return cfg, schema.NewError(schema.ErrCodeValidation, "call_webhook: missing required config 'url'")
	}
	u, err := url.ParseRequestURI(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return cfg, schema.NewErrorf(schema.ErrCodeValidation, "call_webhook: invalid url %q", cfg.URL)
	}
	return cfg, nil
}

func (a *WebhookAction) Type() string { return schema.ActionCallWebhook }

func (a *WebhookAction) Describe() string {
	return "Call an outbound HTTP endpoint with templated headers and body."
}

func (a *WebhookAction) Execute(ctx context.Context, config map[string]any, _ map[string]any) schema.Result {
	cfg, err := parseWebhookConfig(config)
	if err != nil {
		return schema.Failure(err.Error())
	}

	// Body: strings go out as-is (templates were already interpolated),
	// anything else is JSON-stringified.
	var bodyReader io.Reader
	contentType := ""
	if cfg.Body != nil {
		switch b := cfg.Body.(type) {
		case string:
			bodyReader = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return schema.Failuref("call_webhook: marshal body: %v", err)
			}
			bodyReader = strings.NewReader(string(encoded))
			contentType = "application/json"
		}
	}

	// Per-call timeout_seconds overrides the configured default.
	timeout := a.config.DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.URL, bodyReader)
	if err != nil {
		return schema.Failuref("call_webhook: build request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return schema.Failuref("call_webhook: request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, a.config.MaxResponseBody))
	if err != nil {
		return schema.Failuref("call_webhook: read response: %v", err)
	}

	var response any
	if len(bodyBytes) == 0 {
		response = nil
	} else if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &response); err != nil {
			response = string(bodyBytes)
		}
	} else {
		response = string(bodyBytes)
	}

	if resp.StatusCode >= 400 {
		return schema.Result{
			"success":  false,
			"error":    fmt.Sprintf("call_webhook: endpoint returned %d", resp.StatusCode),
			"status":   resp.StatusCode,
			"response": response,
		}
	}

	return schema.Success(map[string]any{
		"status":   resp.StatusCode,
		"response": response,
	})
}
