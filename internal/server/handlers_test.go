package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixops/ruleflow/internal/actions"
	"github.com/helixops/ruleflow/internal/conditions"
	"github.com/helixops/ruleflow/internal/engine"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/internal/validation"
	"github.com/helixops/ruleflow/pkg/schema"
)

// noopAction lets rules execute without external collaborators.
type noopAction struct{}

func (noopAction) Type() string     { return "noop" }
func (noopAction) Describe() string { return "does nothing" }
func (noopAction) Execute(_ context.Context, _ map[string]any, _ map[string]any) schema.Result {
	return schema.Success(nil)
}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	validator, err := validation.NewRuleValidator()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(noopAction{}))

	runner := engine.NewRunner(st, reg, conditions.NewEvaluator(nil, logger), validator, logger, engine.Config{})

	api := NewServer(Deps{
		Store:     st,
		Runner:    runner,
		Registry:  reg,
		Validator: validator,
		Logger:    logger,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

func createTestRule(t *testing.T, srv *httptest.Server, body map[string]any) string {
	t.Helper()
	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := decoded["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decoded["status"])
}

func TestCreateRule_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", map[string]any{"trigger_type": "manual"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "name required")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/rules", map[string]any{"name": "r"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "trigger_type required")

	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/v1/rules", map[string]any{
		"name":         "r",
		"trigger_type": "manual",
		"conditions":   []map[string]any{{"field": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "conditions must pass schema validation")
	assert.Equal(t, schema.ErrCodeValidation, decoded["code"])
}

func TestRuleCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	id := createTestRule(t, srv, map[string]any{
		"name":         "order alert",
		"trigger_type": "record_created",
		"conditions":   []map[string]any{{"field": "status", "operator": "equals", "value": "active"}},
		"actions":      []map[string]any{{"type": "noop"}},
		"priority":     5,
	})

	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "order alert", decoded["name"])
	assert.Equal(t, true, decoded["is_active"])

	resp, decoded = doJSON(t, http.MethodPatch, srv.URL+"/v1/rules/"+id, map[string]any{
		"name":      "renamed",
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "renamed", decoded["name"])
	assert.Equal(t, false, decoded["is_active"])

	resp, decoded = doJSON(t, http.MethodGet, srv.URL+"/v1/rules", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decoded["count"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/rules/"+id, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvokeRule(t *testing.T) {
	srv, _ := newTestServer(t)

	id := createTestRule(t, srv, map[string]any{
		"name":         "order alert",
		"trigger_type": "manual",
		"conditions":   []map[string]any{{"field": "status", "operator": "equals", "value": "active"}},
		"actions":      []map[string]any{{"type": "noop"}},
	})

	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+id+"/invoke", map[string]any{
		"trigger_data": map[string]any{"status": "active"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, string(schema.ExecutionStatusSuccess), decoded["status"])
	assert.Equal(t, float64(1), decoded["actions_executed"])
	assert.NotEmpty(t, decoded["execution_id"])

	// Conditions not met: still a successful invocation, zero actions.
	resp, decoded = doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+id+"/invoke", map[string]any{
		"trigger_data": map[string]any{"status": "closed"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(schema.ExecutionStatusSkipped), decoded["status"])
	assert.Equal(t, float64(0), decoded["actions_executed"])
}

func TestInvokeRule_TriggeredByOptional(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestRule(t, srv, map[string]any{
		"name":         "r",
		"trigger_type": "manual",
		"actions":      []map[string]any{{"type": "noop"}},
	})

	// Omitted triggered_by stays unset on the ledger entry; the gateway
	// does not substitute an actor.
	resp, decoded := doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+id+"/invoke", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	execID := decoded["execution_id"].(string)

	resp, decoded = doJSON(t, http.MethodGet, srv.URL+"/v1/executions/"+execID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, decoded, "triggered_by")

	resp, decoded = doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+id+"/invoke", map[string]any{
		"triggered_by": "user:u1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	execID = decoded["execution_id"].(string)

	resp, decoded = doJSON(t, http.MethodGet, srv.URL+"/v1/executions/"+execID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user:u1", decoded["triggered_by"])
}

func TestInvokeRule_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/rules/nope/invoke", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvokeRule_Inactive(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestRule(t, srv, map[string]any{
		"name":         "disabled",
		"trigger_type": "manual",
		"is_active":    false,
	})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+id+"/invoke", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListExecutions(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTestRule(t, srv, map[string]any{
		"name":         "r",
		"trigger_type": "manual",
		"actions":      []map[string]any{{"type": "noop"}},
	})

	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/rules/"+id+"/invoke", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/v1/rules/"+id+"/executions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), decoded["count"])

	resp, decoded = doJSON(t, http.MethodGet, srv.URL+fmt.Sprintf("/v1/executions?rule_id=%s&status=success", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), decoded["count"])

	executions := decoded["executions"].([]any)
	execID := executions[0].(map[string]any)["id"].(string)
	resp, decoded = doJSON(t, http.MethodGet, srv.URL+"/v1/executions/"+execID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decoded["rule_id"])
}

func TestListActions(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, decoded := doJSON(t, http.MethodGet, srv.URL+"/v1/actions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), decoded["count"])
}
