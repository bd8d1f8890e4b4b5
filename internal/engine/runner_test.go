package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixops/ruleflow/internal/actions"
	"github.com/helixops/ruleflow/internal/conditions"
	"github.com/helixops/ruleflow/internal/store"
	"github.com/helixops/ruleflow/internal/validation"
	"github.com/helixops/ruleflow/pkg/schema"
)

// fakeStore is an in-memory engine.Store for runner tests.
type fakeStore struct {
	rules      map[string]*schema.Rule
	executions map[string]*schema.Execution
	updates    map[string][]store.ExecutionUpdate
	nextID     int
}

func newFakeStore(rules ...*schema.Rule) *fakeStore {
	fs := &fakeStore{
		rules:      make(map[string]*schema.Rule),
		executions: make(map[string]*schema.Execution),
		updates:    make(map[string][]store.ExecutionUpdate),
	}
	for _, r := range rules {
		fs.rules[r.ID] = r
	}
	return fs
}

func (f *fakeStore) GetRule(_ context.Context, id string) (*schema.Rule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "rule %q not found", id)
	}
	return r, nil
}

func (f *fakeStore) CreateExecution(_ context.Context, e *schema.Execution) error {
	f.nextID++
	e.ID = fmt.Sprintf("exec-%d", f.nextID)
	f.executions[e.ID] = e
	return nil
}

func (f *fakeStore) UpdateExecution(_ context.Context, id string, update store.ExecutionUpdate) error {
	if _, ok := f.executions[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
	}
	f.updates[id] = append(f.updates[id], update)
	return nil
}

// recordingAction captures the interpolated config of each call.
type recordingAction struct {
	typ     string
	configs []map[string]any
	result  schema.Result
	panics  bool
}

func (a *recordingAction) Type() string     { return a.typ }
func (a *recordingAction) Describe() string { return "test action" }
func (a *recordingAction) Execute(_ context.Context, config map[string]any, _ map[string]any) schema.Result {
	if a.panics {
		panic("kaboom")
	}
	a.configs = append(a.configs, config)
	if a.result != nil {
		return a.result
	}
	return schema.Success(nil)
}

func newTestRunner(t *testing.T, fs *fakeStore, acts ...actions.Action) *Runner {
	t.Helper()
	validator, err := validation.NewRuleValidator()
	require.NoError(t, err)

	reg := actions.NewRegistry()
	for _, a := range acts {
		require.NoError(t, reg.Register(a))
	}
	return NewRunner(fs, reg, conditions.NewEvaluator(nil, nil), validator, nil, Config{})
}

func testRule(id string, conditions, actions string) *schema.Rule {
	r := &schema.Rule{
		ID:          id,
		Name:        "rule " + id,
		TriggerType: "manual",
		IsActive:    true,
	}
	if conditions != "" {
		r.Conditions = json.RawMessage(conditions)
	}
	if actions != "" {
		r.Actions = json.RawMessage(actions)
	}
	return r
}

func lastUpdate(t *testing.T, fs *fakeStore, execID string) store.ExecutionUpdate {
	t.Helper()
	updates := fs.updates[execID]
	require.Len(t, updates, 1, "execution must be updated exactly once")
	return updates[0]
}

func decodeOutput(t *testing.T, update store.ExecutionUpdate) schema.ExecutionOutput {
	t.Helper()
	var out schema.ExecutionOutput
	require.NoError(t, json.Unmarshal(update.OutputData, &out))
	return out
}

func TestInvoke_RuleNotFound(t *testing.T) {
	fs := newFakeStore()
	r := newTestRunner(t, fs)

	_, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "missing"})
	require.Error(t, err)
	assert.Empty(t, fs.executions, "no execution record for unknown rules")
}

func TestInvoke_InactiveRule(t *testing.T) {
	rule := testRule("r1", "", "")
	rule.IsActive = false
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs)

	_, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.Error(t, err)

	var rerr *schema.RuleError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, schema.ErrCodeNotFound, rerr.Code)
	assert.Empty(t, fs.executions)
}

func TestInvoke_ConditionsNotMet(t *testing.T) {
	rule := testRule("r1",
		`[{"field":"status","operator":"equals","value":"active"}]`,
		`[{"type":"test_action"}]`)
	act := &recordingAction{typ: "test_action"}
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, act)

	resp, err := r.Invoke(context.Background(), InvokeRequest{
		RuleID:      "r1",
		TriggerData: map[string]any{"status": "closed"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusSkipped, resp.Status)
	assert.Equal(t, 0, resp.ActionsExecuted)
	assert.Equal(t, "Conditions not met", resp.Reason)
	assert.Empty(t, act.configs, "no actions run on a skipped execution")

	update := lastUpdate(t, fs, resp.ExecutionID)
	assert.Equal(t, schema.ExecutionStatusSkipped, *update.Status)
	assert.Equal(t, "Conditions not met", decodeOutput(t, update).Reason)
}

func TestInvoke_ActionsRunInOrder(t *testing.T) {
	rule := testRule("r1",
		`[{"field":"status","operator":"equals","value":"active"}]`,
		`[
			{"id":"second","type":"test_action","order":2,"config":{"step":"2"}},
			{"id":"first","type":"test_action","order":1,"config":{"step":"1"}}
		]`)
	act := &recordingAction{typ: "test_action"}
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, act)

	resp, err := r.Invoke(context.Background(), InvokeRequest{
		RuleID:      "r1",
		TriggerData: map[string]any{"status": "active"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusSuccess, resp.Status)
	assert.Equal(t, 2, resp.ActionsExecuted)

	require.Len(t, act.configs, 2)
	assert.Equal(t, "1", act.configs[0]["step"])
	assert.Equal(t, "2", act.configs[1]["step"])

	out := decodeOutput(t, lastUpdate(t, fs, resp.ExecutionID))
	require.Len(t, out.Actions, 2)
	assert.Equal(t, "first", out.Actions[0].ActionID)
	assert.Equal(t, "second", out.Actions[1].ActionID)
}

func TestInvoke_ConfigInterpolated(t *testing.T) {
	rule := testRule("r1", "",
		`[{"type":"test_action","config":{"to":"{{user.email}}","greeting":"Hi {{user.name}}"}}]`)
	act := &recordingAction{typ: "test_action"}
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, act)

	_, err := r.Invoke(context.Background(), InvokeRequest{
		RuleID: "r1",
		TriggerData: map[string]any{
			"user": map[string]any{"email": "a@b.co", "name": "Ada"},
		},
	})
	require.NoError(t, err)

	require.Len(t, act.configs, 1)
	assert.Equal(t, "a@b.co", act.configs[0]["to"])
	assert.Equal(t, "Hi Ada", act.configs[0]["greeting"])
}

func TestInvoke_ActionFailureDoesNotFailExecution(t *testing.T) {
	failing := &recordingAction{typ: "failing_action", result: schema.Failure("endpoint returned 502")}
	trailing := &recordingAction{typ: "ok_action"}
	rule := testRule("r1", "",
		`[
			{"id":"a1","type":"failing_action","order":1},
			{"id":"a2","type":"ok_action","order":2}
		]`)
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, failing, trailing)

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err)

	// Per-action failures are captured in the ledger; the run still succeeds
	// and later actions still execute.
	assert.True(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusSuccess, resp.Status)
	require.Len(t, trailing.configs, 1)

	out := decodeOutput(t, lastUpdate(t, fs, resp.ExecutionID))
	require.Len(t, out.Actions, 2)
	assert.False(t, out.Actions[0].Result.OK())
	assert.Equal(t, "endpoint returned 502", out.Actions[0].Result["error"])
	assert.True(t, out.Actions[1].Result.OK())
}

func TestInvoke_UnknownActionTypeContinues(t *testing.T) {
	known := &recordingAction{typ: "known_action"}
	rule := testRule("r1", "",
		`[
			{"type":"mystery_action","order":1},
			{"type":"known_action","order":2}
		]`)
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, known)

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err)

	assert.Equal(t, schema.ExecutionStatusSuccess, resp.Status)
	require.Len(t, known.configs, 1)

	out := decodeOutput(t, lastUpdate(t, fs, resp.ExecutionID))
	require.Len(t, out.Actions, 2)
	assert.False(t, out.Actions[0].Result.OK())
	assert.Contains(t, out.Actions[0].Result["error"], "Unknown action type: mystery_action")
}

func TestInvoke_MalformedConditionsFailsExecution(t *testing.T) {
	rule := testRule("r1", `{"not":"an array"}`, `[{"type":"test_action"}]`)
	act := &recordingAction{typ: "test_action"}
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, act)

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err, "structural failures are recorded, not returned")

	assert.False(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusFailed, resp.Status)
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, act.configs)

	update := lastUpdate(t, fs, resp.ExecutionID)
	assert.Equal(t, schema.ExecutionStatusFailed, *update.Status)
	require.NotNil(t, update.ErrorMessage)
}

func TestInvoke_PanicRecoveredAsFailure(t *testing.T) {
	rule := testRule("r1", "", `[{"type":"bad_action"}]`)
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, &recordingAction{typ: "bad_action", panics: true})

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusFailed, resp.Status)
	assert.Contains(t, resp.Error, "panic")
}

func TestInvoke_PanicKeepsPartialResults(t *testing.T) {
	ok := &recordingAction{typ: "ok_action"}
	rule := testRule("r1", "",
		`[
			{"id":"a1","type":"ok_action","order":1},
			{"id":"a2","type":"bad_action","order":2}
		]`)
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs, ok, &recordingAction{typ: "bad_action", panics: true})

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusFailed, resp.Status)
	require.Len(t, ok.configs, 1)

	// The failure record keeps the results collected before the panic.
	update := lastUpdate(t, fs, resp.ExecutionID)
	assert.Equal(t, schema.ExecutionStatusFailed, *update.Status)
	out := decodeOutput(t, update)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "a1", out.Actions[0].ActionID)
	assert.True(t, out.Actions[0].Result.OK())
}

func TestInvoke_DepthGuard(t *testing.T) {
	// Rule invokes itself; the chain must stop at the depth limit.
	rule := testRule("r1", "", `[{"type":"execute_rule","config":{"rule_id":"r1"}}]`)
	fs := newFakeStore(rule)

	validator, err := validation.NewRuleValidator()
	require.NoError(t, err)
	reg := actions.NewRegistry()
	r := NewRunner(fs, reg, conditions.NewEvaluator(nil, nil), validator, nil, Config{MaxRuleDepth: 3})
	require.NoError(t, reg.Register(actions.NewExecuteRuleAction(r.NestedInvoker())))

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Len(t, fs.executions, 3, "one execution per allowed depth level")

	// The innermost execute_rule result reports the depth fault.
	out := decodeOutput(t, lastUpdate(t, fs, "exec-3"))
	require.Len(t, out.Actions, 1)
	assert.False(t, out.Actions[0].Result.OK())
	assert.Contains(t, out.Actions[0].Result["error"], "depth")
}

func TestInvoke_EmptyConditionsAndActions(t *testing.T) {
	rule := testRule("r1", "", "")
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs)

	resp, err := r.Invoke(context.Background(), InvokeRequest{RuleID: "r1"})
	require.NoError(t, err)

	// No conditions means the rule fires; no actions means an empty ledger.
	assert.True(t, resp.Success)
	assert.Equal(t, schema.ExecutionStatusSuccess, resp.Status)
	assert.Equal(t, 0, resp.ActionsExecuted)
}

func TestInvoke_RecordsTriggerMetadata(t *testing.T) {
	rule := testRule("r1", "", "")
	fs := newFakeStore(rule)
	r := newTestRunner(t, fs)

	resp, err := r.Invoke(context.Background(), InvokeRequest{
		RuleID:      "r1",
		TriggerData: map[string]any{"k": "v"},
		TriggeredBy: "api",
	})
	require.NoError(t, err)

	exec := fs.executions[resp.ExecutionID]
	require.NotNil(t, exec)
	assert.Equal(t, "r1", exec.RuleID)
	assert.Equal(t, "api", exec.TriggeredBy)
	assert.JSONEq(t, `{"k":"v"}`, string(exec.TriggerData))
}
