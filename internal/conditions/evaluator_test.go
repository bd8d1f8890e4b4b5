package conditions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixops/ruleflow/pkg/schema"
)

func newTestEvaluator() *Evaluator {
	return NewEvaluator(nil, nil)
}

func cond(field, op string, value any) schema.Condition {
	return schema.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluate_EmptyConditionsIsTrue(t *testing.T) {
	e := newTestEvaluator()
	assert.True(t, e.Evaluate(context.Background(), nil, map[string]any{}))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{}, nil))
}

func TestEvaluate_Equals(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"status": "active", "amount": float64(100)}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("status", schema.OpEquals, "active")}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("status", schema.OpEquals, "closed")}, data))

	// Numeric coercion: 100 == "100" and 100 == 100.0.
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpEquals, "100")}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpEquals, 100)}, data))
}

func TestEvaluate_NotEquals(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"status": "active"}
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("status", schema.OpNotEquals, "closed")}, data))
}

func TestEvaluate_StringOperators(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"email": "Ops@Example.COM"}

	// Case-insensitive substring matching.
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpContains, "example")}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpNotContains, "example")}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpStartsWith, "ops@")}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpEndsWith, ".com")}, data))
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"amount": float64(150), "note": "abc"}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpGreaterThan, 100)}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpLessThan, 100)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpGreaterOrEqual, 150)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpLessOrEqual, 150)}, data))

	// Non-numeric operand resolves to false, not an error.
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("note", schema.OpGreaterThan, 5)}, data))
}

func TestEvaluate_EmptyAndNull(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"empty": "", "set": "x", "null": nil}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("empty", schema.OpIsEmpty, nil)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("missing", schema.OpIsEmpty, nil)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("null", schema.OpIsEmpty, nil)}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("set", schema.OpIsEmpty, nil)}, data))

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("set", schema.OpIsNotEmpty, nil)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("null", schema.OpIsNull, nil)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("missing", schema.OpIsNull, nil)}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("set", schema.OpIsNotNull, nil)}, data))
}

func TestEvaluate_InList(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"tier": "gold", "n": float64(2)}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("tier", schema.OpInList, []any{"silver", "gold"})}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("tier", schema.OpInList, []any{"bronze"})}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("n", schema.OpInList, []any{1, 2, 3})}, data))

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("tier", schema.OpNotInList, []any{"bronze"})}, data))

	// Non-list value: in_list is false, not_in_list is true.
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("tier", schema.OpInList, "gold")}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("tier", schema.OpNotInList, "gold")}, data))
}

func TestEvaluate_MatchesRegex(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"email": "ops@example.com"}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpMatchesRegex, `^[a-z]+@`)}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpMatchesRegex, `^\d+$`)}, data))

	// Invalid pattern resolves to false.
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("email", schema.OpMatchesRegex, `([`)}, data))
}

func TestEvaluate_Between(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"amount": float64(15)}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpBetween, []any{10, 20})}, data))
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpBetween, []any{15, 15})}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpBetween, []any{16, 20})}, data))

	// Malformed bounds resolve to false.
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpBetween, []any{10})}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("amount", schema.OpBetween, "10-20")}, data))
}

func TestEvaluate_Expression(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"amount": 150, "status": "active"}

	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{
		cond("", schema.OpExpression, `amount > 100 && status == "active"`),
	}, data))

	// Faulty or non-boolean expressions resolve to false.
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("", schema.OpExpression, `amount +`)}, data))
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("", schema.OpExpression, 42)}, data))
}

func TestEvaluate_UnknownOperatorIsFalse(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"x": 1}
	assert.False(t, e.Evaluate(context.Background(), []schema.Condition{cond("x", "approximately", 1)}, data))
}

func TestEvaluate_NestedFieldPath(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"customer": map[string]any{"tier": "gold"}}
	assert.True(t, e.Evaluate(context.Background(), []schema.Condition{cond("customer.tier", schema.OpEquals, "gold")}, data))
}

func TestEvaluate_LeftFold(t *testing.T) {
	e := newTestEvaluator()
	data := map[string]any{"a": "no", "b": "yes", "c": "no"}

	// ((A OR B) AND C): A=false, B=true, C=false -> false.
	conds := []schema.Condition{
		{Field: "a", Operator: schema.OpEquals, Value: "yes", Logic: schema.LogicOr},
		{Field: "b", Operator: schema.OpEquals, Value: "yes", Logic: schema.LogicAnd},
		{Field: "c", Operator: schema.OpEquals, Value: "yes"},
	}
	assert.False(t, e.Evaluate(context.Background(), conds, data))

	// ((A OR B) OR C) -> true.
	conds[1].Logic = schema.LogicOr
	assert.True(t, e.Evaluate(context.Background(), conds, data))

	// Missing logic defaults to AND: (B AND C) -> false.
	conds2 := []schema.Condition{
		{Field: "b", Operator: schema.OpEquals, Value: "yes"},
		{Field: "c", Operator: schema.OpEquals, Value: "yes"},
	}
	assert.False(t, e.Evaluate(context.Background(), conds2, data))
}
