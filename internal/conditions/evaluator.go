package conditions

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/helixops/ruleflow/internal/expressions"
	"github.com/helixops/ruleflow/pkg/schema"
)

// Evaluator folds a rule's ordered conditions into one boolean.
// Condition-level faults (unknown operator, bad regex, failing expression)
// resolve to false and are logged; they never abort the run.
type Evaluator struct {
	exprs  *expressions.ExprEngine
	logger *slog.Logger

	regexMu    sync.RWMutex
	regexCache map[string]*regexp.Regexp
}

// NewEvaluator creates an Evaluator. A nil logger falls back to slog.Default.
func NewEvaluator(exprs *expressions.ExprEngine, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if exprs == nil {
		exprs = expressions.NewExprEngine()
	}
	return &Evaluator{
		exprs:      exprs,
		logger:     logger,
		regexCache: make(map[string]*regexp.Regexp),
	}
}

// Evaluate left-folds the conditions against the trigger data. A condition's
// logic field joins its result to the NEXT condition (AND when absent), so
// [A(logic=OR), B(logic=AND), C] folds as ((A OR B) AND C). Empty list is true.
func (e *Evaluator) Evaluate(ctx context.Context, conds []schema.Condition, data map[string]any) bool {
	if len(conds) == 0 {
		return true
	}

	result := e.evalOne(ctx, conds[0], data)
	for i := 1; i < len(conds); i++ {
		next := e.evalOne(ctx, conds[i], data)
		if conds[i-1].Logic == schema.LogicOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

// evalOne evaluates a single condition.
func (e *Evaluator) evalOne(ctx context.Context, c schema.Condition, data map[string]any) bool {
	val, found := expressions.LookupPath(data, c.Field)

	switch c.Operator {
	case schema.OpEquals:
		return looseEquals(val, c.Value)
	case schema.OpNotEquals:
		return !looseEquals(val, c.Value)
	case schema.OpContains:
		return strings.Contains(foldCase(val), foldCase(c.Value))
	case schema.OpNotContains:
		return !strings.Contains(foldCase(val), foldCase(c.Value))
	case schema.OpStartsWith:
		return strings.HasPrefix(foldCase(val), foldCase(c.Value))
	case schema.OpEndsWith:
		return strings.HasSuffix(foldCase(val), foldCase(c.Value))
	case schema.OpGreaterThan:
		a, b, ok := numericPair(val, c.Value)
		return ok && a > b
	case schema.OpLessThan:
		a, b, ok := numericPair(val, c.Value)
		return ok && a < b
	case schema.OpGreaterOrEqual:
		a, b, ok := numericPair(val, c.Value)
		return ok && a >= b
	case schema.OpLessOrEqual:
		a, b, ok := numericPair(val, c.Value)
		return ok && a <= b
	case schema.OpIsEmpty:
		return isEmpty(val, found)
	case schema.OpIsNotEmpty:
		return !isEmpty(val, found)
	case schema.OpIsNull:
		return !found || val == nil
	case schema.OpIsNotNull:
		return found && val != nil
	case schema.OpInList:
		list, ok := c.Value.([]any)
		return ok && inList(val, list)
	case schema.OpNotInList:
		list, ok := c.Value.([]any)
		if !ok {
			return true
		}
		return !inList(val, list)
	case schema.OpMatchesRegex:
		return e.matchesRegex(val, c.Value)
	case schema.OpBetween:
		return between(val, c.Value)
	case schema.OpExpression:
		return e.matchesExpression(ctx, c, data)
	default:
		e.logger.Warn("unknown condition operator",
			slog.String("operator", c.Operator),
			slog.String("field", c.Field),
		)
		return false
	}
}

// matchesRegex treats the condition value as a pattern. Invalid patterns
// resolve to false.
func (e *Evaluator) matchesRegex(val, pattern any) bool {
	p := toString(pattern)

	e.regexMu.RLock()
	re, ok := e.regexCache[p]
	e.regexMu.RUnlock()

	if !ok {
		var err error
		re, err = regexp.Compile(p)
		if err != nil {
			e.logger.Warn("invalid condition regex", slog.String("pattern", p), slog.String("error", err.Error()))
			return false
		}
		e.regexMu.Lock()
		e.regexCache[p] = re
		e.regexMu.Unlock()
	}

	return re.MatchString(toString(val))
}

// matchesExpression evaluates the condition value as an expr program over the
// trigger data. Compile or runtime faults resolve to false.
func (e *Evaluator) matchesExpression(ctx context.Context, c schema.Condition, data map[string]any) bool {
	src, ok := c.Value.(string)
	if !ok || src == "" {
		e.logger.Warn("expression condition without a string value", slog.String("field", c.Field))
		return false
	}
	result, err := e.exprs.EvaluateBool(ctx, src, data)
	if err != nil {
		e.logger.Warn("expression condition failed",
			slog.String("expression", src),
			slog.String("error", err.Error()),
		)
		return false
	}
	return result
}

// looseEquals compares after coercion: numerically when both sides coerce to
// numbers, otherwise by stringified value.
func looseEquals(a, b any) bool {
	if na, ok := toFloat(a); ok {
		if nb, ok := toFloat(b); ok {
			return na == nb
		}
	}
	return toString(a) == toString(b)
}

func inList(val any, list []any) bool {
	for _, item := range list {
		if looseEquals(val, item) {
			return true
		}
	}
	return false
}

// between checks a numeric inclusive [low, high] range.
func between(val, bounds any) bool {
	pair, ok := bounds.([]any)
	if !ok || len(pair) != 2 {
		return false
	}
	v, okV := toFloat(val)
	low, okL := toFloat(pair[0])
	high, okH := toFloat(pair[1])
	return okV && okL && okH && v >= low && v <= high
}

// isEmpty is true for absent, nil, or empty-string values.
func isEmpty(val any, found bool) bool {
	if !found || val == nil {
		return true
	}
	s, ok := val.(string)
	return ok && s == ""
}

func numericPair(a, b any) (float64, float64, bool) {
	na, okA := toFloat(a)
	nb, okB := toFloat(b)
	return na, nb, okA && okB
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toString(v any) string {
	return expressions.Stringify(v)
}

func foldCase(v any) string {
	return strings.ToLower(toString(v))
}
