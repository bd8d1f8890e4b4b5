package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/helixops/ruleflow/pkg/schema"
)

// ExprEngine evaluates expr-lang programs against trigger data. It backs the
// "expression" condition operator. Compiled programs are cached and reused;
// safe for concurrent use.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new ExprEngine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

// Evaluate compiles (or reuses) the expression and runs it with env as the
// variable scope. Trigger data keys are addressed directly, e.g.
// "company.status == 'active' && amount > 100".
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, env map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if env == nil {
		env = map[string]any{}
	}

	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "expression evaluation failed: %v", err).WithCause(err)
	}
	return out, nil
}

// EvaluateBool evaluates the expression and coerces the outcome to a bool.
// A non-boolean result is an error, mirroring condition semantics where only
// a true boolean passes.
func (e *ExprEngine) EvaluateBool(ctx context.Context, expression string, env map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution, "expression %q returned %T, want bool", expression, out)
	}
	return b, nil
}

func (e *ExprEngine) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "compile expression %q: %v", expression, err).WithCause(err)
	}

	e.mu.Lock()
	e.cache[expression] = program
	e.mu.Unlock()
	return program, nil
}

// CacheSize returns the number of compiled programs held.
func (e *ExprEngine) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
