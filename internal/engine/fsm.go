package engine

import (
	"github.com/helixops/ruleflow/pkg/schema"
)

// checkTransition guards the execution lifecycle: a record is created
// running and moved exactly once to a terminal status.
func checkTransition(from, to schema.ExecutionStatus) error {
	if !schema.IsValidExecutionTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"cannot transition execution from %s to %s", from, to)
	}
	return nil
}
