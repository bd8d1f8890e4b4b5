package actions

import (
	"sort"
	"sync"

	"github.com/helixops/ruleflow/pkg/schema"
)

// Registry is a thread-safe mapping from action type to executor. New action
// types are added by registering an implementation, not by editing a
// dispatcher.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register adds an action to the registry. Returns error on duplicate type.
func (r *Registry) Register(action Action) error {
	if action == nil {
		return schema.NewError(schema.ErrCodeValidation, "action is nil")
	}
	typ := action.Type()
	if typ == "" {
		return schema.NewError(schema.ErrCodeValidation, "action type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[typ]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", typ)
	}

	r.actions[typ] = action
	return nil
}

// Get retrieves an action by type.
func (r *Registry) Get(typ string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[typ]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "Unknown action type: %s", typ)
	}
	return action, nil
}

// Has checks if an action type is registered.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[typ]
	return ok
}

// Count returns the number of registered actions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}

// List returns info for all registered actions, sorted by type.
func (r *Registry) List() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(r.actions))
	for _, a := range r.actions {
		infos = append(infos, ActionInfo{Type: a.Type(), Description: a.Describe()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Type < infos[j].Type
	})
	return infos
}
