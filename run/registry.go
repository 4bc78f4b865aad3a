package run

import (
	"encoding/json"
	"sync"
)

// Handler is a user workflow function: given the per-run Context and the
// decoded trigger payload, it returns a JSON-serializable output or an
// error.
type Handler func(ctx *Context, event json.RawMessage) (any, error)

// Definition binds a workflow id to its trigger schema and handler.
type Definition struct {
	ID      string
	Name    string
	Schema  json.RawMessage // optional; nil skips validation
	Handler Handler
}

// Registry maps workflow ids to their Definition, looked up on every
// inbound TRIGGER_WORKFLOW.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds or replaces def.
func (r *Registry) Register(def *Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
}

// Lookup returns the Definition for workflowID, if any.
func (r *Registry) Lookup(workflowID string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[workflowID]
	return def, ok
}
