// Package policy implements the action-policy resolution engine: named
// secured actions, the policy strategies that guard them, and the persisted
// configuration mapping each action to its chosen policy.
package policy

import (
	"fmt"
	"sync"
)

// Param describes one typed parameter of a policy descriptor, for example
// the role identifier of the has-role policy.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Descriptor identifies a policy kind an action is willing to accept.
type Descriptor struct {
	Identifier string  `json:"identifier"`
	Name       string  `json:"name"`
	Params     []Param `json:"params,omitempty"`
}

// Action is a named, policy-guarded operation exposed by some platform
// component. Actions are declared once at startup and are immutable
// afterwards.
type Action struct {
	Identifier string       `json:"identifier"`
	Name       string       `json:"name"`
	Policies   []Descriptor `json:"policies"`
}

// Accepts reports whether the action declared the policy kind as acceptable.
func (a *Action) Accepts(policyID string) bool {
	for _, d := range a.Policies {
		if d.Identifier == policyID {
			return true
		}
	}
	return false
}

// Registry is the process-wide secured-action registry. Services register
// their actions at startup; the registry is effectively read-only afterwards
// but stays safe under concurrent registration and lookup.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register adds an action. Identifiers are globally unique; re-registering
// one is a wiring error.
func (r *Registry) Register(a *Action) error {
	if a.Identifier == "" {
		return fmt.Errorf("policy: action identifier must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.actions[a.Identifier]; dup {
		return fmt.Errorf("policy: action %q registered twice", a.Identifier)
	}
	r.actions[a.Identifier] = a
	return nil
}

// MustRegister registers an action and panics on failure. Intended for
// startup wiring where a duplicate identifier is a programming error.
func (r *Registry) MustRegister(a *Action) *Action {
	if err := r.Register(a); err != nil {
		panic(err)
	}
	return a
}

// Lookup returns the action registered under the identifier.
func (r *Registry) Lookup(identifier string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[identifier]
	return a, ok
}

// List returns every registered action.
func (r *Registry) List() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	return out
}
