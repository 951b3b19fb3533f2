package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/platinummonkey/citadel/pkg/observability"
)

var (
	// ErrParameterOutOfRange is returned when a policy is assigned to an
	// action that did not declare its kind as acceptable.
	ErrParameterOutOfRange = errors.New("policy: policy not acceptable for action")

	// ErrStorage wraps persistence failures of the policy configuration.
	ErrStorage = errors.New("policy: storage failure")
)

// storedPart is one action/policy pair in the persisted configuration.
type storedPart struct {
	Action Action          `json:"action"`
	Policy json.RawMessage `json:"policy"`
}

// configFile is the persisted configuration shape.
type configFile struct {
	Parts []storedPart `json:"parts"`
}

// Configuration maps each secured action to its chosen policy and persists
// the mapping as a single JSON file.
//
// Entries for actions not yet known to the running process are retained
// verbatim and resolved lazily once the action registers, so a configuration
// written by a fully-loaded platform survives a partial startup.
type Configuration struct {
	mu      sync.Mutex
	path    string
	codec   *Codec
	actions *Registry
	entries map[string]Policy
	pending map[string]storedPart
	log     *observability.Logger
}

// NewConfiguration creates an empty configuration persisted at path.
func NewConfiguration(path string, actions *Registry, codec *Codec, log *observability.Logger) *Configuration {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Configuration{
		path:    path,
		codec:   codec,
		actions: actions,
		entries: make(map[string]Policy),
		pending: make(map[string]storedPart),
		log:     log,
	}
}

// Load reads the persisted configuration. A missing file is an empty
// configuration; individual malformed parts are logged and skipped rather
// than aborting the load.
func (c *Configuration) Load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("policy: malformed configuration file %s: %w", c.path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, part := range file.Parts {
		if part.Action.Identifier == "" {
			c.log.Warnf("skipping configuration part with empty action identifier")
			continue
		}
		if _, known := c.actions.Lookup(part.Action.Identifier); !known {
			// Retained as-is until the action registers.
			c.pending[part.Action.Identifier] = part
			continue
		}
		if err := c.adoptLocked(part); err != nil {
			c.log.WithError(err).Warnf("skipping configuration for action %q", part.Action.Identifier)
		}
	}
	return nil
}

// adoptLocked decodes and validates a stored part against the live action.
func (c *Configuration) adoptLocked(part storedPart) error {
	action, ok := c.actions.Lookup(part.Action.Identifier)
	if !ok {
		return fmt.Errorf("policy: action %q not registered", part.Action.Identifier)
	}
	p, err := c.codec.Decode(part.Policy)
	if err != nil {
		return err
	}
	if !action.Accepts(p.Descriptor().Identifier) {
		return fmt.Errorf("%w: %q does not accept %q",
			ErrParameterOutOfRange, action.Identifier, p.Descriptor().Identifier)
	}
	c.entries[action.Identifier] = p
	return nil
}

// Resolve returns the configured policy for the action, or nil when none is
// configured. Pending entries whose action has registered since the load are
// resolved here.
func (c *Configuration) Resolve(actionID string) Policy {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.entries[actionID]; ok {
		return p
	}
	part, ok := c.pending[actionID]
	if !ok {
		return nil
	}
	if _, known := c.actions.Lookup(actionID); !known {
		return nil
	}
	delete(c.pending, actionID)
	if err := c.adoptLocked(part); err != nil {
		c.log.WithError(err).Warnf("dropping pending configuration for action %q", actionID)
		return nil
	}
	return c.entries[actionID]
}

// Put assigns a policy to an action and persists the configuration before
// returning. The policy must be one of the descriptors the action declared
// as acceptable. On a persistence failure the in-memory mapping is rolled
// back so the two stores never diverge.
func (c *Configuration) Put(action *Action, p Policy) error {
	if action == nil || p == nil {
		return fmt.Errorf("policy: action and policy are required")
	}
	if !action.Accepts(p.Descriptor().Identifier) {
		return fmt.Errorf("%w: %q does not accept %q",
			ErrParameterOutOfRange, action.Identifier, p.Descriptor().Identifier)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had := c.entries[action.Identifier]
	pendingPrev, hadPending := c.pending[action.Identifier]
	c.entries[action.Identifier] = p
	// A stale pending part for the same action would shadow this assignment
	// on the next load.
	delete(c.pending, action.Identifier)
	if err := c.saveLocked(); err != nil {
		if had {
			c.entries[action.Identifier] = prev
		} else {
			delete(c.entries, action.Identifier)
		}
		if hadPending {
			c.pending[action.Identifier] = pendingPrev
		}
		return err
	}
	return nil
}

// Remove drops the policy assignment for an action. Removing an action that
// has no assignment is not an error.
func (c *Configuration) Remove(actionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, had := c.entries[actionID]
	pendingPrev, hadPending := c.pending[actionID]
	if !had && !hadPending {
		return nil
	}
	delete(c.entries, actionID)
	delete(c.pending, actionID)
	if err := c.saveLocked(); err != nil {
		if had {
			c.entries[actionID] = prev
		}
		if hadPending {
			c.pending[actionID] = pendingPrev
		}
		return err
	}
	return nil
}

// Snapshot returns the currently resolved action → policy assignments.
func (c *Configuration) Snapshot() map[string]Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Policy, len(c.entries))
	for id, p := range c.entries {
		out[id] = p
	}
	return out
}

// saveLocked writes the configuration file: all resolved entries plus the
// still-pending parts, so unresolved assignments are never lost on save.
func (c *Configuration) saveLocked() error {
	var file configFile
	for id, p := range c.entries {
		action, ok := c.actions.Lookup(id)
		if !ok {
			continue
		}
		raw, err := c.codec.Encode(p)
		if err != nil {
			return err
		}
		file.Parts = append(file.Parts, storedPart{Action: *action, Policy: raw})
	}
	for _, part := range c.pending {
		file.Parts = append(file.Parts, part)
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: failed to marshal configuration: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}
