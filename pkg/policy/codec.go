package policy

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Provider instantiates policy kinds from their serialized definition. A
// single provider may serve several kinds; the built-in provider serves all
// six built-in policies.
type Provider interface {
	// Kinds returns the policy identifiers this provider can instantiate.
	Kinds() []string

	// Decode builds a policy instance of the given kind from its serialized
	// form. The raw message is the whole policy object including the
	// identifier and name fields.
	Decode(kind string, raw json.RawMessage) (Policy, error)
}

// Codec routes serialized policies to the provider registered for their
// kind, and serializes live policies back to the persisted shape.
type Codec struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewCodec creates a codec with the built-in policy kinds pre-registered.
func NewCodec() *Codec {
	c := &Codec{providers: make(map[string]Provider)}
	if err := c.Register(builtinProvider{}); err != nil {
		panic(err)
	}
	return c
}

// Register adds a provider for its declared kinds.
func (c *Codec) Register(p Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, kind := range p.Kinds() {
		if _, dup := c.providers[kind]; dup {
			return fmt.Errorf("policy: provider for kind %q registered twice", kind)
		}
		c.providers[kind] = p
	}
	return nil
}

// policyHeader is the common prefix of every serialized policy.
type policyHeader struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// Decode deserializes one policy object, dispatching on its identifier.
func (c *Codec) Decode(raw json.RawMessage) (Policy, error) {
	var header policyHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("policy: malformed policy object: %w", err)
	}

	c.mu.RLock()
	p, ok := c.providers[header.Identifier]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("policy: no provider for kind %q", header.Identifier)
	}
	return p.Decode(header.Identifier, raw)
}

// Encode serializes a policy to the persisted shape: the descriptor's
// identifier and name plus the policy's own fields.
func (c *Codec) Encode(p Policy) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("policy: failed to marshal policy: %w", err)
	}

	merged := make(map[string]interface{})
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, fmt.Errorf("policy: failed to remarshal policy: %w", err)
	}
	d := p.Descriptor()
	merged["identifier"] = d.Identifier
	merged["name"] = d.Name

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("policy: failed to marshal policy: %w", err)
	}
	return out, nil
}

// builtinProvider instantiates the six built-in policy kinds.
type builtinProvider struct{}

func (builtinProvider) Kinds() []string {
	return []string{
		PolicyDenyAll,
		PolicyAllowAll,
		PolicyHasRole,
		PolicyIsPlatformAdmin,
		PolicyIsResourceOwner,
		PolicyIsAllowedBySharing,
	}
}

func (builtinProvider) Decode(kind string, raw json.RawMessage) (Policy, error) {
	switch kind {
	case PolicyDenyAll:
		return DenyAll{}, nil
	case PolicyAllowAll:
		return AllowAll{}, nil
	case PolicyHasRole:
		var p HasRole
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("policy: malformed has-role policy: %w", err)
		}
		if p.Role == "" {
			return nil, fmt.Errorf("policy: has-role policy requires a role")
		}
		return p, nil
	case PolicyIsPlatformAdmin:
		return IsPlatformAdmin{}, nil
	case PolicyIsResourceOwner:
		return IsResourceOwner{}, nil
	case PolicyIsAllowedBySharing:
		return IsAllowedBySharing{}, nil
	default:
		return nil, fmt.Errorf("policy: unknown built-in kind %q", kind)
	}
}
