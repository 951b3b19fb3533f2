package policy

import (
	"context"
	"errors"

	"github.com/platinummonkey/citadel/pkg/identity"
)

// Built-in policy identifiers.
const (
	PolicyDenyAll            = "deny-all"
	PolicyAllowAll           = "allow-all"
	PolicyHasRole            = "has-role"
	PolicyIsPlatformAdmin    = "is-platform-admin"
	PolicyIsResourceOwner    = "is-resource-owner"
	PolicyIsAllowedBySharing = "is-allowed-by-sharing"
)

// ErrServiceUnavailable is returned when a policy needs a collaborator (the
// realm or the secured resource manager) that is not wired into the engine.
var ErrServiceUnavailable = errors.New("policy: required service unavailable")

// Built-in descriptors, for use in action declarations.
var (
	DescDenyAll         = Descriptor{Identifier: PolicyDenyAll, Name: "Deny all"}
	DescAllowAll        = Descriptor{Identifier: PolicyAllowAll, Name: "Allow all"}
	DescHasRole         = Descriptor{Identifier: PolicyHasRole, Name: "Has role", Params: []Param{{Name: "role", Type: "string"}}}
	DescIsPlatformAdmin = Descriptor{Identifier: PolicyIsPlatformAdmin, Name: "Is platform administrator"}
	DescIsResourceOwner = Descriptor{Identifier: PolicyIsResourceOwner, Name: "Is resource owner"}
	DescIsAllowedBySharing = Descriptor{
		Identifier: PolicyIsAllowedBySharing,
		Name:       "Is allowed by resource sharing",
	}
)

// RoleChecker is the slice of the realm contract the policies need.
type RoleChecker interface {
	CheckHasRole(ctx context.Context, userID, roleID string) (bool, error)
}

// ResourceAccess is the slice of the secured resource manager the
// resource-scoped policies need.
type ResourceAccess interface {
	// IsOwner reports whether the user is in the resource's owner set.
	IsOwner(ctx context.Context, userID, resourceID string) (bool, error)

	// IsShared reports whether the user is an owner or matched by any
	// sharing rule on the resource.
	IsShared(ctx context.Context, user *identity.User, resourceID string) (bool, error)
}

// Env carries the collaborators policies evaluate against. Policies
// themselves stay pure data so they can round-trip through the persisted
// configuration.
type Env struct {
	Roles     RoleChecker
	Resources ResourceAccess
}

// Policy decides whether an identity may perform an action. The data
// argument carries optional context (the target resource or its identifier);
// policies that do not use context data ignore it, which reproduces the
// two-argument evaluation form.
type Policy interface {
	Descriptor() Descriptor
	Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error)
}

// DenyAll authorizes nobody.
type DenyAll struct{}

func (DenyAll) Descriptor() Descriptor { return DescDenyAll }

func (DenyAll) Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error) {
	return false, nil
}

// AllowAll authorizes any authenticated identity.
type AllowAll struct{}

func (AllowAll) Descriptor() Descriptor { return DescAllowAll }

func (AllowAll) Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error) {
	return !user.IsAnonymous(), nil
}

// HasRole authorizes identities holding the configured role.
type HasRole struct {
	Role string `json:"role"`
}

func (p HasRole) Descriptor() Descriptor { return DescHasRole }

func (p HasRole) Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error) {
	if env.Roles == nil {
		return false, ErrServiceUnavailable
	}
	return env.Roles.CheckHasRole(ctx, user.ID, p.Role)
}

// IsPlatformAdmin authorizes holders of the platform administrator role. It
// is the has-role policy fixed to the admin role.
type IsPlatformAdmin struct{}

func (IsPlatformAdmin) Descriptor() Descriptor { return DescIsPlatformAdmin }

func (IsPlatformAdmin) Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error) {
	return HasRole{Role: identity.RolePlatformAdmin}.Authorize(ctx, env, user, action, data)
}

// IsResourceOwner authorizes identities in the target resource's owner set.
// The context data must carry the resource or its identifier.
type IsResourceOwner struct{}

func (IsResourceOwner) Descriptor() Descriptor { return DescIsResourceOwner }

func (IsResourceOwner) Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error) {
	if env.Resources == nil {
		return false, ErrServiceUnavailable
	}
	id, ok := resourceIDFrom(data)
	if !ok {
		return false, nil
	}
	return env.Resources.IsOwner(ctx, user.ID, id)
}

// IsAllowedBySharing authorizes owners and identities matched by any sharing
// rule on the target resource.
type IsAllowedBySharing struct{}

func (IsAllowedBySharing) Descriptor() Descriptor { return DescIsAllowedBySharing }

func (IsAllowedBySharing) Authorize(ctx context.Context, env Env, user *identity.User, action *Action, data interface{}) (bool, error) {
	if env.Resources == nil {
		return false, ErrServiceUnavailable
	}
	id, ok := resourceIDFrom(data)
	if !ok {
		return false, nil
	}
	return env.Resources.IsShared(ctx, user, id)
}

// resourceIDFrom extracts a resource identifier from policy context data:
// either a plain identifier string or anything exposing ResourceID().
func resourceIDFrom(data interface{}) (string, bool) {
	switch v := data.(type) {
	case string:
		return v, v != ""
	case interface{ ResourceID() string }:
		return v.ResourceID(), v.ResourceID() != ""
	default:
		return "", false
	}
}
