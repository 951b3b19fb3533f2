// Package resource implements the secured-resource ownership and sharing
// model: every platform entity that carries an owner set and sharing rules
// has a descriptor managed here, persisted one file per resource.
package resource

import (
	"context"
	"errors"

	"github.com/platinummonkey/citadel/pkg/identity"
)

var (
	// ErrNotFound is returned when no descriptor (or sharing rule) exists
	// for the resource.
	ErrNotFound = errors.New("resource: not found")

	// ErrAlreadyExists is returned when creating a descriptor for a
	// resource that already has one.
	ErrAlreadyExists = errors.New("resource: descriptor already exists")

	// ErrAlreadyOwner is returned when adding an identity that is already
	// in the owner set.
	ErrAlreadyOwner = errors.New("resource: already an owner")

	// ErrLastOwner is returned when removing the last remaining owner.
	// The owner set can never become empty.
	ErrLastOwner = errors.New("resource: cannot remove last owner")

	// ErrStorage wraps descriptor persistence failures.
	ErrStorage = errors.New("resource: storage failure")

	// ErrServiceUnavailable is returned when a required collaborator (the
	// realm directory) is not wired.
	ErrServiceUnavailable = errors.New("resource: required service unavailable")

	// ErrUnauthenticated is returned from gated operations when no
	// identity is bound to the calling context.
	ErrUnauthenticated = errors.New("resource: unauthenticated")

	// ErrUnauthorized is returned from gated operations when the bound
	// identity fails the management action's policy.
	ErrUnauthorized = errors.New("resource: unauthorized")
)

// RuleType discriminates the sharing rule variants.
type RuleType string

const (
	RuleEverybody RuleType = "Everybody"
	RuleUser      RuleType = "User"
	RuleGroup     RuleType = "Group"
	RuleRole      RuleType = "Role"
)

// Directory is the slice of the realm contract sharing rules evaluate
// against.
type Directory interface {
	CheckHasRole(ctx context.Context, userID, roleID string) (bool, error)
	CheckIsInGroup(ctx context.Context, userID, groupID string) (bool, error)
}

// SharingRule grants resource access to everybody, one user, one group, or
// holders of one role. Exactly one of the payload fields is set, matching
// the Type.
type SharingRule struct {
	Type  RuleType `json:"type"`
	User  string   `json:"user,omitempty"`
	Group string   `json:"group,omitempty"`
	Role  string   `json:"role,omitempty"`
}

// ShareWithEverybody builds an everybody rule.
func ShareWithEverybody() SharingRule { return SharingRule{Type: RuleEverybody} }

// ShareWithUser builds a single-user rule.
func ShareWithUser(userID string) SharingRule { return SharingRule{Type: RuleUser, User: userID} }

// ShareWithGroup builds a group rule.
func ShareWithGroup(groupID string) SharingRule { return SharingRule{Type: RuleGroup, Group: groupID} }

// ShareWithRole builds a role rule.
func ShareWithRole(roleID string) SharingRule { return SharingRule{Type: RuleRole, Role: roleID} }

// Equal reports whether two rules are the same grant.
func (r SharingRule) Equal(other SharingRule) bool {
	return r == other
}

// Allows evaluates the rule for the identity against the realm directory.
func (r SharingRule) Allows(ctx context.Context, user *identity.User, dir Directory) (bool, error) {
	switch r.Type {
	case RuleEverybody:
		return true, nil
	case RuleUser:
		return user != nil && user.ID == r.User, nil
	case RuleGroup:
		if dir == nil {
			return false, ErrServiceUnavailable
		}
		if user == nil {
			return false, nil
		}
		return dir.CheckIsInGroup(ctx, user.ID, r.Group)
	case RuleRole:
		if dir == nil {
			return false, ErrServiceUnavailable
		}
		if user == nil {
			return false, nil
		}
		return dir.CheckHasRole(ctx, user.ID, r.Role)
	default:
		return false, nil
	}
}

// Descriptor holds the ownership and sharing state of one secured resource.
type Descriptor struct {
	Identifier string        `json:"identifier"`
	Name       string        `json:"name"`
	Owners     []string      `json:"owner"`
	Sharing    []SharingRule `json:"sharing"`
}

// ResourceID lets a descriptor travel as policy context data.
func (d *Descriptor) ResourceID() string { return d.Identifier }

// IsOwner reports whether the identity is in the owner set.
func (d *Descriptor) IsOwner(userID string) bool {
	for _, o := range d.Owners {
		if o == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. The manager hands out and mutates copies so the
// cached descriptor never changes until persistence has succeeded.
func (d *Descriptor) Clone() *Descriptor {
	out := &Descriptor{
		Identifier: d.Identifier,
		Name:       d.Name,
		Owners:     make([]string, len(d.Owners)),
		Sharing:    make([]SharingRule, len(d.Sharing)),
	}
	copy(out.Owners, d.Owners)
	copy(out.Sharing, d.Sharing)
	return out
}
