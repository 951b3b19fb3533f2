package realm

import (
	"context"

	"github.com/platinummonkey/citadel/pkg/identity"
)

// DefaultIdentifier is the identifier of the built-in fallback realm.
const DefaultIdentifier = "default"

// Default is the development/no-auth fallback realm: it accepts any non-empty
// login/password pair, grants no roles or groups, and rejects every directory
// mutation as unsupported. It is not a security realm.
type Default struct{}

// NewDefault creates the fallback realm.
func NewDefault() *Default {
	return &Default{}
}

// Identifier implements Realm.
func (d *Default) Identifier() string { return DefaultIdentifier }

// Authenticate accepts any non-empty credentials and synthesizes an identity
// whose ID and display name are the login itself.
func (d *Default) Authenticate(ctx context.Context, login, password string) (*identity.User, error) {
	if login == "" || password == "" {
		return nil, nil
	}
	return &identity.User{ID: login, DisplayName: login}, nil
}

// GetUser resolves any identifier to a synthetic identity. The fallback realm
// has no user store, so a login that once authenticated always resolves.
func (d *Default) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	return &identity.User{ID: userID, DisplayName: userID}, nil
}

// CheckHasRole always reports false: the fallback realm grants no roles.
func (d *Default) CheckHasRole(ctx context.Context, userID, roleID string) (bool, error) {
	return false, nil
}

// CheckIsInGroup always reports false.
func (d *Default) CheckIsInGroup(ctx context.Context, userID, groupID string) (bool, error) {
	return false, nil
}

func (d *Default) CreateUser(ctx context.Context, login, displayName, password string) error {
	return ErrUnsupported
}

func (d *Default) DeleteUser(ctx context.Context, userID string) error { return ErrUnsupported }

func (d *Default) CreateGroup(ctx context.Context, groupID string) error { return ErrUnsupported }

func (d *Default) DeleteGroup(ctx context.Context, groupID string) error { return ErrUnsupported }

func (d *Default) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return ErrUnsupported
}

func (d *Default) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	return ErrUnsupported
}

func (d *Default) CreateRole(ctx context.Context, roleID string) error { return ErrUnsupported }

func (d *Default) DeleteRole(ctx context.Context, roleID string) error { return ErrUnsupported }

func (d *Default) AssignRole(ctx context.Context, userID, roleID string) error {
	return ErrUnsupported
}

func (d *Default) UnassignRole(ctx context.Context, userID, roleID string) error {
	return ErrUnsupported
}

func (d *Default) AddRoleImplication(ctx context.Context, roleID, impliedID string) error {
	return ErrUnsupported
}

func (d *Default) RemoveRoleImplication(ctx context.Context, roleID, impliedID string) error {
	return ErrUnsupported
}
