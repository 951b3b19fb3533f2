// Package realm provides the pluggable user/group/role directory behind the
// security kernel.
//
// A realm authenticates login/password pairs and answers role and group
// membership questions. Realms are registered by identifier in a process-wide
// registry and selected once, lazily, from configuration; directory backends
// that cannot edit their data (for example a read-only corporate directory)
// report ErrUnsupported from the mutating operations.
package realm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/citadel/pkg/identity"
)

var (
	// ErrNotFound is returned when the referenced user, group or role does
	// not exist in the realm.
	ErrNotFound = errors.New("realm: not found")

	// ErrUnsupported is returned by realms that do not implement a given
	// directory operation.
	ErrUnsupported = errors.New("realm: operation not supported")

	// ErrAlreadyExists is returned when creating a user, group or role that
	// is already present.
	ErrAlreadyExists = errors.New("realm: already exists")
)

// Realm is the directory and authenticator contract.
//
// Authenticate returns (nil, nil) when the credentials are rejected; an error
// is reserved for the realm itself failing (backend unreachable, bad query).
type Realm interface {
	// Identifier returns the realm identifier used for registry selection.
	Identifier() string

	// Authenticate validates a login/password pair and returns the matching
	// identity, or nil when the credentials are rejected.
	Authenticate(ctx context.Context, login, password string) (*identity.User, error)

	// GetUser resolves a user identifier to a live identity. Returns
	// ErrNotFound if the user has been deleted since it was last seen.
	GetUser(ctx context.Context, userID string) (*identity.User, error)

	// CheckHasRole reports whether the user holds the role, directly or
	// through group membership or role implication.
	CheckHasRole(ctx context.Context, userID, roleID string) (bool, error)

	// CheckIsInGroup reports whether the user is a member of the group.
	CheckIsInGroup(ctx context.Context, userID, groupID string) (bool, error)

	// Directory mutations. Realms without an editable backing store return
	// ErrUnsupported from all of these.
	CreateUser(ctx context.Context, login, displayName, password string) error
	DeleteUser(ctx context.Context, userID string) error
	CreateGroup(ctx context.Context, groupID string) error
	DeleteGroup(ctx context.Context, groupID string) error
	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	CreateRole(ctx context.Context, roleID string) error
	DeleteRole(ctx context.Context, roleID string) error
	AssignRole(ctx context.Context, userID, roleID string) error
	UnassignRole(ctx context.Context, userID, roleID string) error

	// AddRoleImplication declares that holders of roleID implicitly hold
	// impliedID as well. RemoveRoleImplication undoes it.
	AddRoleImplication(ctx context.Context, roleID, impliedID string) error
	RemoveRoleImplication(ctx context.Context, roleID, impliedID string) error
}

// Provider instantiates a realm from a named configuration section.
type Provider interface {
	// Identifier returns the provider identifier matched against the
	// configured realm name.
	Identifier() string

	// New builds a realm instance from its configuration section. The
	// section is the raw key/value map from the provider config file.
	New(section map[string]string) (Realm, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Provider)
)

// Register adds a realm provider to the process-wide registry. Registering
// two providers under the same identifier panics: it is a programming error
// in startup wiring, not a runtime condition.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[p.Identifier()]; dup {
		panic(fmt.Sprintf("realm: provider %q registered twice", p.Identifier()))
	}
	registry[p.Identifier()] = p
}

// Selector resolves the configured realm once, lazily, on first use and
// caches the instance for the process lifetime.
type Selector struct {
	identifier string
	section    map[string]string

	once  sync.Once
	realm Realm
	err   error
}

// NewSelector creates a selector for the named realm provider. An empty
// identifier selects the default allow-everyone realm.
func NewSelector(identifier string, section map[string]string) *Selector {
	return &Selector{identifier: identifier, section: section}
}

// Realm returns the selected realm instance, instantiating it on first call.
func (s *Selector) Realm() (Realm, error) {
	s.once.Do(func() {
		if s.identifier == "" || s.identifier == DefaultIdentifier {
			s.realm = NewDefault()
			return
		}
		registryMu.RLock()
		p, ok := registry[s.identifier]
		registryMu.RUnlock()
		if !ok {
			s.err = fmt.Errorf("realm: no provider registered for %q", s.identifier)
			return
		}
		s.realm, s.err = p.New(s.section)
	})
	return s.realm, s.err
}
