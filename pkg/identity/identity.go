// Package identity defines the authenticated platform user as seen by the
// rest of the security kernel. Identities are produced by a realm (password
// authentication) or by token verification; they are never persisted here.
// The realm owns the user directory.
package identity

// RolePlatformAdmin is the role that bypasses all configured action policy.
// Holders of this role are allowed to perform any secured action.
const RolePlatformAdmin = "platform:admin"

// User represents an authenticated platform user. Roles are not carried on
// the struct; they are resolved lazily against the realm so that role changes
// take effect without re-authentication.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// IsAnonymous reports whether the user carries no identifier. A nil *User is
// the usual way to express "no identity bound", but a zero value is treated
// the same way by the policy engine.
func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == ""
}
