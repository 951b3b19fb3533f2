package realm

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/citadel/pkg/identity"
)

// SQLIdentifier is the registry identifier of the SQL-backed realm.
const SQLIdentifier = "sql"

// roleCacheSize bounds the role-membership cache; entries expire so role
// revocations propagate without an explicit invalidation path.
const roleCacheSize = 4096

// SQLRealm is a directory backed by a relational database. It works against
// SQLite in tests and PostgreSQL in production; queries use $n ordinal
// placeholders, which lib/pq requires and the sqlite driver accepts.
type SQLRealm struct {
	db        *sql.DB
	log       *logrus.Logger
	roleCache *expirable.LRU[string, bool]
}

// NewSQLRealm creates a SQL-backed realm on an open database handle. The
// caller owns the handle lifecycle.
func NewSQLRealm(db *sql.DB, log *logrus.Logger) *SQLRealm {
	if log == nil {
		log = logrus.New()
	}
	return &SQLRealm{
		db:        db,
		log:       log,
		roleCache: expirable.NewLRU[string, bool](roleCacheSize, nil, 30*time.Second),
	}
}

// DB exposes the underlying database handle for health probes.
func (r *SQLRealm) DB() *sql.DB { return r.db }

// Migrate creates the directory tables if they do not exist.
func (r *SQLRealm) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			password_salt TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS roles (
			id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS user_roles (
			user_id TEXT NOT NULL,
			role_id TEXT NOT NULL,
			PRIMARY KEY (user_id, role_id)
		)`,
		`CREATE TABLE IF NOT EXISTS role_implications (
			role_id TEXT NOT NULL,
			implied_id TEXT NOT NULL,
			PRIMARY KEY (role_id, implied_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate realm schema: %w", err)
		}
	}
	return nil
}

// Identifier implements Realm.
func (r *SQLRealm) Identifier() string { return SQLIdentifier }

// Authenticate validates the password against the stored salted hash.
// Unknown logins and wrong passwords are both reported as a plain rejection.
func (r *SQLRealm) Authenticate(ctx context.Context, login, password string) (*identity.User, error) {
	var displayName, salt, storedHash string
	err := r.db.QueryRowContext(ctx,
		`SELECT display_name, password_salt, password_hash FROM users WHERE id = $1`, login,
	).Scan(&displayName, &salt, &storedHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !hmac.Equal([]byte(hashPassword(salt, password)), []byte(storedHash)) {
		r.log.WithField("login", login).Debug("password mismatch")
		return nil, nil
	}
	return &identity.User{ID: login, DisplayName: displayName}, nil
}

// GetUser implements Realm.
func (r *SQLRealm) GetUser(ctx context.Context, userID string) (*identity.User, error) {
	var displayName string
	err := r.db.QueryRowContext(ctx,
		`SELECT display_name FROM users WHERE id = $1`, userID,
	).Scan(&displayName)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return &identity.User{ID: userID, DisplayName: displayName}, nil
}

// CheckHasRole reports whether the user holds the role directly or through a
// chain of role implications. Results are cached briefly.
func (r *SQLRealm) CheckHasRole(ctx context.Context, userID, roleID string) (bool, error) {
	cacheKey := userID + "\x00" + roleID
	if hit, ok := r.roleCache.Get(cacheKey); ok {
		return hit, nil
	}

	direct, err := r.directRoles(ctx, userID)
	if err != nil {
		return false, err
	}

	held := false
	seen := make(map[string]bool)
	for _, role := range direct {
		ok, err := r.implies(ctx, role, roleID, seen)
		if err != nil {
			return false, err
		}
		if ok {
			held = true
			break
		}
	}

	r.roleCache.Add(cacheKey, held)
	return held, nil
}

// CheckIsInGroup implements Realm.
func (r *SQLRealm) CheckIsInGroup(ctx context.Context, userID, groupID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return n > 0, nil
}

// CreateUser implements Realm.
func (r *SQLRealm) CreateUser(ctx context.Context, login, displayName, password string) error {
	if exists, err := r.rowExists(ctx, `SELECT COUNT(1) FROM users WHERE id = $1`, login); err != nil {
		return err
	} else if exists {
		return ErrAlreadyExists
	}

	salt, err := newSalt()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, display_name, password_salt, password_hash) VALUES ($1, $2, $3, $4)`,
		login, displayName, salt, hashPassword(salt, password))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// DeleteUser removes the user along with its role and group assignments.
func (r *SQLRealm) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, _ = r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
	_, _ = r.db.ExecContext(ctx, `DELETE FROM group_members WHERE user_id = $1`, userID)
	r.roleCache.Purge()
	return nil
}

// CreateGroup implements Realm.
func (r *SQLRealm) CreateGroup(ctx context.Context, groupID string) error {
	if exists, err := r.rowExists(ctx, `SELECT COUNT(1) FROM groups WHERE id = $1`, groupID); err != nil {
		return err
	} else if exists {
		return ErrAlreadyExists
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO groups (id) VALUES ($1)`, groupID); err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// DeleteGroup implements Realm.
func (r *SQLRealm) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, _ = r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1`, groupID)
	return nil
}

// AddGroupMember implements Realm.
func (r *SQLRealm) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if err := r.requireRow(ctx, `SELECT COUNT(1) FROM groups WHERE id = $1`, groupID); err != nil {
		return err
	}
	if err := r.requireRow(ctx, `SELECT COUNT(1) FROM users WHERE id = $1`, userID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)
		 ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to add group member: %w", err)
	}
	return nil
}

// RemoveGroupMember implements Realm.
func (r *SQLRealm) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove group member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRole implements Realm.
func (r *SQLRealm) CreateRole(ctx context.Context, roleID string) error {
	if exists, err := r.rowExists(ctx, `SELECT COUNT(1) FROM roles WHERE id = $1`, roleID); err != nil {
		return err
	} else if exists {
		return ErrAlreadyExists
	}
	if _, err := r.db.ExecContext(ctx, `INSERT INTO roles (id) VALUES ($1)`, roleID); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// DeleteRole implements Realm.
func (r *SQLRealm) DeleteRole(ctx context.Context, roleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	_, _ = r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID)
	_, _ = r.db.ExecContext(ctx,
		`DELETE FROM role_implications WHERE role_id = $1 OR implied_id = $2`, roleID, roleID)
	r.roleCache.Purge()
	return nil
}

// AssignRole implements Realm.
func (r *SQLRealm) AssignRole(ctx context.Context, userID, roleID string) error {
	if err := r.requireRow(ctx, `SELECT COUNT(1) FROM users WHERE id = $1`, userID); err != nil {
		return err
	}
	if err := r.requireRow(ctx, `SELECT COUNT(1) FROM roles WHERE id = $1`, roleID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	r.roleCache.Purge()
	return nil
}

// UnassignRole implements Realm.
func (r *SQLRealm) UnassignRole(ctx context.Context, userID, roleID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.roleCache.Purge()
	return nil
}

// AddRoleImplication implements Realm.
func (r *SQLRealm) AddRoleImplication(ctx context.Context, roleID, impliedID string) error {
	if err := r.requireRow(ctx, `SELECT COUNT(1) FROM roles WHERE id = $1`, roleID); err != nil {
		return err
	}
	if err := r.requireRow(ctx, `SELECT COUNT(1) FROM roles WHERE id = $1`, impliedID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_implications (role_id, implied_id) VALUES ($1, $2)
		 ON CONFLICT (role_id, implied_id) DO NOTHING`, roleID, impliedID)
	if err != nil {
		return fmt.Errorf("failed to add role implication: %w", err)
	}
	r.roleCache.Purge()
	return nil
}

// RemoveRoleImplication implements Realm.
func (r *SQLRealm) RemoveRoleImplication(ctx context.Context, roleID, impliedID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM role_implications WHERE role_id = $1 AND implied_id = $2`, roleID, impliedID)
	if err != nil {
		return fmt.Errorf("failed to remove role implication: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.roleCache.Purge()
	return nil
}

// directRoles returns roles assigned to the user directly or through groups.
func (r *SQLRealm) directRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// implies walks the implication graph from role, reporting whether target is
// reachable. The seen set guards against implication cycles.
func (r *SQLRealm) implies(ctx context.Context, role, target string, seen map[string]bool) (bool, error) {
	if role == target {
		return true, nil
	}
	if seen[role] {
		return false, nil
	}
	seen[role] = true

	rows, err := r.db.QueryContext(ctx,
		`SELECT implied_id FROM role_implications WHERE role_id = $1`, role)
	if err != nil {
		return false, fmt.Errorf("failed to query role implications: %w", err)
	}
	var implied []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return false, err
		}
		implied = append(implied, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, id := range implied {
		ok, err := r.implies(ctx, id, target, seen)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *SQLRealm) rowExists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query realm: %w", err)
	}
	return n > 0, nil
}

func (r *SQLRealm) requireRow(ctx context.Context, query string, args ...interface{}) error {
	exists, err := r.rowExists(ctx, query, args...)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func newSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}
