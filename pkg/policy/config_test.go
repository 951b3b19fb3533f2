package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *Action) {
	t.Helper()
	reg := NewRegistry()
	action := reg.MustRegister(&Action{
		Identifier: "Docs.Publish",
		Name:       "Publish",
		Policies:   []Descriptor{DescDenyAll, DescAllowAll, DescHasRole},
	})
	return reg, action
}

func TestConfiguration_LoadMissingFile(t *testing.T) {
	reg, action := newTestRegistry(t)
	cfg := NewConfiguration(filepath.Join(t.TempDir(), "absent.json"), reg, NewCodec(), nil)

	require.NoError(t, cfg.Load())
	assert.Nil(t, cfg.Resolve(action.Identifier))
	assert.Empty(t, cfg.Snapshot())
}

func TestConfiguration_PutPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	reg, action := newTestRegistry(t)

	cfg := NewConfiguration(path, reg, NewCodec(), nil)
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.Put(action, HasRole{Role: "editor"}))

	// A fresh configuration over the same file sees the assignment.
	reloaded := NewConfiguration(path, reg, NewCodec(), nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, HasRole{Role: "editor"}, reloaded.Resolve(action.Identifier))
}

func TestConfiguration_PutRejectsUnacceptablePolicy(t *testing.T) {
	reg, _ := newTestRegistry(t)
	narrow := reg.MustRegister(&Action{
		Identifier: "Docs.Delete",
		Name:       "Delete",
		Policies:   []Descriptor{DescDenyAll},
	})
	cfg := NewConfiguration(filepath.Join(t.TempDir(), "policies.json"), reg, NewCodec(), nil)

	err := cfg.Put(narrow, AllowAll{})
	assert.ErrorIs(t, err, ErrParameterOutOfRange)
	assert.Nil(t, cfg.Resolve(narrow.Identifier))
}

func TestConfiguration_PutRollsBackOnSaveFailure(t *testing.T) {
	// A directory at the configuration path makes every save fail.
	dir := t.TempDir()
	reg, action := newTestRegistry(t)
	cfg := NewConfiguration(dir, reg, NewCodec(), nil)

	err := cfg.Put(action, AllowAll{})
	require.ErrorIs(t, err, ErrStorage)
	assert.Nil(t, cfg.Resolve(action.Identifier), "failed put must not leave the entry behind")

	// Rollback restores the previous assignment, not just emptiness.
	cfg2 := NewConfiguration(filepath.Join(t.TempDir(), "policies.json"), reg, NewCodec(), nil)
	require.NoError(t, cfg2.Put(action, DenyAll{}))
	cfg2.path = dir
	require.ErrorIs(t, cfg2.Put(action, AllowAll{}), ErrStorage)
	assert.Equal(t, DenyAll{}, cfg2.Resolve(action.Identifier))
}

func TestConfiguration_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	reg, action := newTestRegistry(t)
	cfg := NewConfiguration(path, reg, NewCodec(), nil)

	require.NoError(t, cfg.Put(action, AllowAll{}))
	require.NoError(t, cfg.Remove(action.Identifier))
	assert.Nil(t, cfg.Resolve(action.Identifier))

	// Removing an absent assignment is fine and touches nothing.
	require.NoError(t, cfg.Remove("Docs.Missing"))

	// The removal is persisted.
	reloaded := NewConfiguration(path, reg, NewCodec(), nil)
	require.NoError(t, reloaded.Load())
	assert.Nil(t, reloaded.Resolve(action.Identifier))
}

func TestConfiguration_UnknownActionResolvedLazily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")

	// Write the file with a fully-loaded registry.
	full, action := newTestRegistry(t)
	writer := NewConfiguration(path, full, NewCodec(), nil)
	require.NoError(t, writer.Put(action, HasRole{Role: "editor"}))

	// Load it with a registry that does not know the action yet.
	partial := NewRegistry()
	cfg := NewConfiguration(path, partial, NewCodec(), nil)
	require.NoError(t, cfg.Load())
	assert.Nil(t, cfg.Resolve(action.Identifier), "unknown action stays unresolved")

	// Once the action registers the pending entry resolves.
	partial.MustRegister(&Action{
		Identifier: action.Identifier,
		Name:       action.Name,
		Policies:   action.Policies,
	})
	assert.Equal(t, HasRole{Role: "editor"}, cfg.Resolve(action.Identifier))
}

func TestConfiguration_PendingEntriesSurviveSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	full, action := newTestRegistry(t)
	writer := NewConfiguration(path, full, NewCodec(), nil)
	require.NoError(t, writer.Put(action, HasRole{Role: "editor"}))

	// A partial process loads the file, saves through an unrelated change,
	// and must not lose the entry it could not resolve.
	partial := NewRegistry()
	other := partial.MustRegister(&Action{
		Identifier: "Users.Create",
		Name:       "Create user",
		Policies:   []Descriptor{DescDenyAll},
	})
	cfg := NewConfiguration(path, partial, NewCodec(), nil)
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.Put(other, DenyAll{}))

	reloaded := NewConfiguration(path, full, NewCodec(), nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, HasRole{Role: "editor"}, reloaded.Resolve(action.Identifier))
}

func TestConfiguration_PutSupersedesPendingEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	full, action := newTestRegistry(t)
	writer := NewConfiguration(path, full, NewCodec(), nil)
	require.NoError(t, writer.Put(action, DenyAll{}))

	// Load with a registry that does not know the action yet, so the part
	// stays pending, then register the action and replace the assignment
	// without resolving the pending part first.
	partial := NewRegistry()
	cfg := NewConfiguration(path, partial, NewCodec(), nil)
	require.NoError(t, cfg.Load())
	replacement := partial.MustRegister(&Action{
		Identifier: action.Identifier,
		Name:       action.Name,
		Policies:   action.Policies,
	})
	require.NoError(t, cfg.Put(replacement, AllowAll{}))
	assert.Equal(t, AllowAll{}, cfg.Resolve(action.Identifier))

	// The stale pending part must not resurrect the old assignment.
	reloaded := NewConfiguration(path, full, NewCodec(), nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, AllowAll{}, reloaded.Resolve(action.Identifier))
}

func TestConfiguration_PutRestoresPendingOnSaveFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	full, action := newTestRegistry(t)
	writer := NewConfiguration(path, full, NewCodec(), nil)
	require.NoError(t, writer.Put(action, DenyAll{}))

	partial := NewRegistry()
	cfg := NewConfiguration(path, partial, NewCodec(), nil)
	require.NoError(t, cfg.Load())
	replacement := partial.MustRegister(&Action{
		Identifier: action.Identifier,
		Name:       action.Name,
		Policies:   action.Policies,
	})

	// A directory at the configuration path makes the save fail; the
	// pending part must survive the rollback.
	cfg.path = t.TempDir()
	require.ErrorIs(t, cfg.Put(replacement, AllowAll{}), ErrStorage)
	assert.Equal(t, DenyAll{}, cfg.Resolve(action.Identifier))
}

func TestConfiguration_MalformedPartSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	content := `{"parts":[
		{"action":{"identifier":"Docs.Publish","policies":[{"identifier":"deny-all"}]},
		 "policy":{"identifier":"no-such-kind"}},
		{"action":{"identifier":""},"policy":{"identifier":"deny-all"}},
		{"action":{"identifier":"Docs.Publish","policies":[{"identifier":"deny-all"}]},
		 "policy":{"identifier":"deny-all","name":"Deny all"}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg := NewRegistry()
	reg.MustRegister(&Action{Identifier: "Docs.Publish", Policies: []Descriptor{DescDenyAll}})
	cfg := NewConfiguration(path, reg, NewCodec(), nil)
	require.NoError(t, cfg.Load())

	// Broken parts are skipped but the valid one loads.
	assert.Equal(t, DenyAll{}, cfg.Resolve("Docs.Publish"))
}

func TestConfiguration_LoadRejectsPolicyActionDoesNotAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	content := `{"parts":[
		{"action":{"identifier":"Docs.Delete","policies":[{"identifier":"deny-all"}]},
		 "policy":{"identifier":"allow-all","name":"Allow all"}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	reg := NewRegistry()
	reg.MustRegister(&Action{Identifier: "Docs.Delete", Policies: []Descriptor{DescDenyAll}})
	cfg := NewConfiguration(path, reg, NewCodec(), nil)
	require.NoError(t, cfg.Load())
	assert.Nil(t, cfg.Resolve("Docs.Delete"))
}

func TestConfiguration_Snapshot(t *testing.T) {
	reg, action := newTestRegistry(t)
	cfg := NewConfiguration(filepath.Join(t.TempDir(), "policies.json"), reg, NewCodec(), nil)

	require.NoError(t, cfg.Put(action, AllowAll{}))
	snap := cfg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, AllowAll{}, snap[action.Identifier])

	// The snapshot is a copy.
	delete(snap, action.Identifier)
	assert.NotNil(t, cfg.Resolve(action.Identifier))
}
