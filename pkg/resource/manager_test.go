package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/citadel/pkg/audit"
	"github.com/platinummonkey/citadel/pkg/contextkeys"
	"github.com/platinummonkey/citadel/pkg/identity"
	"github.com/platinummonkey/citadel/pkg/policy"
)

func ctxAs(userID string) context.Context {
	return contextkeys.WithIdentity(context.Background(), &identity.User{ID: userID})
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	dir := staticDirectory{
		roles:  map[string][]string{"carol": {"reviewer"}},
		groups: map[string][]string{"dave": {"qa"}},
	}
	return NewManager(store, dir, nil, nil)
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := newTestManager(t)
	alice := ctxAs("alice")

	d, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)
	assert.Equal(t, "doc-42", d.Identifier)
	assert.Equal(t, []string{"alice"}, d.Owners, "creator is the initial owner")

	_, err = m.Create(alice, "doc-42", "again")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := m.Get(alice, "doc-42")
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = m.Get(alice, "doc-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(alice, "doc-42"))
	_, err = m.Get(alice, "doc-42")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(alice, "doc-42"), ErrNotFound)
}

func TestManager_RequiresIdentity(t *testing.T) {
	m := newTestManager(t)
	anon := context.Background()

	_, err := m.Create(anon, "doc-42", "x")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = m.Get(anon, "doc-42")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, m.Delete(anon, "doc-42"), ErrUnauthenticated)
	assert.ErrorIs(t, m.AddOwner(anon, "doc-42", "bob"), ErrUnauthenticated)
}

func TestManager_Owners(t *testing.T) {
	m := newTestManager(t)
	alice := ctxAs("alice")

	_, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)

	require.NoError(t, m.AddOwner(alice, "doc-42", "bob"))
	assert.ErrorIs(t, m.AddOwner(alice, "doc-42", "bob"), ErrAlreadyOwner)

	d, err := m.Get(alice, "doc-42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, d.Owners)

	require.NoError(t, m.RemoveOwner(alice, "doc-42", "alice"))
	assert.ErrorIs(t, m.RemoveOwner(alice, "doc-42", "alice"), ErrNotFound)

	// bob is the last owner now and can never be removed.
	assert.ErrorIs(t, m.RemoveOwner(alice, "doc-42", "bob"), ErrLastOwner)

	assert.ErrorIs(t, m.AddOwner(alice, "doc-missing", "bob"), ErrNotFound)
}

func TestManager_Sharing(t *testing.T) {
	m := newTestManager(t)
	alice := ctxAs("alice")

	_, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)

	rule := ShareWithRole("reviewer")
	require.NoError(t, m.AddSharing(alice, "doc-42", rule))

	d, err := m.Get(alice, "doc-42")
	require.NoError(t, err)
	assert.Equal(t, []SharingRule{rule}, d.Sharing)

	require.NoError(t, m.RemoveSharing(alice, "doc-42", rule))
	assert.ErrorIs(t, m.RemoveSharing(alice, "doc-42", rule), ErrNotFound)

	d, err = m.Get(alice, "doc-42")
	require.NoError(t, err)
	assert.Empty(t, d.Sharing)
}

func TestManager_IsOwnerIsShared(t *testing.T) {
	m := newTestManager(t)
	alice := ctxAs("alice")
	ctx := context.Background()

	_, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)
	require.NoError(t, m.AddSharing(alice, "doc-42", ShareWithRole("reviewer")))
	require.NoError(t, m.AddSharing(alice, "doc-42", ShareWithUser("bob")))

	ok, err := m.IsOwner(ctx, "alice", "doc-42")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.IsOwner(ctx, "bob", "doc-42")
	require.NoError(t, err)
	assert.False(t, ok, "a shared user is not an owner")

	_, err = m.IsOwner(ctx, "alice", "doc-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Owners, directly shared users and role holders all pass IsShared.
	for _, id := range []string{"alice", "bob", "carol"} {
		ok, err := m.IsShared(ctx, &identity.User{ID: id}, "doc-42")
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
	ok, err = m.IsShared(ctx, &identity.User{ID: "dave"}, "doc-42")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.IsShared(ctx, &identity.User{ID: "alice"}, "doc-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_LoadsExistingDescriptors(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(&Descriptor{
		Identifier: "doc-42",
		Owners:     []string{"alice"},
	}))

	m := NewManager(store, nil, nil, nil)
	d, err := m.Get(ctxAs("alice"), "doc-42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Owners)
}

// decisionGate returns a fixed decision for every check.
type decisionGate struct {
	decision policy.Decision
	lastData interface{}
}

func (g *decisionGate) CheckAction(ctx context.Context, action *policy.Action, data interface{}) policy.Decision {
	g.lastData = data
	return g.decision
}

func TestManager_GateDecisions(t *testing.T) {
	m := newTestManager(t)
	alice := ctxAs("alice")

	_, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)

	gate := &decisionGate{decision: policy.DecisionUnauthorized}
	m.SetGate(gate)

	_, err = m.Get(alice, "doc-42")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, "doc-42", gate.lastData, "the resource identifier travels as policy context data")
	assert.ErrorIs(t, m.AddOwner(alice, "doc-42", "bob"), ErrUnauthorized)

	gate.decision = policy.DecisionUnauthenticated
	_, err = m.Get(alice, "doc-42")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	gate.decision = policy.DecisionAllowed
	_, err = m.Get(alice, "doc-42")
	assert.NoError(t, err)
}

func TestManager_MutationIsNotPublishedOnStoreFailure(t *testing.T) {
	m := newTestManager(t)
	alice := ctxAs("alice")

	_, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)

	orig := m.store
	m.store = failingStore{orig}

	assert.Error(t, m.AddOwner(alice, "doc-42", "bob"))

	m.store = orig
	d, err := m.Get(alice, "doc-42")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, d.Owners, "failed save must leave the cached descriptor untouched")
}

// failingStore fails every Save but delegates reads.
type failingStore struct{ Store }

func (failingStore) Save(*Descriptor) error { return ErrStorage }

// recordingAuditor captures emitted events for inspection.
type recordingAuditor struct {
	events []*audit.Event
}

func (r *recordingAuditor) Log(ctx context.Context, e *audit.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAuditor) Close() error { return nil }

func TestManager_AuditTrail(t *testing.T) {
	m := newTestManager(t)
	rec := &recordingAuditor{}
	m.SetAuditor(rec)
	alice := ctxAs("alice")

	_, err := m.Create(alice, "doc-42", "Design notes")
	require.NoError(t, err)
	require.NoError(t, m.AddOwner(alice, "doc-42", "bob"))
	require.NoError(t, m.RemoveOwner(alice, "doc-42", "bob"))
	require.NoError(t, m.AddSharing(alice, "doc-42", SharingRule{Type: RuleUser, User: "carol"}))
	require.NoError(t, m.RemoveSharing(alice, "doc-42", SharingRule{Type: RuleUser, User: "carol"}))
	require.NoError(t, m.Delete(alice, "doc-42"))

	require.Len(t, rec.events, 6)
	types := make([]audit.EventType, 0, len(rec.events))
	for _, e := range rec.events {
		types = append(types, e.Type)
		assert.Equal(t, "alice", e.Actor)
		assert.Equal(t, "doc-42", e.Resource)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventTypeDescriptorCreate,
		audit.EventTypeOwnerChange,
		audit.EventTypeOwnerChange,
		audit.EventTypeSharingChange,
		audit.EventTypeSharingChange,
		audit.EventTypeDescriptorDelete,
	}, types)
	assert.Equal(t, "add", rec.events[1].Metadata["op"])
	assert.Equal(t, "remove", rec.events[2].Metadata["op"])

	// Rejected mutations leave no trace.
	assert.ErrorIs(t, m.AddOwner(alice, "doc-42", "bob"), ErrNotFound)
	assert.Len(t, rec.events, 6)
}
