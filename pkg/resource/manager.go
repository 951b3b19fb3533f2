package resource

import (
	"context"
	"sync"

	"github.com/platinummonkey/citadel/pkg/audit"
	"github.com/platinummonkey/citadel/pkg/contextkeys"
	"github.com/platinummonkey/citadel/pkg/identity"
	"github.com/platinummonkey/citadel/pkg/observability"
	"github.com/platinummonkey/citadel/pkg/policy"
)

// Gate is the slice of the security service the manager uses to authorize
// its own management operations. It is injected after construction because
// the security service in turn evaluates resource policies through the
// manager.
type Gate interface {
	CheckAction(ctx context.Context, action *policy.Action, data interface{}) policy.Decision
}

// Manager owns the per-resource descriptors: an in-memory cache over the
// persistent store, lazily populated by one directory scan on first access.
//
// Every mutating call authorizes the caller for the relevant management
// action, mutates a copy, persists it, and only then publishes the copy to
// the cache, so the cache and the store never diverge from the caller's
// point of view.
type Manager struct {
	mu     sync.Mutex
	cache  map[string]*Descriptor
	loaded bool

	store   Store
	dir     Directory
	gate    Gate
	auditor audit.Logger
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewManager creates a resource manager over the store. The directory may be
// nil, in which case group and role sharing rules report ErrServiceUnavailable.
func NewManager(store Store, dir Directory, log *observability.Logger, metrics *observability.Metrics) *Manager {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		cache:   make(map[string]*Descriptor),
		store:   store,
		dir:     dir,
		auditor: audit.NopLogger{},
		log:     log,
		metrics: metrics,
	}
}

// SetGate wires the security service in. Before the gate is set all
// management operations are ungated; the kernel wiring sets it immediately
// after constructing the security service.
func (m *Manager) SetGate(g Gate) { m.gate = g }

// SetAuditor wires the audit trail in. Without one, descriptor mutations
// are not audited.
func (m *Manager) SetAuditor(a audit.Logger) {
	if a == nil {
		a = audit.NopLogger{}
	}
	m.auditor = a
}

// Create creates a descriptor for the resource with the calling identity as
// its initial owner.
func (m *Manager) Create(ctx context.Context, resourceID, name string) (*Descriptor, error) {
	caller, err := m.authorize(ctx, ActionCreateDescriptor, resourceID)
	if err != nil {
		m.observe("create", "denied")
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return nil, err
	}

	if _, exists := m.cache[resourceID]; exists {
		m.observe("create", "conflict")
		return nil, ErrAlreadyExists
	}

	d := &Descriptor{
		Identifier: resourceID,
		Name:       name,
		Owners:     []string{caller.ID},
		Sharing:    nil,
	}
	if err := m.store.Save(d); err != nil {
		m.observe("create", "error")
		return nil, err
	}
	m.cache[resourceID] = d
	m.syncGauge()
	m.observe("create", "ok")
	m.auditEvent(ctx, audit.EventTypeDescriptorCreate, resourceID, nil)
	return d.Clone(), nil
}

// Get returns the descriptor for the resource.
func (m *Manager) Get(ctx context.Context, resourceID string) (*Descriptor, error) {
	if _, err := m.authorize(ctx, ActionGetDescriptor, resourceID); err != nil {
		m.observe("get", "denied")
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	d, ok := m.cache[resourceID]
	if !ok {
		m.observe("get", "not_found")
		return nil, ErrNotFound
	}
	m.observe("get", "ok")
	return d.Clone(), nil
}

// Delete removes the descriptor for the resource.
func (m *Manager) Delete(ctx context.Context, resourceID string) error {
	if _, err := m.authorize(ctx, ActionDeleteDescriptor, resourceID); err != nil {
		m.observe("delete", "denied")
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return err
	}
	if _, ok := m.cache[resourceID]; !ok {
		m.observe("delete", "not_found")
		return ErrNotFound
	}
	if err := m.store.Delete(resourceID); err != nil {
		m.observe("delete", "error")
		return err
	}
	delete(m.cache, resourceID)
	m.syncGauge()
	m.observe("delete", "ok")
	m.auditEvent(ctx, audit.EventTypeDescriptorDelete, resourceID, nil)
	return nil
}

// AddOwner adds an identity to the owner set.
func (m *Manager) AddOwner(ctx context.Context, resourceID, userID string) error {
	err := m.mutate(ctx, "add_owner", ActionManageOwners, resourceID, func(d *Descriptor) error {
		if d.IsOwner(userID) {
			return ErrAlreadyOwner
		}
		d.Owners = append(d.Owners, userID)
		return nil
	})
	if err == nil {
		m.auditEvent(ctx, audit.EventTypeOwnerChange, resourceID,
			map[string]interface{}{"op": "add", "user": userID})
	}
	return err
}

// RemoveOwner removes an identity from the owner set. The last remaining
// owner can never be removed.
func (m *Manager) RemoveOwner(ctx context.Context, resourceID, userID string) error {
	err := m.mutate(ctx, "remove_owner", ActionManageOwners, resourceID, func(d *Descriptor) error {
		if !d.IsOwner(userID) {
			return ErrNotFound
		}
		if len(d.Owners) == 1 {
			return ErrLastOwner
		}
		owners := d.Owners[:0]
		for _, o := range d.Owners {
			if o != userID {
				owners = append(owners, o)
			}
		}
		d.Owners = owners
		return nil
	})
	if err == nil {
		m.auditEvent(ctx, audit.EventTypeOwnerChange, resourceID,
			map[string]interface{}{"op": "remove", "user": userID})
	}
	return err
}

// AddSharing appends a sharing rule to the descriptor.
func (m *Manager) AddSharing(ctx context.Context, resourceID string, rule SharingRule) error {
	err := m.mutate(ctx, "add_sharing", ActionManageSharing, resourceID, func(d *Descriptor) error {
		d.Sharing = append(d.Sharing, rule)
		return nil
	})
	if err == nil {
		m.auditEvent(ctx, audit.EventTypeSharingChange, resourceID,
			map[string]interface{}{"op": "add", "rule": string(rule.Type)})
	}
	return err
}

// RemoveSharing removes the first sharing rule equal to the given one.
// Removing a rule that was never added reports ErrNotFound.
func (m *Manager) RemoveSharing(ctx context.Context, resourceID string, rule SharingRule) error {
	err := m.mutate(ctx, "remove_sharing", ActionManageSharing, resourceID, func(d *Descriptor) error {
		for i, existing := range d.Sharing {
			if existing.Equal(rule) {
				d.Sharing = append(d.Sharing[:i], d.Sharing[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
	if err == nil {
		m.auditEvent(ctx, audit.EventTypeSharingChange, resourceID,
			map[string]interface{}{"op": "remove", "rule": string(rule.Type)})
	}
	return err
}

// IsOwner implements policy.ResourceAccess. Reports ErrNotFound when no
// descriptor exists for the resource.
func (m *Manager) IsOwner(ctx context.Context, userID, resourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return false, err
	}
	d, ok := m.cache[resourceID]
	if !ok {
		return false, ErrNotFound
	}
	return d.IsOwner(userID), nil
}

// IsShared implements policy.ResourceAccess: owners pass, otherwise any
// matching sharing rule grants access.
func (m *Manager) IsShared(ctx context.Context, user *identity.User, resourceID string) (bool, error) {
	m.mu.Lock()
	if err := m.ensureLoadedLocked(); err != nil {
		m.mu.Unlock()
		return false, err
	}
	d, ok := m.cache[resourceID]
	if !ok {
		m.mu.Unlock()
		return false, ErrNotFound
	}
	d = d.Clone()
	m.mu.Unlock()

	if user != nil && d.IsOwner(user.ID) {
		return true, nil
	}
	for _, rule := range d.Sharing {
		ok, err := rule.Allows(ctx, user, m.dir)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// mutate runs the gated clone-mutate-persist-publish cycle shared by all
// descriptor mutations.
func (m *Manager) mutate(ctx context.Context, op string, action *policy.Action, resourceID string, fn func(*Descriptor) error) error {
	if _, err := m.authorize(ctx, action, resourceID); err != nil {
		m.observe(op, "denied")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureLoadedLocked(); err != nil {
		return err
	}
	current, ok := m.cache[resourceID]
	if !ok {
		m.observe(op, "not_found")
		return ErrNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		m.observe(op, "rejected")
		return err
	}
	if err := m.store.Save(next); err != nil {
		// The cache still holds the pre-mutation descriptor.
		m.observe(op, "error")
		return err
	}
	m.cache[resourceID] = next
	m.observe(op, "ok")
	return nil
}

// authorize gates a management operation on the bound identity and the
// action's configured policy.
func (m *Manager) authorize(ctx context.Context, action *policy.Action, resourceID string) (*identity.User, error) {
	caller := contextkeys.IdentityFrom(ctx)
	if caller.IsAnonymous() {
		return nil, ErrUnauthenticated
	}
	if m.gate == nil {
		return caller, nil
	}
	switch m.gate.CheckAction(ctx, action, resourceID) {
	case policy.DecisionAllowed:
		return caller, nil
	case policy.DecisionUnauthenticated:
		return nil, ErrUnauthenticated
	default:
		return nil, ErrUnauthorized
	}
}

// ensureLoadedLocked populates the cache from storage on first access.
func (m *Manager) ensureLoadedLocked() error {
	if m.loaded {
		return nil
	}
	descriptors, err := m.store.LoadAll()
	if err != nil {
		return err
	}
	for _, d := range descriptors {
		m.cache[d.Identifier] = d
	}
	m.loaded = true
	m.syncGauge()
	m.log.Infof("loaded %d resource descriptors", len(descriptors))
	return nil
}

func (m *Manager) auditEvent(ctx context.Context, t audit.EventType, resourceID string, meta map[string]interface{}) {
	e := audit.NewEvent(t, audit.EventStatusSuccess)
	e.Client = contextkeys.GetClientAddr(ctx)
	if caller := contextkeys.IdentityFrom(ctx); !caller.IsAnonymous() {
		e.Actor = caller.ID
	}
	e.Resource = resourceID
	e.Metadata = meta
	if err := m.auditor.Log(ctx, e); err != nil {
		m.log.WithError(err).Warn("audit log write failed")
	}
}

func (m *Manager) observe(op, outcome string) {
	if m.metrics != nil {
		m.metrics.DescriptorOpsTotal.WithLabelValues(op, outcome).Inc()
	}
}

func (m *Manager) syncGauge() {
	if m.metrics != nil {
		m.metrics.DescriptorsCached.Set(float64(len(m.cache)))
	}
}
