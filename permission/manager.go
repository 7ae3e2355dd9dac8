package permission

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/goSession/model"
)

// UserSource is a stream of current-user values. Subscribe must call fn once
// with the current value and again on every change.
type UserSource interface {
	Subscribe(fn func(*model.User)) (cancel func())
	CurrentUser() *model.User
}

type bitset interface {
	Has(bit int) bool
	Set(bit int)
	Empty() bool
}

// grant is an immutable snapshot of what the current user may do.
type grant struct {
	user *model.User
	mask bitset
}

// Manager answers capability checks for the current user. Reads are
// lock-free; recomputation happens once per user change.
type Manager struct {
	registry *Registry
	catalog  Catalog
	bits     [permissionCount]int

	current atomic.Pointer[grant]

	mu     sync.Mutex
	source UserSource
	detach func()
}

// NewManager registers the catalog's slugs in a registry of maxBits width and
// returns a Manager with no user.
func NewManager(catalog Catalog, maxBits int) (*Manager, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	registry, err := NewRegistry(maxBits)
	if err != nil {
		return nil, err
	}

	m := &Manager{registry: registry, catalog: catalog.clone()}
	for _, p := range All() {
		bit, err := registry.Register(m.catalog[p])
		if err != nil {
			return nil, err
		}
		m.bits[p] = bit
	}
	registry.Freeze()

	m.current.Store(m.compute(nil))
	return m, nil
}

func (m *Manager) newMask() bitset {
	if m.registry.MaxBits() > 64 {
		return &Mask128{}
	}
	var mask Mask64
	return &mask
}

func (m *Manager) compute(u *model.User) *grant {
	mask := m.newMask()
	for slug := range u.EntitlementSlugs() {
		if bit, ok := m.registry.Bit(slug); ok {
			mask.Set(bit)
		}
	}
	return &grant{user: u, mask: mask}
}

// Attach follows src: every user change recomputes the grant. Attaching again
// replaces the previous source.
func (m *Manager) Attach(src UserSource) error {
	if src == nil {
		return errors.New("nil user source")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detach != nil {
		m.detach()
	}
	m.source = src
	m.detach = src.Subscribe(m.Sync)
	return nil
}

// Detach stops following the attached source and clears the grant.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.detach != nil {
		m.detach()
	}
	m.detach = nil
	m.source = nil
	m.current.Store(m.compute(nil))
}

// Sync recomputes the grant from u. A nil user revokes everything.
func (m *Manager) Sync(u *model.User) {
	m.current.Store(m.compute(u))
}

// SyncWithSession re-reads the current user from the attached source. With
// an attached source this is never required; it exists for callers that
// want to force a recompute.
func (m *Manager) SyncWithSession() {
	m.mu.Lock()
	src := m.source
	m.mu.Unlock()

	if src == nil {
		m.Sync(nil)
		return
	}
	m.Sync(src.CurrentUser())
}

// CanAccess reports whether p's slug is among the current user's
// entitlements. It is false with no user, no subscription, or an unknown p.
func (m *Manager) CanAccess(p Permission) bool {
	if p < 0 || p >= permissionCount {
		return false
	}
	g := m.current.Load()
	if g.user == nil || g.mask.Empty() {
		return false
	}
	return g.mask.Has(m.bits[p])
}

// Granted lists the permissions the current user holds.
func (m *Manager) Granted() []Permission {
	var out []Permission
	for _, p := range All() {
		if m.CanAccess(p) {
			out = append(out, p)
		}
	}
	return out
}

// Role returns the current user's plan role; free with no user.
func (m *Manager) Role() model.Role {
	return m.current.Load().user.Role()
}

// Quota returns the limit of the metered entitlement slug for the current
// user.
func (m *Manager) Quota(slug string) (int, bool) {
	return m.current.Load().user.Quota(slug)
}

// Slug returns the entitlement slug that grants p.
func (m *Manager) Slug(p Permission) (string, bool) {
	return m.catalog.Slug(p)
}
