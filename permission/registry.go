package permission

import (
	"errors"
	"sync"
)

// Registry maps entitlement slugs to bit positions within a bitmask.
// Supports widths of 64 or 128 bits.
type Registry struct {
	maxBits int

	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates a slug [Registry]. maxBits selects the mask width
// (64 or 128).
func NewRegistry(maxBits int) (*Registry, error) {
	if maxBits != 64 && maxBits != 128 {
		return nil, errors.New("invalid maxBits")
	}

	return &Registry{
		maxBits:   maxBits,
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}, nil
}

// Register assigns the next available bit to slug. Registering a slug twice
// returns the bit it already holds. Must be called before [Registry.Freeze].
func (r *Registry) Register(slug string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if slug == "" {
		return -1, errors.New("slug cannot be empty")
	}

	if bit, exists := r.nameToBit[slug]; exists {
		return bit, nil
	}

	nextBit := len(r.nameToBit)
	if nextBit >= r.maxBits {
		return -1, errors.New("slug limit exceeded")
	}

	r.nameToBit[slug] = nextBit
	r.bitToName[nextBit] = slug

	return nextBit, nil
}

// Bit returns the bit index for slug, or false if not registered.
func (r *Registry) Bit(slug string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[slug]
	return bit, ok
}

// Name returns the slug for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered slugs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// MaxBits returns the configured mask width.
func (r *Registry) MaxBits() int {
	return r.maxBits
}
