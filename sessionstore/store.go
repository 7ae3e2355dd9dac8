package sessionstore

import "sync"

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	users  map[int]map[string]any
	shared map[string]any
}

func New() *Store {
	return &Store{
		users:  make(map[int]map[string]any),
		shared: make(map[string]any),
	}
}

// SetUser stores v under (userID, key), replacing any previous value.
func SetUser[T any](s *Store, key Key[T], userID int, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.users[userID]
	if !ok {
		bucket = make(map[string]any)
		s.users[userID] = bucket
	}
	bucket[key.name] = v
}

// GetUser returns the value stored under (userID, key). ok is false when the
// slot is empty or holds a value of another type.
func GetUser[T any](s *Store, key Key[T], userID int) (v T, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, found := s.users[userID][key.name]
	if !found {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}

// UpdateUser applies fn to the current value of (userID, key) and stores the
// result, holding the write lock for the duration. fn receives ok=false when
// the slot is empty or mistyped.
func UpdateUser[T any](s *Store, key Key[T], userID int, fn func(cur T, ok bool) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, exists := s.users[userID]
	if !exists {
		bucket = make(map[string]any)
		s.users[userID] = bucket
	}
	cur, ok := bucket[key.name].(T)
	next := fn(cur, ok)
	bucket[key.name] = next
	return next
}

// SetShared stores v in the bucket that is not tied to a user.
func SetShared[T any](s *Store, key Key[T], v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared[key.name] = v
}

// GetShared reads from the shared bucket.
func GetShared[T any](s *Store, key Key[T]) (v T, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, found := s.shared[key.name]
	if !found {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}

// ClearUser drops every entry of one user.
func (s *Store) ClearUser(userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// ClearAll drops every per-user entry. The shared bucket is kept.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[int]map[string]any)
}

// ClearShared empties the shared bucket.
func (s *Store) ClearShared() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared = make(map[string]any)
}

// DropKey removes slot name from every user bucket.
func (s *Store) DropKey(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, bucket := range s.users {
		delete(bucket, name)
		if len(bucket) == 0 {
			delete(s.users, id)
		}
	}
}

// Users returns the number of users with at least one entry.
func (s *Store) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
