// Package sessionstore is the in-memory, per-user cache that callers use to
// keep fetched or derived data (courses by category, purchased product ids,
// preferences) across screens without refetching.
//
// Entries are addressed by a typed [Key]: a value written with Key[T] can only
// be read back as T, so the store cannot miscast. Per-user entries live under
// the user's numeric id; a separate shared bucket holds data not tied to any
// user.
//
// # Architecture boundaries
//
// The store has no expiry and no knowledge of the current session. Clearing
// on logout or account switch is the caller's job (the Engine wires it).
//
// # What this package must NOT do
//
//   - Return a value written under one user id when reading another.
//   - Perform I/O.
package sessionstore
