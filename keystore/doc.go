// Package keystore persists the session's secrets (in practice the bearer
// token under [KeyToken]) in a durable key-value store.
//
// # Backends
//
//   - [Memory]: process-local map; tests and ephemeral clients.
//   - [Redis]: shared store for backend-for-frontend deployments.
//   - [SQLite]: single-file store that survives process restarts.
//   - [Sealed]: wraps any Store and encrypts values at rest.
//
// # Architecture boundaries
//
// Stores hold opaque strings. They do not parse tokens or know about users.
//
// # What this package must NOT do
//
//   - Log or return secret values inside errors.
//   - Import goSession, session, or model.
package keystore
