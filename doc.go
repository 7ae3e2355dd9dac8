// Package goSession is the client-side session layer of the parenting app: it
// signs users in against the Strapi content backend, keeps the bearer token in
// a durable keystore, answers entitlement-based permission checks, and caches
// courses per user.
//
// Engine methods are safe to call from multiple goroutines after construction
// through [Builder.Build].
//
// # Architecture boundaries
//
// goSession wires the sub-packages together and owns nothing they already do:
// session lifecycle lives in session/, token persistence in keystore/, the
// typed per-user store in sessionstore/, permission masks in permission/,
// course caching in coursecache/, and HTTP in strapi/. The Engine subscribes
// the permission manager and its own observers to the session's user stream,
// so a logout or a backend 401 clears every cache before the call that caused
// it returns.
//
// # What this package must NOT do
//
//   - Log or audit bearer tokens or passwords.
//   - Cache data for a user after that user's session has ended.
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Fetch ordering
//
// Fetches for the same resource are latest-wins: a newer call cancels the
// older one, which returns [ErrSuperseded] instead of writing stale data.
package goSession
