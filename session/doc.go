// Package session owns "who is signed in": the backend bearer token (persisted
// through a [keystore.Store]) and the current user record, plus the
// login/logout lifecycle around them.
//
// # Lifecycle
//
// A [Manager] is in one of three states. [StateSignedOut] has neither token
// nor user. [StateValidating] exists only during [Manager.Restore]: a stored
// token was found and the user is being fetched, so callers can see that the
// session is not usable yet instead of observing a token without a user.
// [StateSignedIn] has both.
//
// Every change of the current user is published to subscribers registered
// with [Manager.Subscribe]; logout and backend invalidation are broadcast to
// [Manager.OnLogout] observers with the [Reason].
//
// # Architecture boundaries
//
// The Manager does not know which services cache per-user data. Dependents
// (permission checks, caches) register observers; the Engine wires them.
//
// # What this package must NOT do
//
//   - Log bearer tokens.
//   - Import goSession, permission, or coursecache.
//   - Escalate a failed user refresh into a logout unless the backend
//     rejected the token.
package session
