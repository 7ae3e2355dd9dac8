// Package permission answers "can the current user do X?" from the
// entitlements of their subscription plan.
//
// # Model
//
// A [Permission] is a client-side capability. A [Catalog] maps every
// Permission to one backend entitlement slug; several permissions may share a
// slug. The [Registry] assigns one bit per distinct slug, and the [Manager]
// keeps a bitmask ([Mask64] or [Mask128]) of the slugs granted to the current
// user, so a check is one bit test.
//
// # Architecture boundaries
//
// The Manager follows a user stream (see [Manager.Attach]) instead of being
// told to resync, so checks cannot go stale after login, logout or a user
// refresh. It performs no I/O.
//
// # What this package must NOT do
//
//   - Return true for any permission when there is no user or no subscription.
//   - Import goSession, session, or coursecache.
//   - Panic on unknown slugs or permissions; absence is denial.
package permission
