// Package middleware gates HTTP handlers on the goSession Engine's current
// user and permissions.
//
// # Guards
//
//   - [RequireSession] answers 401 while signed out.
//   - [RequirePermission] additionally answers 403 when the user lacks the
//     permission.
//
// # What this package must NOT do
//
//   - Read or forward bearer tokens. The session lives in the Engine, not in
//     the request.
//   - Make permission decisions itself. Every check goes through
//     Engine.CanAccess.
package middleware
