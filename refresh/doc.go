// Package refresh coordinates "needs refresh" flags between the screen that
// changes data and the screen that shows it. A producer marks a flag after a
// successful mutation (a new comment, an edited profile); the consumer checks
// and clears it in one step when it becomes visible and reloads if it was set.
//
// # Architecture boundaries
//
// The Coordinator holds booleans only. It does not fetch, schedule or cache
// anything, and it never calls the backend.
//
// # What this package must NOT do
//
//   - Import goSession, session or strapi.
//   - Run watcher callbacks concurrently with each other.
package refresh
