// Package coursecache keeps fetched course details for the signed-in user so
// reopening a course does not refetch it. Course content does not change
// during a session; the only invalidation is identity change (logout), on
// which the Engine calls [Cache.Reset].
//
// Entries live in the shared [sessionstore.Store] under the current user's id,
// so nothing is readable or writable without a current user.
package coursecache
