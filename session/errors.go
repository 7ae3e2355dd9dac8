package session

import "errors"

var (
	// ErrNotSignedIn is returned by operations that need a signed-in session.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrInvalidSession is returned by StartSession for an empty token or a
	// nil user.
	ErrInvalidSession = errors.New("session requires a token and a user")
	// ErrNoFetcher is returned when a fetch is requested but no UserFetcher
	// was configured.
	ErrNoFetcher = errors.New("no user fetcher configured")
	// ErrSessionChanged is returned when a fetch completed after the session
	// it was started for had ended; its result is discarded.
	ErrSessionChanged = errors.New("session changed during fetch")
)
