package session

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/model"
)

// State is the session lifecycle state.
type State int

const (
	StateSignedOut State = iota
	StateValidating
	StateSignedIn
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateSignedIn:
		return "signed_in"
	default:
		return "signed_out"
	}
}

// Reason tells logout observers why the session ended.
type Reason int

const (
	// ReasonLogout is an explicit user logout.
	ReasonLogout Reason = iota
	// ReasonInvalidated means the backend rejected the token.
	ReasonInvalidated
	// ReasonRestoreFailed means a stored token could not be turned back into
	// a session at launch.
	ReasonRestoreFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidated:
		return "invalidated"
	case ReasonRestoreFailed:
		return "restore_failed"
	default:
		return "logout"
	}
}

// Event is delivered to logout observers.
type Event struct {
	Reason    Reason
	SessionID string
	UserID    int
	At        time.Time
}

// Info is a point-in-time view of the session.
type Info struct {
	State     State
	SessionID string
	UserID    int
	Email     string
	Since     time.Time
}

// UserFetcher loads the user that owns the current bearer token.
type UserFetcher interface {
	FetchCurrentUser(ctx context.Context) (*model.User, error)
}

// UserFetcherFunc adapts a function to UserFetcher.
type UserFetcherFunc func(ctx context.Context) (*model.User, error)

func (f UserFetcherFunc) FetchCurrentUser(ctx context.Context) (*model.User, error) {
	return f(ctx)
}
