package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/strapi"
)

var (
	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrNotSignedIn is returned by operations that need a current user.
	ErrNotSignedIn = session.ErrNotSignedIn
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionInvalidated is returned when the backend rejected the bearer
	// token and the session was ended.
	ErrSessionInvalidated = errors.New("session invalidated by backend")
	// ErrBackendUnavailable wraps transport failures and 5xx responses.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrCourseNotFound is returned for a course id the backend does not know.
	ErrCourseNotFound = errors.New("course not found")
)

// mapBackendError translates strapi client errors into Engine sentinels.
// Context errors and errors already in Engine terms pass through.
func mapBackendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, strapi.ErrUnauthorized) {
		return fmt.Errorf("%w: %v", ErrSessionInvalidated, err)
	}
	if errors.Is(err, strapi.ErrTransport) || errors.Is(err, strapi.ErrDecode) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	var apiErr *strapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return err
}

func mapLoginError(err error) error {
	if strapi.IsStatus(err, http.StatusBadRequest) {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return mapBackendError(err)
}

func mapCourseError(err error) error {
	if strapi.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %v", ErrCourseNotFound, err)
	}
	return mapBackendError(err)
}
