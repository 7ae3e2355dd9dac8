package strapi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for every 401 response.
	ErrUnauthorized = errors.New("backend rejected the bearer token")
	// ErrTransport wraps network failures before a response arrived.
	ErrTransport = errors.New("backend request failed")
	// ErrDecode wraps a 2xx body that did not match the expected shape.
	ErrDecode = errors.New("backend response could not be decoded")
)

// APIError is a non-2xx, non-401 response. Name and Message come from the
// Strapi error envelope when the body carried one.
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("strapi: %d %s: %s", e.Status, e.Name, e.Message)
	}
	return fmt.Sprintf("strapi: received status code %d", e.Status)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
