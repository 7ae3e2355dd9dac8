package keystore

import (
	"context"
	"errors"
)

// KeyToken is the single key the session layer stores: the backend bearer
// token.
const KeyToken = "jwt"

var (
	// ErrUnavailable wraps backend failures (network, disk, driver).
	ErrUnavailable = errors.New("keystore unavailable")
	// ErrSealBroken is returned by Sealed when a stored value cannot be
	// authenticated with the configured passphrase.
	ErrSealBroken = errors.New("keystore sealed value is corrupt or key mismatch")
	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("keystore key cannot be empty")
)

// Store is a small string key-value store for secrets.
//
// Get returns ok=false with a nil error when the key is absent. Remove of an
// absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

func checkKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
