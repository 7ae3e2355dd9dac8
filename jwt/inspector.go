package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the verification algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrTokenMalformed is returned for tokens that do not parse as JWTs or
	// carry no usable user id.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned once exp (plus leeway) has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignature is returned when verification is configured and fails.
	ErrTokenSignature = errors.New("token signature invalid")
)

// Config configures an Inspector. With no Secret and no PublicKey the
// Inspector parses claims without verifying the signature.
type Config struct {
	SigningMethod SigningMethod
	Secret        []byte
	PublicKey     []byte
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Claims are the fields the backend puts in its tokens.
type Claims struct {
	UserID    int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type backendClaims struct {
	ID int `json:"id"`
	jwt.RegisteredClaims
}

// Inspector reads and optionally verifies backend tokens.
type Inspector struct {
	config Config
	now    func() time.Time
}

// NewInspector validates cfg and returns an Inspector.
func NewInspector(cfg Config) (*Inspector, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	switch cfg.SigningMethod {
	case MethodHS256:
	case MethodEd25519:
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Inspector{config: cfg, now: time.Now}, nil
}

// Verifying reports whether Inspect checks signatures.
func (i *Inspector) Verifying() bool {
	switch i.config.SigningMethod {
	case MethodEd25519:
		return len(i.config.PublicKey) > 0
	default:
		return len(i.config.Secret) > 0
	}
}

// Inspect parses token and returns its claims. Expiry is checked in both
// verifying and non-verifying modes.
func (i *Inspector) Inspect(token string) (Claims, error) {
	claims := &backendClaims{}

	if i.Verifying() {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{i.method().Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != i.method().Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return i.verifyKey()
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenMalformed) {
				return Claims{}, ErrTokenMalformed
			}
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenSignature, err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return Claims{}, ErrTokenMalformed
		}
	}

	if claims.ID <= 0 {
		return Claims{}, ErrTokenMalformed
	}

	out := Claims{UserID: claims.ID}
	now := i.now()
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
		if out.IssuedAt.After(now.Add(i.config.MaxFutureIAT)) {
			return Claims{}, ErrTokenMalformed
		}
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
		if !now.Before(out.ExpiresAt.Add(i.config.Leeway)) {
			return out, ErrTokenExpired
		}
	}
	return out, nil
}

func (i *Inspector) method() jwt.SigningMethod {
	if i.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (i *Inspector) verifyKey() (interface{}, error) {
	if i.config.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(i.config.PublicKey)
	}
	return i.config.Secret, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
