package keystore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealHeaderKey = "__seal"
	sealPrefix    = "s1."
	sealCheck     = "sealed-store-check"
	algorithmID   = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minPassBytes          = 10
)

// Upper bounds on Argon2id cost. Headers above them are rejected before any
// key derivation runs.
const (
	MaxSealMemoryKB uint32 = 1024 * 1024
	MaxSealTime     uint32 = 16
)

// SealConfig controls Argon2id key derivation for [Sealed]. The derived key is
// always 32 bytes (XChaCha20-Poly1305).
type SealConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultSealConfig returns interactive-grade Argon2id parameters.
func DefaultSealConfig() SealConfig {
	return SealConfig{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
	}
}

// Sealed encrypts values before handing them to an inner Store.
//
// The derivation parameters and salt live in the inner store under a reserved
// header key in PHC form ($argon2id$v=19$m=..,t=..,p=..$salt$check), so a
// store opened with different parameters still derives the original key. Each
// value is sealed with a random nonce and the entry key as associated data, so
// a ciphertext copied to another key fails to open.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
}

type sealParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	check       []byte
}

// NewSealed opens a sealed view over inner. On first use it writes the header;
// later opens verify the passphrase against it and fail with ErrSealBroken on
// mismatch.
func NewSealed(ctx context.Context, inner Store, passphrase string, cfg SealConfig) (*Sealed, error) {
	if inner == nil {
		return nil, errors.New("sealed store requires an inner store")
	}
	if len(passphrase) < minPassBytes {
		return nil, errors.New("passphrase must be at least 10 bytes")
	}
	if err := validateSealConfig(cfg); err != nil {
		return nil, err
	}

	header, ok, err := inner.Get(ctx, sealHeaderKey)
	if err != nil {
		return nil, err
	}

	if !ok {
		salt := make([]byte, cfg.SaltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
		p := sealParams{memory: cfg.Memory, time: cfg.Time, parallelism: cfg.Parallelism, salt: salt}
		s, err := newSealedFromParams(inner, passphrase, p)
		if err != nil {
			return nil, err
		}
		check, err := s.seal(sealHeaderKey, []byte(sealCheck))
		if err != nil {
			return nil, err
		}
		p.check = check
		if err := inner.Set(ctx, sealHeaderKey, encodeSealParams(p)); err != nil {
			return nil, err
		}
		return s, nil
	}

	p, err := parseSealParams(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	s, err := newSealedFromParams(inner, passphrase, p)
	if err != nil {
		return nil, err
	}
	plain, err := s.open(sealHeaderKey, p.check)
	if err != nil || string(plain) != sealCheck {
		return nil, ErrSealBroken
	}
	return s, nil
}

func newSealedFromParams(inner Store, passphrase string, p sealParams) (*Sealed, error) {
	key := argon2.IDKey([]byte(passphrase), p.salt, p.time, p.memory, p.parallelism, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkUserKey(key); err != nil {
		return "", false, err
	}
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	if !strings.HasPrefix(raw, sealPrefix) {
		return "", false, ErrSealBroken
	}
	blob, err := base64.RawStdEncoding.DecodeString(raw[len(sealPrefix):])
	if err != nil {
		return "", false, ErrSealBroken
	}
	plain, err := s.open(key, blob)
	if err != nil {
		return "", false, ErrSealBroken
	}
	return string(plain), true, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	if err := checkUserKey(key); err != nil {
		return err
	}
	blob, err := s.seal(key, []byte(value))
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealPrefix+base64.RawStdEncoding.EncodeToString(blob))
}

func (s *Sealed) Remove(ctx context.Context, key string) error {
	if err := checkUserKey(key); err != nil {
		return err
	}
	return s.inner.Remove(ctx, key)
}

func (s *Sealed) seal(key string, plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, []byte(key)), nil
}

func (s *Sealed) open(key string, blob []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(blob) < n+s.aead.Overhead() {
		return nil, ErrSealBroken
	}
	return s.aead.Open(nil, blob[:n], blob[n:], []byte(key))
}

func checkUserKey(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if key == sealHeaderKey {
		return errors.New("keystore key is reserved")
	}
	return nil
}

func validateSealConfig(cfg SealConfig) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("seal Memory must be >= 8192 KB")
	}
	if cfg.Memory > MaxSealMemoryKB {
		return errors.New("seal Memory must be <= 1048576 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("seal Time must be >= 1")
	}
	if cfg.Time > MaxSealTime {
		return errors.New("seal Time must be <= 16")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("seal Parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("seal SaltLength must be >= 16")
	}
	return nil
}

func encodeSealParams(p sealParams) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		p.memory,
		p.time,
		p.parallelism,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.check),
	)
}

func parseSealParams(encoded string) (sealParams, error) {
	var p sealParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, errors.New("invalid header format")
	}
	if parts[1] != algorithmID {
		return p, errors.New("unsupported algorithm")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return p, errors.New("unsupported argon2 version")
	}

	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return p, errors.New("invalid parameter entry")
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return p, errors.New("invalid parameter value")
		}
		switch kv[0] {
		case "m":
			p.memory = uint32(v)
		case "t":
			p.time = uint32(v)
		case "p":
			if v > 255 {
				return p, errors.New("invalid parallelism parameter")
			}
			p.parallelism = uint8(v)
		default:
			return p, errors.New("unknown parameter")
		}
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return p, errors.New("header parameters below minimum")
	}
	if p.memory > MaxSealMemoryKB || p.time > MaxSealTime {
		return p, errors.New("header parameters above maximum")
	}

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return p, errors.New("invalid salt")
	}
	if p.check, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.check) == 0 {
		return p, errors.New("invalid check value")
	}
	return p, nil
}
