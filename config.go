package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/keystore"
)

// Config is the complete Engine configuration. Start from DefaultConfig or
// ConfigFromEnv and adjust fields before passing it to Builder.WithConfig.
type Config struct {
	API        APIConfig
	Keystore   KeystoreConfig
	Session    SessionConfig
	Cache      CacheConfig
	Permission PermissionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig points the Engine at a Strapi deployment.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

/*
====================================
KEYSTORE CONFIG
====================================
*/

// KeystoreBackend selects where the bearer token is persisted.
type KeystoreBackend string

const (
	KeystoreMemory KeystoreBackend = "memory"
	KeystoreSQLite KeystoreBackend = "sqlite"
	KeystoreRedis  KeystoreBackend = "redis"
)

// KeystoreConfig is used only when no store is passed to
// Builder.WithKeystore.
type KeystoreConfig struct {
	Backend KeystoreBackend
	// Service namespaces entries so several apps can share one backing store.
	Service     string
	Path        string // sqlite file
	RedisAddr   string
	RedisPrefix string

	// Passphrase, when set, wraps the store in keystore.Sealed.
	Passphrase      string
	SealMemory      uint32 // in KB
	SealTime        uint32
	SealParallelism uint8
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls local token inspection at restore time. With no
// JWTSecret or JWTPublicKey tokens are parsed without signature checks.
type SessionConfig struct {
	InspectTokens    bool
	JWTSigningMethod string // "hs256" (default) or "ed25519"
	JWTSecret        []byte
	JWTPublicKey     []byte
	Leeway           time.Duration
}

/*
====================================
CACHE CONFIG
====================================
*/

type CacheConfig struct {
	PageSize            int
	PrefetchConcurrency int
}

/*
====================================
PERMISSION CONFIG
====================================
*/

type PermissionConfig struct {
	MaxBits int // 64 or 128
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultService = "com.geniusparentingai.GeniusParentingAISwift"
)

func defaultConfig() Config {
	seal := keystore.DefaultSealConfig()
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: 30 * time.Second,
		},
		Keystore: KeystoreConfig{
			Backend:         KeystoreMemory,
			Service:         DefaultService,
			Path:            "gpsession.db",
			RedisPrefix:     "gks",
			SealMemory:      seal.Memory,
			SealTime:        seal.Time,
			SealParallelism: seal.Parallelism,
		},
		Session: SessionConfig{
			InspectTokens:    true,
			JWTSigningMethod: "hs256",
			Leeway:           30 * time.Second,
		},
		Cache: CacheConfig{
			PageSize:            25,
			PrefetchConcurrency: 4,
		},
		Permission: PermissionConfig{
			MaxBits: 64,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.JWTSecret = cloneBytes(cfg.Session.JWTSecret)
	out.Session.JWTPublicKey = cloneBytes(cfg.Session.JWTPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
ENVIRONMENT
====================================
*/

func getEnv(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// ConfigFromEnv overlays GPS_* environment variables on the defaults.
// Malformed durations and booleans are reported, not ignored.
func ConfigFromEnv() (Config, error) {
	cfg := defaultConfig()

	cfg.API.BaseURL = getEnv("GPS_API_BASE_URL", cfg.API.BaseURL)
	if v := getEnv("GPS_API_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("GPS_API_TIMEOUT: %w", err)
		}
		cfg.API.Timeout = d
	}

	cfg.Keystore.Backend = KeystoreBackend(strings.ToLower(getEnv("GPS_KEYSTORE", string(cfg.Keystore.Backend))))
	cfg.Keystore.Path = getEnv("GPS_KEYSTORE_PATH", cfg.Keystore.Path)
	cfg.Keystore.RedisAddr = getEnv("GPS_REDIS_ADDR", cfg.Keystore.RedisAddr)
	cfg.Keystore.Passphrase = getEnv("GPS_KEYSTORE_PASSPHRASE", cfg.Keystore.Passphrase)

	if v := getEnv("GPS_JWT_SECRET", ""); v != "" {
		cfg.Session.JWTSecret = []byte(v)
	}

	for name, dst := range map[string]*bool{
		"GPS_METRICS": &cfg.Metrics.Enabled,
		"GPS_AUDIT":   &cfg.Audit.Enabled,
	} {
		v := getEnv(name, "")
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
	}

	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// API
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}

	// Keystore
	if c.Keystore.Service == "" {
		return errors.New("Keystore Service must not be empty")
	}
	switch c.Keystore.Backend {
	case KeystoreMemory:
	case KeystoreSQLite:
		if c.Keystore.Path == "" {
			return errors.New("Keystore Path is required for the sqlite backend")
		}
	case KeystoreRedis:
		if c.Keystore.RedisAddr == "" {
			return errors.New("Keystore RedisAddr is required for the redis backend")
		}
	default:
		return errors.New("Keystore Backend must be 'memory', 'sqlite', or 'redis'")
	}
	if c.Keystore.Passphrase != "" {
		if c.Keystore.SealMemory < 8*1024 {
			return errors.New("Keystore SealMemory must be >= 8192 KB")
		}
		if c.Keystore.SealMemory > keystore.MaxSealMemoryKB {
			return errors.New("Keystore SealMemory must be <= 1048576 KB")
		}
		if c.Keystore.SealTime < 1 || c.Keystore.SealTime > keystore.MaxSealTime {
			return errors.New("Keystore SealTime must be between 1 and 16")
		}
		if c.Keystore.SealParallelism < 1 {
			return errors.New("Keystore SealParallelism must be >= 1")
		}
	}

	// Session
	switch c.Session.JWTSigningMethod {
	case "hs256":
		if len(c.Session.JWTSecret) > 0 && len(c.Session.JWTSecret) < 32 {
			return errors.New("Session JWTSecret must be >= 256 bits")
		}
	case "ed25519":
		if len(c.Session.JWTSecret) > 0 {
			return errors.New("Session JWTSecret is not used with ed25519; set JWTPublicKey")
		}
	default:
		return errors.New("Session JWTSigningMethod must be 'hs256' or 'ed25519'")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be between 0 and 2m")
	}

	// Cache
	if c.Cache.PageSize <= 0 || c.Cache.PageSize > 100 {
		return errors.New("Cache PageSize must be between 1 and 100")
	}
	if c.Cache.PrefetchConcurrency <= 0 {
		return errors.New("Cache PrefetchConcurrency must be > 0")
	}

	// Permission
	switch c.Permission.MaxBits {
	case 64, 128:
	default:
		return errors.New("Permission MaxBits must be 64 or 128")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
