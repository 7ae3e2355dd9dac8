package goSession

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/MrEthical07/goSession/coursecache"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/keystore"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionstore"
	"github.com/MrEthical07/goSession/strapi"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config Config

	keystore   keystore.Store
	backend    *strapi.Client
	httpClient *http.Client
	catalog    permission.Catalog
	auditSink  AuditSink
	logger     zerolog.Logger

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKeystore supplies the token store, overriding Config.Keystore's
// backend selection. The Engine does not close a supplied store.
func (b *Builder) WithKeystore(store keystore.Store) *Builder {
	b.keystore = store
	return b
}

// WithBackend supplies a preconfigured Strapi client. Build installs its
// token source and 401 hook.
func (b *Builder) WithBackend(client *strapi.Client) *Builder {
	b.backend = client
	return b
}

// WithHTTPClient sets the transport for the Strapi client Build creates.
// It is ignored when WithBackend is used.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink sets the audit destination. Without one, enabled audit goes
// to a LoggerSink on the Builder's logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithCatalog overrides permission.DefaultCatalog.
func (b *Builder) WithCatalog(catalog permission.Catalog) *Builder {
	b.catalog = catalog
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens the keystore and wires every
// service together.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx := context.Background()
	log := b.logger

	var closers []io.Closer
	fail := func(err error) (*Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
		return nil, err
	}

	// -------- KEYSTORE --------
	store := b.keystore
	if store == nil {
		opened, closer, err := openKeystore(ctx, cfg.Keystore)
		if err != nil {
			return fail(err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		store = opened
	}
	if cfg.Keystore.Passphrase != "" {
		sealed, err := keystore.NewSealed(ctx, store, cfg.Keystore.Passphrase, keystore.SealConfig{
			Memory:      cfg.Keystore.SealMemory,
			Time:        cfg.Keystore.SealTime,
			Parallelism: cfg.Keystore.SealParallelism,
			SaltLength:  keystore.DefaultSealConfig().SaltLength,
		})
		if err != nil {
			return fail(err)
		}
		store = sealed
	}

	// -------- BACKEND --------
	backend := b.backend
	if backend == nil {
		client, err := strapi.NewClient(strapi.Config{
			BaseURL:    cfg.API.BaseURL,
			Timeout:    cfg.API.Timeout,
			HTTPClient: b.httpClient,
			Logger:     log,
		})
		if err != nil {
			return fail(err)
		}
		backend = client
	}

	// -------- SESSION --------
	var inspector *jwt.Inspector
	if cfg.Session.InspectTokens {
		i, err := jwt.NewInspector(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.Session.JWTSigningMethod),
			Secret:        cloneBytes(cfg.Session.JWTSecret),
			PublicKey:     cloneBytes(cfg.Session.JWTPublicKey),
			Leeway:        cfg.Session.Leeway,
		})
		if err != nil {
			return fail(err)
		}
		inspector = i
	}

	mgr, err := session.NewManager(session.Options{
		Keystore:  store,
		Fetcher:   backend,
		Inspector: inspector,
		IsUnauthorized: func(err error) bool {
			return errors.Is(err, strapi.ErrUnauthorized)
		},
		Logger: log,
	})
	if err != nil {
		return fail(err)
	}
	backend.SetTokenSource(mgr.Token)
	backend.OnUnauthorized(func(ctx context.Context) {
		_ = mgr.Invalidate(ctx)
	})

	// -------- PERMISSIONS --------
	catalog := b.catalog
	if catalog == nil {
		catalog = permission.DefaultCatalog()
	}
	perms, err := permission.NewManager(catalog, cfg.Permission.MaxBits)
	if err != nil {
		return fail(err)
	}

	metrics := NewMetrics(cfg.Metrics)
	data := sessionstore.New()

	courses, err := coursecache.New(coursecache.Options{
		Store:       data,
		CurrentUser: mgr.UserID,
		Logger:      log,
		OnHit:       func() { metrics.Inc(MetricCourseCacheHit) },
		OnMiss:      func() { metrics.Inc(MetricCourseCacheMiss) },
	})
	if err != nil {
		return fail(err)
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewLoggerSink(log)
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		log:         log.With().Str("component", "engine").Logger(),
		keystore:    store,
		closers:     closers,
		backend:     backend,
		session:     mgr,
		store:       data,
		permissions: perms,
		courses:     courses,
		refresh:     refresh.NewCoordinator(),
		metrics:     metrics,
		audit:       newAuditDispatcher(cfg.Audit, sink),
	}

	if err := perms.Attach(mgr); err != nil {
		engine.audit.Close()
		return fail(err)
	}
	engine.unsubscribe = append(engine.unsubscribe,
		mgr.Subscribe(engine.onUserChanged),
		mgr.OnLogout(engine.onSessionEnded),
	)

	b.built = true

	return engine, nil
}

func openKeystore(ctx context.Context, cfg KeystoreConfig) (keystore.Store, io.Closer, error) {
	switch cfg.Backend {
	case KeystoreSQLite:
		s, err := keystore.OpenSQLite(ctx, cfg.Path, cfg.Service)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case KeystoreRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.RedisAddr},
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("%w: %v", keystore.ErrUnavailable, err)
		}
		return keystore.NewRedis(client, cfg.RedisPrefix, cfg.Service), client, nil
	default:
		return keystore.NewMemory(), nil, nil
	}
}
