package sessionkit

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/notablehq/sessionkit/csrf"
	"github.com/notablehq/sessionkit/internal/audit"
	"github.com/notablehq/sessionkit/internal/flows"
	"github.com/notablehq/sessionkit/jwt"
	"github.com/notablehq/sessionkit/password"
	"github.com/notablehq/sessionkit/ratelimit"
	"github.com/notablehq/sessionkit/redisstore"
	"github.com/notablehq/sessionkit/refresh"
)

// Builder assembles an Engine. Configure during initialization, call Build
// once, then treat the Engine as immutable.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  refresh.Store

	userProvider UserProvider
	hasher       PasswordHasher
	mailer       Mailer
	auditSink    AuditSink
	logger       *slog.Logger

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a Redis client. It backs the rate limiters and, unless
// WithStore overrides it, the refresh token store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore supplies a refresh token store, overriding the Redis default.
// See pgstore and boltstore for the shipped alternatives.
func (b *Builder) WithStore(store RefreshTokenStore) *Builder {
	b.store = store
	return b
}

// WithUserProvider supplies the application's user lookup. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithHasher replaces the default Argon2id password hasher.
func (b *Builder) WithHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithMailer enables refresh reuse alert emails.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink enables asynchronous audit event delivery.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger replaces slog.Default for engine-internal warnings.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires the flow dependencies, and
// returns the ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, fmt.Errorf("%w: builder already used", ErrConfig)
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, fmt.Errorf("%w: a refresh token store is required (WithStore or WithRedis)", ErrConfig)
		}
		store = redisstore.New(b.redis, "rt")
	}

	if b.userProvider == nil {
		return nil, fmt.Errorf("%w: user provider required", ErrConfig)
	}

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		hasher = ph
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	csrfService, err := csrf.New(cfg.CSRF.Secret, cfg.CSRF.TTL)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		jwtManager: jwtManager,
		csrf:       csrfService,
		store:      store,
		users:      b.userProvider,
		hasher:     hasher,
		mailer:     b.mailer,
		logger:     logger,
		audit:      audit.NewDispatcher(b.auditSink, cfg.Audit.BufferSize),
	}

	if b.redis != nil {
		engine.loginLimiter, err = ratelimit.New(b.redis, cfg.RateLimit.RedisPrefix+":login", cfg.RateLimit.Login)
		if err != nil {
			return nil, err
		}
		engine.refreshLimiter, err = ratelimit.New(b.redis, cfg.RateLimit.RedisPrefix+":refresh", cfg.RateLimit.Refresh)
		if err != nil {
			return nil, err
		}
	}

	engine.flows = engine.buildFlowDeps(flows.RetryPolicy{
		Attempts: cfg.Retry.Attempts,
		Backoff:  cfg.Retry.Backoff,
	})

	b.built = true

	return engine, nil
}
