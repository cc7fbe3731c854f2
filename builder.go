package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fatenhq/authcore/internal/audit"
	"github.com/fatenhq/authcore/internal/limiters"
	"github.com/fatenhq/authcore/internal/metrics"
)

// Builder assembles a [Core] from its collaborators. Obtain one with [New],
// chain the With methods, then call Build exactly once.
type Builder struct {
	config    Config
	creds     CredentialStore
	profiles  ProfileStore
	prereg    PreRegistry
	redis     redis.UniversalClient
	logger    zerolog.Logger
	auditSink AuditSink

	built bool
}

// New returns a [Builder] preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithCredentialStore wires the credential provider port. Required.
func (b *Builder) WithCredentialStore(creds CredentialStore) *Builder {
	b.creds = creds
	return b
}

// WithProfileStore wires the profile persistence port. Required.
func (b *Builder) WithProfileStore(profiles ProfileStore) *Builder {
	b.profiles = profiles
	return b
}

// WithPreRegistry wires the optional staged-accounts port consulted during
// lazy profile creation.
func (b *Builder) WithPreRegistry(prereg PreRegistry) *Builder {
	b.prereg = prereg
	return b
}

// WithRedis wires the redis client backing the issuance throttle. Required
// only when a throttle is enabled in the configuration.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger wires the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink wires the sink that receives audit events. It only takes
// effect when auditing is enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the assembled configuration and returns the [Core]. The
// builder must not be reused afterwards.
func (b *Builder) Build() (*Core, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.creds == nil {
		return nil, errors.New("a CredentialStore is required")
	}
	if b.profiles == nil {
		return nil, errors.New("a ProfileStore is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	throttled := b.config.Verification.EnableAccountThrottle || b.config.Verification.EnableIPThrottle
	if throttled && b.redis == nil {
		return nil, errors.New("issuance throttling requires a redis client")
	}

	b.built = true

	m := metrics.New(metrics.Config{Enabled: b.config.Metrics.Enabled})
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:      b.config.Audit.Enabled,
		BufferSize:   b.config.Audit.BufferSize,
		DropIfFull:   b.config.Audit.DropIfFull,
		DrainTimeout: b.config.Audit.DrainTimeout,
		OnDrop:       func() { m.Inc(metrics.MetricAuditDropped) },
	}, b.auditSink)

	var limiter *limiters.VerificationLimiter
	if throttled {
		limiter = limiters.NewVerificationLimiter(b.redis, b.config.Verification.RedisPrefix, limiters.VerificationConfig{
			EnableAccountThrottle: b.config.Verification.EnableAccountThrottle,
			EnableIPThrottle:      b.config.Verification.EnableIPThrottle,
			Window:                b.config.Verification.CodeTTL,
			MaxIssues:             b.config.Verification.MaxIssuesPerWindow,
		})
	}

	core := &Core{
		Sessions: newOrchestrator(b.config, b.creds, b.profiles, b.prereg, dispatcher, m, b.logger),
		Codes: &CodeEngine{
			config:   b.config.Verification,
			profiles: b.profiles,
			limiter:  limiter,
			audit:    dispatcher,
			metrics:  m,
			logger:   b.logger,
			now:      timeNow,
		},
		audit:   dispatcher,
		metrics: m,
	}
	return core, nil
}

// Core bundles the session orchestrator and the verification code engine
// built from one configuration. The two share the audit dispatcher, metrics,
// and profile store.
type Core struct {
	Sessions *Orchestrator
	Codes    *CodeEngine

	audit   *audit.Dispatcher
	metrics *metrics.Metrics
}

// Close shuts down the orchestrator subscription and drains the audit
// dispatcher. Safe to call more than once.
func (c *Core) Close() {
	if c == nil {
		return
	}
	c.Sessions.Close()
	c.audit.Close()
}

// MetricsSnapshot returns a copy of all counters. Empty when metrics are
// disabled.
func (c *Core) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (c *Core) AuditDropped() uint64 {
	return c.audit.Dropped()
}
