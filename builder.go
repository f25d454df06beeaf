package authgate

import (
	"errors"
	"time"

	internalaudit "github.com/channelworks/authgate/internal/audit"
	internalmetrics "github.com/channelworks/authgate/internal/metrics"
	"github.com/channelworks/authgate/password"
	"github.com/channelworks/authgate/session"
	"github.com/channelworks/authgate/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a [Service]. Use [New], chain the With options, then
// Build. A builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts     AccountStore
	sessionStore session.Store
	mailer       Mailer
	capability   Capability
	auditSink    AuditSink
	clock        func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing sessions and challenge
// stores. Without it the service runs on in-memory stores, which is fine
// for tests and single-node deployments but loses everything on restart.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore supplies the account persistence implementation.
// Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithSessionStore overrides the session store, bypassing the
// Redis-or-memory selection.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithMailer supplies the challenge mail delivery implementation.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithCapability supplies the external authorization checker.
func (b *Builder) WithCapability(c Capability) *Builder {
	b.capability = c
	return b
}

// WithAuditSink enables auditing into the given sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithClock overrides the time source. Tests use it to drive lockout and
// expiry windows deterministically.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the in-process metrics system.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the resolve-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the service.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
		MinLength:   b.config.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     b.config.Token.AccessTTL,
		RefreshTTL:    b.config.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(b.config.Token.SigningMethod),
		PrivateKey:    b.config.Token.PrivateKey,
		PublicKey:     b.config.Token.PublicKey,
		Issuer:        b.config.Token.Issuer,
		Audience:      b.config.Token.Audience,
		Leeway:        b.config.Token.Leeway,
		MaxTokenAge:   b.config.Token.MaxTokenAge,
		MaxFutureIAT:  b.config.Token.MaxFutureIAT,
	})
	if err != nil {
		return nil, err
	}

	sessions := b.sessionStore
	if sessions == nil {
		if b.redis != nil {
			sessions = session.NewRedisStore(b.redis, session.RedisConfig{
				Prefix:  b.config.Session.RedisPrefix,
				TTL:     b.config.Session.TTL,
				Sliding: b.config.Session.SlidingExpiration,
			})
		} else {
			sessions = session.NewMemoryStore(b.config.Session.TTL, b.config.Session.SlidingExpiration)
		}
	}

	var resets, verifications challengeStore
	if b.config.PasswordReset.Enabled {
		resets = b.newChallengeStore(b.config.Session.RedisPrefix + ":pr")
	}
	if b.config.EmailVerification.Enabled {
		verifications = b.newChallengeStore(b.config.Session.RedisPrefix + ":ev")
	}

	svc := &Service{
		cfg:           b.config,
		accounts:      b.accounts,
		sessions:      sessions,
		hasher:        hasher,
		tokens:        tokens,
		resets:        resets,
		verifications: verifications,
		mailer:        b.mailer,
		capability:    b.capability,
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:       b.config.Metrics.Enabled,
			EnableLatency: b.config.Metrics.EnableLatencyHistograms,
		}),
		clock: b.clock,
	}

	if b.config.Audit.Enabled {
		svc.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink)
	}

	return svc, nil
}

func (b *Builder) newChallengeStore(prefix string) challengeStore {
	if b.redis != nil {
		return newRedisChallengeStore(b.redis, prefix)
	}
	return newMemoryChallengeStore()
}
