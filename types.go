package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/channelworks/authgate/internal/audit"
	internalmetrics "github.com/channelworks/authgate/internal/metrics"
)

// AccountStatus is the lifecycle state of a storefront account.
type AccountStatus uint8

const (
	// StatusPending marks a freshly registered account awaiting email
	// verification.
	StatusPending AccountStatus = iota
	// StatusActive marks an account in good standing.
	StatusActive
	// StatusSuspended marks an administratively disabled account. A
	// suspended account can be reinstated.
	StatusSuspended
	// StatusClosed is terminal. Closed accounts never authenticate again.
	StatusClosed
)

// String returns the lowercase wire name of the status.
func (s AccountStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Account is the full account record returned by [AccountStore]. The lock
// sub-state (FailedAttempts, LockUntil) is orthogonal to Status and is
// driven exclusively through [AccountStore.RecordFailure] and
// [AccountStore.RecordSuccess].
type Account struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	CredentialHash string
	Role           string
	Status         AccountStatus
	EmailVerified  bool

	FailedAttempts int
	LockUntil      time.Time

	CreatedAt    time.Time
	LastLogin    time.Time
	LastActivity time.Time
}

// Locked reports whether the account's lockout window covers now.
func (a *Account) Locked(now time.Time) bool {
	return !a.LockUntil.IsZero() && now.Before(a.LockUntil)
}

// AuthMethod records which credential authenticated a request.
type AuthMethod uint8

const (
	// MethodNone means the request carried no usable credential.
	MethodNone AuthMethod = iota
	// MethodSession means a server-side session record authenticated the
	// request.
	MethodSession
	// MethodToken means a bearer access token authenticated the request.
	MethodToken
)

// String returns "none", "session", or "token".
func (m AuthMethod) String() string {
	switch m {
	case MethodSession:
		return "session"
	case MethodToken:
		return "token"
	default:
		return "none"
	}
}

// AuthContext is the per-request identity produced by [Service.Resolve].
// It is built fresh on every request and must not be cached across requests.
type AuthContext struct {
	Account   *Account
	Method    AuthMethod
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authenticated reports whether the resolver established an identity.
func (a *AuthContext) Authenticated() bool {
	return a != nil && a.Account != nil && a.Method != MethodNone
}

// TokenPair is an access/refresh token pair minted by login, register, and
// refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RegisterInput is the input for [Service.Register].
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// LoginResult is returned by [Service.Login] and [Service.Register].
// SessionID is empty when session establishment was not requested.
type LoginResult struct {
	Account   *Account
	Tokens    TokenPair
	SessionID string
}

// AccountStore is the persistence interface callers implement to plug
// authgate into their account database. RecordFailure must be atomic at the
// storage layer; a SQL implementation uses a single conditional UPDATE, not
// read-modify-write.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdateCredentialHash(ctx context.Context, id, hash string) error
	UpdateStatus(ctx context.Context, id string, status AccountStatus) error
	MarkEmailVerified(ctx context.Context, id string) error

	// RecordFailure increments the failed-attempt counter. When the
	// incremented count reaches threshold, it sets the lock window to
	// now+lockFor in the same atomic step and reports locked=true.
	RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (locked bool, err error)

	// RecordSuccess resets the failure counter, clears any lock window,
	// and stamps LastLogin.
	RecordSuccess(ctx context.Context, id string, now time.Time) error

	// TouchActivity stamps LastActivity. Best effort; callers log and
	// continue on error.
	TouchActivity(ctx context.Context, id string, now time.Time) error
}

// Mailer delivers challenge emails. Delivery infrastructure is out of scope
// here; the storefront supplies a real implementation.
type Mailer interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// Capability answers authorization questions about an authenticated
// account. The permission matrix itself lives outside this package.
type Capability interface {
	Allowed(ctx context.Context, account *Account, action string) (bool, error)
}

// AuditEvent is a structured audit record emitted by the service.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginLocked           = internalmetrics.MetricLoginLocked
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	MetricResolveSession        = internalmetrics.MetricResolveSession
	MetricResolveToken          = internalmetrics.MetricResolveToken
	MetricResolveRejected       = internalmetrics.MetricResolveRejected
	MetricSessionCreated        = internalmetrics.MetricSessionCreated
	MetricSessionDestroyed      = internalmetrics.MetricSessionDestroyed
	MetricSessionPromoted       = internalmetrics.MetricSessionPromoted
	MetricHashMigration         = internalmetrics.MetricHashMigration
	MetricCSRFRejected          = internalmetrics.MetricCSRFRejected
	MetricPasswordChange        = internalmetrics.MetricPasswordChange
	MetricPasswordResetRequest  = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetConfirm  = internalmetrics.MetricPasswordResetConfirm
	MetricEmailVerified         = internalmetrics.MetricEmailVerified
	MetricAccountCreated        = internalmetrics.MetricAccountCreated
	MetricResolveLatency        = internalmetrics.MetricResolveLatency
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
