package authcore

import (
	"context"
	"fmt"
	"io"
	"time"

	internalaudit "github.com/fatenhq/authcore/internal/audit"
	internalmetrics "github.com/fatenhq/authcore/internal/metrics"
)

// Role is the authorization tier assigned to a profile at creation time.
// It never changes through this package; administrative role changes happen
// out of band.
type Role uint8

const (
	// RoleUser is an exported constant or variable used by the session core.
	RoleUser Role = iota
	// RoleExpert is an exported constant or variable used by the session core.
	RoleExpert
	// RoleAdmin is an exported constant or variable used by the session core.
	RoleAdmin
)

// String returns the wire/storage form of the role.
func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleExpert:
		return "expert"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole maps a stored role string onto the closed [Role] enumeration.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "expert":
		return RoleExpert, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUser, fmt.Errorf("unknown role %q", s)
	}
}

// Status represents the lifecycle state of a profile.
type Status uint8

const (
	// StatusActive is an exported constant or variable used by the session core.
	StatusActive Status = iota
	// StatusSuspended is an exported constant or variable used by the session core.
	StatusSuspended
	// StatusPending is an exported constant or variable used by the session core.
	StatusPending
)

// String returns the wire/storage form of the status.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSuspended:
		return "suspended"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// ParseStatus maps a stored status string onto the closed [Status] enumeration.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "active":
		return StatusActive, nil
	case "suspended":
		return StatusSuspended, nil
	case "pending":
		return StatusPending, nil
	default:
		return StatusActive, fmt.Errorf("unknown status %q", s)
	}
}

// Account is the identity held by the external credential provider. It is
// opaque to this package beyond the fields below; password material is never
// visible here.
type Account struct {
	ID        string
	Email     string
	FullName  string
	CreatedAt time.Time
}

// VerificationCode is a live proof-of-contact challenge on a profile. The
// code and its expiry always travel together: a profile either has both or
// has neither, which is why the pair is a single nullable value.
type VerificationCode struct {
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the code is no longer acceptable at the given
// instant. The boundary is exclusive: a code is valid strictly before its
// expiry.
func (c VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Profile is the application-owned record extending an [Account] with role,
// status, and verification data. One row per account, created lazily.
type Profile struct {
	ID           string
	Email        string
	FullName     string
	Role         Role
	Status       Status
	AvatarURL    string
	Verified     bool
	Verification *VerificationCode
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileInsert is the input for [ProfileStore.Insert].
type ProfileInsert struct {
	ID       string
	Email    string
	FullName string
	Role     Role
	Status   Status
	Verified bool
}

// ProfilePatch is a partial update for [ProfileStore.Update]. Nil pointer
// fields are left untouched. When SetVerification is true, Verification is
// applied as-is: a non-nil value writes both code columns, nil clears both.
type ProfilePatch struct {
	FullName *string
	Status   *Status
	Verified *bool

	SetVerification bool
	Verification    *VerificationCode
}

// ProfileStore is the port onto the relational profiles table. SelectByID
// returns (nil, nil) when no row exists; Insert returns an error wrapping
// [ErrProfileExists] on a duplicate id so callers can resolve the benign
// creation race by re-selecting.
type ProfileStore interface {
	SelectByID(ctx context.Context, id string) (*Profile, error)
	Insert(ctx context.Context, row ProfileInsert) (*Profile, error)
	Update(ctx context.Context, id string, patch ProfilePatch) error
}

// PreRegistration is a staged elevated-role account: an administrator
// records the email ahead of time and the matching profile picks up the
// role and name on first creation.
type PreRegistration struct {
	ID        string
	Email     string
	FullName  string
	Role      Role
	Used      bool
	CreatedAt time.Time
}

// PreRegistry is the optional port onto the pre-registered accounts table.
// LookupUnused returns (nil, nil) when no unused row matches the email.
type PreRegistry interface {
	LookupUnused(ctx context.Context, email string) (*PreRegistration, error)
	MarkUsed(ctx context.Context, id string) error
}

// SignUpMetadata carries the non-credential fields forwarded to the
// credential provider during account creation.
type SignUpMetadata struct {
	FullName string
}

// SessionEventType identifies an asynchronous notification from the
// credential provider.
type SessionEventType uint8

const (
	// SessionSignedIn is an exported constant or variable used by the session core.
	SessionSignedIn SessionEventType = iota
	// SessionSignedOut is an exported constant or variable used by the session core.
	SessionSignedOut
	// SessionTokenRefreshed is an exported constant or variable used by the session core.
	SessionTokenRefreshed
)

// SessionEvent is an asynchronous session-change notification. Account is
// nil for [SessionSignedOut].
type SessionEvent struct {
	Type    SessionEventType
	Account *Account
}

// CredentialStore is the narrow port onto the hosted credential provider.
// Implementations live in the credstore subpackage; this package never
// reimplements credential handling.
//
// CurrentSession returns (nil, nil) when no session exists. OnSessionChange
// registers a handler for provider-initiated changes (token refresh in
// another tab, external invalidation) and returns an unsubscribe function.
type CredentialStore interface {
	CurrentSession(ctx context.Context) (*Account, error)
	SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*Account, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Account, error)
	SignOut(ctx context.Context) error
	OnSessionChange(handler func(SessionEvent)) (unsubscribe func())
}

// SessionState is the derived state of a [Session] snapshot.
type SessionState uint8

const (
	// StateLoading is an exported constant or variable used by the session core.
	StateLoading SessionState = iota
	// StateAuthenticated is an exported constant or variable used by the session core.
	StateAuthenticated
	// StateAnonymous is an exported constant or variable used by the session core.
	StateAnonymous
)

// Session is a point-in-time snapshot of the orchestrator's cached state.
// Loading is true only during the initial restore. Account and Profile are
// both set in the authenticated state; a session with an account but no
// profile is treated as anonymous by the route guard.
type Session struct {
	Account *Account
	Profile *Profile
	Loading bool
}

// State derives the coarse session state used for routing decisions.
func (s Session) State() SessionState {
	if s.Loading {
		return StateLoading
	}
	if s.Account != nil && s.Profile != nil {
		return StateAuthenticated
	}
	return StateAnonymous
}

// AuditEvent is a structured audit record emitted by the core.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricSignInSuccess is an exported constant or variable used by the session core.
	MetricSignInSuccess = internalmetrics.MetricSignInSuccess
	// MetricSignInFailure is an exported constant or variable used by the session core.
	MetricSignInFailure = internalmetrics.MetricSignInFailure
	// MetricSignUpSuccess is an exported constant or variable used by the session core.
	MetricSignUpSuccess = internalmetrics.MetricSignUpSuccess
	// MetricSignUpRejected is an exported constant or variable used by the session core.
	MetricSignUpRejected = internalmetrics.MetricSignUpRejected
	// MetricSignUpProfileMissing is an exported constant or variable used by the session core.
	MetricSignUpProfileMissing = internalmetrics.MetricSignUpProfileMissing
	// MetricSignOutSuccess is an exported constant or variable used by the session core.
	MetricSignOutSuccess = internalmetrics.MetricSignOutSuccess
	// MetricSignOutFailure is an exported constant or variable used by the session core.
	MetricSignOutFailure = internalmetrics.MetricSignOutFailure
	// MetricSessionRestored is an exported constant or variable used by the session core.
	MetricSessionRestored = internalmetrics.MetricSessionRestored
	// MetricProfileCreated is an exported constant or variable used by the session core.
	MetricProfileCreated = internalmetrics.MetricProfileCreated
	// MetricProfileCreateFailed is an exported constant or variable used by the session core.
	MetricProfileCreateFailed = internalmetrics.MetricProfileCreateFailed
	// MetricProfileRefreshed is an exported constant or variable used by the session core.
	MetricProfileRefreshed = internalmetrics.MetricProfileRefreshed
	// MetricSessionEventApplied is an exported constant or variable used by the session core.
	MetricSessionEventApplied = internalmetrics.MetricSessionEventApplied
	// MetricSessionEventDiscarded is an exported constant or variable used by the session core.
	MetricSessionEventDiscarded = internalmetrics.MetricSessionEventDiscarded
	// MetricCodeIssued is an exported constant or variable used by the session core.
	MetricCodeIssued = internalmetrics.MetricCodeIssued
	// MetricCodeIssueFailed is an exported constant or variable used by the session core.
	MetricCodeIssueFailed = internalmetrics.MetricCodeIssueFailed
	// MetricCodeRateLimited is an exported constant or variable used by the session core.
	MetricCodeRateLimited = internalmetrics.MetricCodeRateLimited
	// MetricCodeValidateSuccess is an exported constant or variable used by the session core.
	MetricCodeValidateSuccess = internalmetrics.MetricCodeValidateSuccess
	// MetricCodeValidateFailure is an exported constant or variable used by the session core.
	MetricCodeValidateFailure = internalmetrics.MetricCodeValidateFailure
	// MetricAuditDropped is an exported constant or variable used by the session core.
	MetricAuditDropped = internalmetrics.MetricAuditDropped
)

// Metrics holds the core's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig]. When Enabled is false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled: cfg.Enabled,
	})
}
