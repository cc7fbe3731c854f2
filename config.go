package authcore

import (
	"errors"
	"time"
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Verification VerificationConfig
	SignUp       SignUpConfig
	Account      AccountConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig defines a public type used by authcore APIs.
//
// The code space is fixed: six ASCII digits drawn from [100000, 999999].
// Only the lifetime and issuance throttling are tunable.
type VerificationConfig struct {
	CodeTTL time.Duration

	EnableAccountThrottle bool
	EnableIPThrottle      bool
	MaxIssuesPerWindow    int
	RedisPrefix           string
}

/*
====================================
SIGN-UP CONFIG
====================================
*/

// SignUpConfig defines a public type used by authcore APIs.
//
// ProvisionWait is how long SignUp waits before its single profile-row poll.
// Profile provisioning after sign-up is asynchronous and external; there is
// deliberately no retry loop, matching the one-shot check of the platform.
type SignUpConfig struct {
	ProvisionWait time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig defines a public type used by authcore APIs.
//
// DefaultRole and DefaultStatus apply to lazily created profiles. A wired
// [PreRegistry] can override the role at creation; nothing changes it later.
type AccountConfig struct {
	DefaultRole   Role
	DefaultStatus Status
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authcore APIs.
//
// DrainTimeout bounds how long Close spends flushing queued audit events;
// events still queued at the deadline count as dropped.
type AuditConfig struct {
	Enabled      bool
	BufferSize   int
	DropIfFull   bool
	DrainTimeout time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authcore APIs.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Verification: VerificationConfig{
			CodeTTL:               15 * time.Minute,
			EnableAccountThrottle: false,
			EnableIPThrottle:      false,
			MaxIssuesPerWindow:    5,
			RedisPrefix:           "fvc",
		},
		SignUp: SignUpConfig{
			ProvisionWait: 1 * time.Second,
		},
		Account: AccountConfig{
			DefaultRole:   RoleUser,
			DefaultStatus: StatusActive,
		},
		Audit: AuditConfig{
			Enabled:      false,
			BufferSize:   1024,
			DropIfFull:   true,
			DrainTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Verification
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification CodeTTL must be > 0")
	}
	if c.Verification.EnableAccountThrottle || c.Verification.EnableIPThrottle {
		if c.Verification.MaxIssuesPerWindow <= 0 {
			return errors.New("Verification MaxIssuesPerWindow must be > 0 when throttling is enabled")
		}
	}
	if c.Verification.RedisPrefix == "" {
		return errors.New("Verification RedisPrefix must not be empty")
	}

	// Sign-up
	if c.SignUp.ProvisionWait < 0 {
		return errors.New("SignUp ProvisionWait must be >= 0")
	}

	// Account
	switch c.Account.DefaultRole {
	case RoleUser, RoleExpert, RoleAdmin:
		// valid
	default:
		return errors.New("Account DefaultRole is invalid")
	}
	switch c.Account.DefaultStatus {
	case StatusActive, StatusSuspended, StatusPending:
		// valid
	default:
		return errors.New("Account DefaultStatus is invalid")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}
	if c.Audit.DrainTimeout < 0 {
		return errors.New("Audit DrainTimeout must be >= 0")
	}

	return nil
}
