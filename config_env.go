package authcore

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type envConfig struct {
	CodeTTL             time.Duration `env:"AUTHCORE_CODE_TTL" envDefault:"15m"`
	CodeThrottleAccount bool          `env:"AUTHCORE_CODE_THROTTLE_ACCOUNT" envDefault:"false"`
	CodeThrottleIP      bool          `env:"AUTHCORE_CODE_THROTTLE_IP" envDefault:"false"`
	CodeMaxIssues       int           `env:"AUTHCORE_CODE_MAX_ISSUES" envDefault:"5"`
	CodeRedisPrefix     string        `env:"AUTHCORE_CODE_REDIS_PREFIX" envDefault:"fvc"`
	ProvisionWait       time.Duration `env:"AUTHCORE_PROVISION_WAIT" envDefault:"1s"`
	DefaultRole         string        `env:"AUTHCORE_DEFAULT_ROLE" envDefault:"user"`
	DefaultStatus       string        `env:"AUTHCORE_DEFAULT_STATUS" envDefault:"active"`
	AuditEnabled        bool          `env:"AUTHCORE_AUDIT_ENABLED" envDefault:"false"`
	AuditBufferSize     int           `env:"AUTHCORE_AUDIT_BUFFER" envDefault:"1024"`
	AuditDropIfFull     bool          `env:"AUTHCORE_AUDIT_DROP_IF_FULL" envDefault:"true"`
	AuditDrainTimeout   time.Duration `env:"AUTHCORE_AUDIT_DRAIN_TIMEOUT" envDefault:"2s"`
	MetricsEnabled      bool          `env:"AUTHCORE_METRICS_ENABLED" envDefault:"false"`
}

// ConfigFromEnv builds a [Config] from AUTHCORE_* environment variables,
// falling back to the same defaults as [New]. The result is validated.
func ConfigFromEnv() (Config, error) {
	parsed, err := env.ParseAs[envConfig]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	role, err := ParseRole(parsed.DefaultRole)
	if err != nil {
		return Config{}, err
	}
	status, err := ParseStatus(parsed.DefaultStatus)
	if err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	cfg.Verification.CodeTTL = parsed.CodeTTL
	cfg.Verification.EnableAccountThrottle = parsed.CodeThrottleAccount
	cfg.Verification.EnableIPThrottle = parsed.CodeThrottleIP
	cfg.Verification.MaxIssuesPerWindow = parsed.CodeMaxIssues
	cfg.Verification.RedisPrefix = parsed.CodeRedisPrefix
	cfg.SignUp.ProvisionWait = parsed.ProvisionWait
	cfg.Account.DefaultRole = role
	cfg.Account.DefaultStatus = status
	cfg.Audit.Enabled = parsed.AuditEnabled
	cfg.Audit.BufferSize = parsed.AuditBufferSize
	cfg.Audit.DropIfFull = parsed.AuditDropIfFull
	cfg.Audit.DrainTimeout = parsed.AuditDrainTimeout
	cfg.Metrics.Enabled = parsed.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
