package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited        = errors.New("verification issuance rate limited")
	ErrLimiterUnavailable = errors.New("verification limiter unavailable")
)

// VerificationConfig sets the fixed-window issuance policy. The window
// length equals the code lifetime so a burst of resends cannot outlive the
// code it replaces.
type VerificationConfig struct {
	EnableAccountThrottle bool
	EnableIPThrottle      bool
	Window                time.Duration
	MaxIssues             int
}

// VerificationLimiter throttles code issuance with Redis fixed windows,
// keyed per account and per client IP. Nil-safe: every method on a nil
// receiver returns nil.
type VerificationLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config VerificationConfig
}

func NewVerificationLimiter(redisClient redis.UniversalClient, prefix string, cfg VerificationConfig) *VerificationLimiter {
	if prefix == "" {
		prefix = "fvc"
	}
	return &VerificationLimiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

func (l *VerificationLimiter) CheckIssue(ctx context.Context, accountID, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableAccountThrottle {
		if err := l.enforceFixedWindow(ctx, l.accountKey(accountID)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *VerificationLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.MaxIssues) {
		return ErrRateLimited
	}

	return nil
}

func (l *VerificationLimiter) accountKey(accountID string) string {
	return l.prefix + ":acct:" + accountID
}

func (l *VerificationLimiter) ipKey(ip string) string {
	return l.prefix + ":ip:" + ip
}
