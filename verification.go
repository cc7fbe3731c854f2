package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fatenhq/authcore/internal"
	"github.com/fatenhq/authcore/internal/audit"
	"github.com/fatenhq/authcore/internal/limiters"
	"github.com/fatenhq/authcore/internal/metrics"
)

var timeNow = time.Now

// CodeEngine issues and validates the time-boxed six-digit verification
// codes stored on profile rows. Exactly one live code per profile: issuing
// overwrites any previous code, and a successful validation clears it.
//
// Validation outcomes are deliberately coarse. A missing profile, a missing
// code, an expired code, a mismatched code, and a read failure all validate
// to (false, nil); callers only learn pass or fail. The sole error return is
// the write failure after a correct code, because at that point the caller
// must not treat the account as verified.
type CodeEngine struct {
	config   VerificationConfig
	profiles ProfileStore
	limiter  *limiters.VerificationLimiter
	audit    *audit.Dispatcher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	now func() time.Time
}

// IssueCode generates a fresh code for the given account, stamps it onto the
// profile row with an expiry of now plus the configured TTL, and returns the
// code so the caller can deliver it out of band. Any prior code on the row
// is overwritten and becomes permanently unredeemable.
//
// When the profile row does not exist, IssueCode still returns the generated
// code: the underlying update matches zero rows and the store reports no
// error. The code is then undeliverable noise, which is the behavior the
// platform has always had.
func (e *CodeEngine) IssueCode(ctx context.Context, accountID string) (string, error) {
	if e == nil {
		return "", ErrNotReady
	}
	if accountID == "" {
		return "", ErrInvalidAccount
	}

	ip := clientIPFromContext(ctx)
	if err := e.limiter.CheckIssue(ctx, accountID, ip); err != nil {
		if errors.Is(err, limiters.ErrRateLimited) {
			e.metrics.Inc(metrics.MetricCodeRateLimited)
			emitAudit(ctx, e.audit, auditEventCodeRateLimited, false, accountID, ErrCodeRateLimited, nil)
			return "", ErrCodeRateLimited
		}
		e.metrics.Inc(metrics.MetricCodeIssueFailed)
		emitAudit(ctx, e.audit, auditEventCodeIssueFailed, false, accountID, ErrCodeUnavailable, nil)
		return "", fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}

	code, err := internal.NewVerificationCode()
	if err != nil {
		e.metrics.Inc(metrics.MetricCodeIssueFailed)
		emitAudit(ctx, e.audit, auditEventCodeIssueFailed, false, accountID, ErrCodeUnavailable, nil)
		return "", fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}

	expiresAt := e.now().Add(e.config.CodeTTL)
	patch := ProfilePatch{
		SetVerification: true,
		Verification: &VerificationCode{
			Code:      code,
			ExpiresAt: expiresAt,
		},
	}
	if err := e.profiles.Update(ctx, accountID, patch); err != nil {
		e.metrics.Inc(metrics.MetricCodeIssueFailed)
		emitAudit(ctx, e.audit, auditEventCodeIssueFailed, false, accountID, ErrStoreWrite, nil)
		return "", fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	// Development delivery channel: until a real sender is wired, the code
	// reaches the operator through the debug log.
	e.logger.Debug().
		Str("account_id", accountID).
		Str("code", code).
		Time("expires_at", expiresAt).
		Msg("verification code issued")

	e.metrics.Inc(metrics.MetricCodeIssued)
	emitAudit(ctx, e.audit, auditEventCodeIssued, true, accountID, nil, nil)

	return code, nil
}

// ValidateCode checks the submitted code against the live code on the
// profile row. On success it marks the profile verified and clears the code
// pair in one write; a code therefore redeems at most once.
//
// An expired code fails validation but is left in place on the row. Only a
// successful validation or a subsequent IssueCode replaces it.
func (e *CodeEngine) ValidateCode(ctx context.Context, accountID, code string) (bool, error) {
	if e == nil {
		return false, ErrNotReady
	}
	if accountID == "" {
		return false, ErrInvalidAccount
	}

	profile, err := e.profiles.SelectByID(ctx, accountID)
	if err != nil {
		e.metrics.Inc(metrics.MetricCodeValidateFailure)
		emitAudit(ctx, e.audit, auditEventCodeRejected, false, accountID, ErrStoreRead, nil)
		return false, nil
	}
	if profile == nil || profile.Verification == nil {
		e.metrics.Inc(metrics.MetricCodeValidateFailure)
		emitAudit(ctx, e.audit, auditEventCodeRejected, false, accountID, nil, func() map[string]string {
			return map[string]string{"reason": "no_live_code"}
		})
		return false, nil
	}

	if profile.Verification.Expired(e.now()) {
		e.metrics.Inc(metrics.MetricCodeValidateFailure)
		emitAudit(ctx, e.audit, auditEventCodeRejected, false, accountID, nil, func() map[string]string {
			return map[string]string{"reason": "expired"}
		})
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(profile.Verification.Code), []byte(code)) != 1 {
		e.metrics.Inc(metrics.MetricCodeValidateFailure)
		emitAudit(ctx, e.audit, auditEventCodeRejected, false, accountID, nil, func() map[string]string {
			return map[string]string{"reason": "mismatch"}
		})
		return false, nil
	}

	verified := true
	patch := ProfilePatch{
		Verified:        &verified,
		SetVerification: true,
		Verification:    nil,
	}
	if err := e.profiles.Update(ctx, accountID, patch); err != nil {
		e.metrics.Inc(metrics.MetricCodeValidateFailure)
		emitAudit(ctx, e.audit, auditEventCodeRejected, false, accountID, ErrStoreWrite, nil)
		return false, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	e.logger.Info().
		Str("account_id", accountID).
		Msg("account verified")

	e.metrics.Inc(metrics.MetricCodeValidateSuccess)
	emitAudit(ctx, e.audit, auditEventCodeValidated, true, accountID, nil, nil)

	return true, nil
}
