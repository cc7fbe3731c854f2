package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/fatenhq/authcore/internal/audit"
)

const (
	auditEventSignInSuccess       = "sign_in_success"
	auditEventSignInFailure       = "sign_in_failure"
	auditEventSignUpSuccess       = "sign_up_success"
	auditEventSignUpRejected      = "sign_up_rejected"
	auditEventSignOutSuccess      = "sign_out_success"
	auditEventSignOutFailure      = "sign_out_failure"
	auditEventSessionRestored     = "session_restored"
	auditEventSessionEnded        = "session_ended"
	auditEventProfileCreated      = "profile_created"
	auditEventProfileCreateFailed = "profile_create_failed"
	auditEventProfileRefreshed    = "profile_refreshed"
	auditEventCodeIssued          = "verification_code_issued"
	auditEventCodeIssueFailed     = "verification_code_issue_failed"
	auditEventCodeRateLimited     = "verification_code_rate_limited"
	auditEventCodeValidated       = "verification_code_validated"
	auditEventCodeRejected        = "verification_code_rejected"
)

// AuditErrorCode defines a public type used by authcore APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrAuthRejected    AuditErrorCode = "auth_rejected"
	auditErrProfileNotFound AuditErrorCode = "profile_not_found"
	auditErrProfileExists   AuditErrorCode = "profile_exists"
	auditErrStoreRead       AuditErrorCode = "store_read_failed"
	auditErrStoreWrite      AuditErrorCode = "store_write_failed"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInvalidAccount  AuditErrorCode = "invalid_account"
	auditErrNotReady        AuditErrorCode = "not_ready"
	auditErrClosed          AuditErrorCode = "closed"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func emitAudit(
	ctx context.Context,
	dispatcher *audit.Dispatcher,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if dispatcher == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	dispatcher.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthRejected):
		return auditErrAuthRejected
	case errors.Is(err, ErrProfileNotFound):
		return auditErrProfileNotFound
	case errors.Is(err, ErrProfileExists):
		return auditErrProfileExists
	case errors.Is(err, ErrStoreRead):
		return auditErrStoreRead
	case errors.Is(err, ErrStoreWrite):
		return auditErrStoreWrite
	case errors.Is(err, ErrCodeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCodeUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrInvalidAccount):
		return auditErrInvalidAccount
	case errors.Is(err, ErrNotReady):
		return auditErrNotReady
	case errors.Is(err, ErrClosed):
		return auditErrClosed
	default:
		return auditErrInternal
	}
}
