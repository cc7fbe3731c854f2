package authcore

import "errors"

var (
	// ErrAuthRejected is an exported constant or variable used by the session core.
	// The credential provider's own message is wrapped verbatim behind it.
	ErrAuthRejected = errors.New("credential provider rejected the request")
	// ErrProfileNotFound is an exported constant or variable used by the session core.
	// It marks the distinct, retryable "profile row never materialized" case.
	ErrProfileNotFound = errors.New("profile row not provisioned")
	// ErrProfileExists is an exported constant or variable used by the session core.
	ErrProfileExists = errors.New("profile row already exists")
	// ErrStoreRead is an exported constant or variable used by the session core.
	ErrStoreRead = errors.New("profile store read failed")
	// ErrStoreWrite is an exported constant or variable used by the session core.
	ErrStoreWrite = errors.New("profile store write failed")
	// ErrCodeRateLimited is an exported constant or variable used by the session core.
	ErrCodeRateLimited = errors.New("verification code issuance rate limited")
	// ErrCodeUnavailable is an exported constant or variable used by the session core.
	ErrCodeUnavailable = errors.New("verification backend unavailable")
	// ErrInvalidAccount is an exported constant or variable used by the session core.
	ErrInvalidAccount = errors.New("invalid account id")
	// ErrNotReady is an exported constant or variable used by the session core.
	ErrNotReady = errors.New("core not initialized")
	// ErrClosed is an exported constant or variable used by the session core.
	ErrClosed = errors.New("core closed")
)
