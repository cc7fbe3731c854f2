// Package limiters provides the Redis-backed issuance throttle for
// verification codes.
//
// The limiter is nil-safe: calling any method on a nil receiver returns nil,
// which is how the core behaves when no Redis client is wired.
//
// # Architecture boundaries
//
// The limiter owns its Redis key namespace and error types. Policy
// thresholds come from configuration; the code engine maps limiter errors
// onto its public sentinels.
package limiters
