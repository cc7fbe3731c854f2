// Package internal contains helper utilities that are intentionally private
// to authcore, currently secure verification-code generation.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - limiters — Redis fixed-window issuance throttle
//   - metrics — lock-free counters
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
