// Package credstore provides CredentialStore implementations: an HTTP
// client for a GoTrue-compatible hosted auth service and an in-memory fake
// for tests and local development.
//
// Credential handling lives entirely behind these types. The session core
// never sees passwords or tokens; it consumes accounts and session events.
package credstore
