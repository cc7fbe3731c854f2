// Package authcore implements the session, role-authorization, and
// verification-code core of the Faten community platform: an explicit session
// orchestrator reconciled against an external credential provider, a
// time-boxed six-digit verification-code engine backed by the profile store,
// and the data model both share.
//
// The package is designed to be embedded: credentials and profile rows live
// behind the [CredentialStore] and [ProfileStore] ports, and the surrounding
// application (routing, dashboards, rendering) consumes the exported surface
// only. Route access decisions live in the guard subpackage.
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Orchestrator], [CodeEngine],
// [Builder], [Config], and value types (Session, Profile, AuditEvent, etc.).
// Internal coordination — audit dispatch, metrics counters, issuance
// throttling, code generation — lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Inspect or store password credentials; those belong to the credential
//     provider behind [CredentialStore].
//   - Mutate a profile's role after creation; role changes are administrative
//     tooling, out of scope here.
//   - Block the caller indefinitely during [Orchestrator.Initialize]: the
//     loading flag is cleared on every path, including failure.
package authcore
