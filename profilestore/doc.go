// Package profilestore provides ProfileStore and PreRegistry
// implementations: a PostgreSQL store with embedded schema migrations and a
// mutex-guarded in-memory store for tests and embedding.
package profilestore
