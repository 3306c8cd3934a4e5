// Package credstore persists the session's token pair, encrypted at rest.
//
// Three backends implement Store:
//
//   - FileStore: one sealed file, replaced via temp file + rename
//   - SQLiteStore: one sealed row, replaced via UPSERT in a transaction
//   - MemoryStore: process-local, used by tests and ephemeral runs
//
// Sealing derives a key from a configured secret with HKDF-SHA256 and seals
// the JSON-encoded pair with XChaCha20-Poly1305. A blob that fails to open is
// reported as ErrCorrupt; the session controller treats any load failure as
// "no credentials" so a storage problem never blocks re-authentication.
package credstore
