// Package netlog keeps a bounded history of redacted HTTP traces.
//
// The store is safe for concurrent use. Retention runs on every append and
// when a snapshot is loaded: entries older than MaxAge go first, then the
// oldest entries beyond MaxEntries. Persistence is best effort; a write
// failure never surfaces to the caller that produced the entry.
package netlog
