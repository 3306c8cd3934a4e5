// Package repository exposes the gateway's domain data behind small
// repository contracts.
//
// Remote implements every contract with one HTTP call per method. NewCached
// wraps a Repositories set with decorators that share a single cache:
//
//   - Reads return a cached value younger than the repository's TTL, or call
//     through and cache the result. Failures are never cached.
//   - ShufflePrompts drops the cached list before calling through.
//   - Writes invalidate the keys they affect. CompleteUpload clears the whole
//     cache because its effect on cached reads cannot be scoped.
//
// The shared cache sits behind a Scope. Every invalidation and Clear starts a
// new epoch, and a result fetched across an epoch boundary is returned to its
// caller but not cached. Sign-out clears the Scope so a fetch still in flight
// for the previous account cannot repopulate it.
//
// Two concurrent misses on the same key may both call through and both write;
// the writes carry equivalent data.
package repository
