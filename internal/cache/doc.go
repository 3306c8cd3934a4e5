// Package cache provides the key/value cache behind the cached repositories.
//
// Values are stored as JSON with the time they were written. The cache itself
// never expires anything: each reader passes its own TTL to Get, which lets
// repositories with different freshness needs share one cache.
package cache
