// ABOUTME: Key/value cache contract shared by the cached repository decorators
// ABOUTME: Entries carry their write timestamp; expiry is decided by the reader

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is a cached value with the time it was stored.
type Entry struct {
	Value     []byte    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is no older than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) <= ttl
}

// Cache stores serialized values by key. Implementations must be safe for
// concurrent use. Retrieve reports a miss with ok == false and a nil error.
type Cache interface {
	Store(ctx context.Context, key string, entry Entry) error
	Retrieve(ctx context.Context, key string) (entry Entry, ok bool, err error)
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key builds a deterministic key from an operation name and its parameters.
// Parameters are rendered in order; map parameters are rendered with sorted keys.
func Key(op string, params ...any) string {
	if len(params) == 0 {
		return op
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, renderParam(p))
	}
	return op + ":" + strings.Join(parts, ",")
}

func renderParam(p any) string {
	m, ok := p.(map[string]string)
	if !ok {
		return fmt.Sprint(p)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

// Put encodes value as JSON and stores it with timestamp now.
func Put[T any](ctx context.Context, c Cache, key string, value T, now time.Time) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value %q: %w", key, err)
	}
	return c.Store(ctx, key, Entry{Value: data, Timestamp: now})
}

// Get retrieves and decodes the value at key if it is no older than ttl.
// Stale or undecodable entries report a miss.
func Get[T any](ctx context.Context, c Cache, key string, ttl time.Duration, now time.Time) (T, bool, error) {
	var zero T

	entry, ok, err := c.Retrieve(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if !entry.Fresh(now, ttl) {
		return zero, false, nil
	}

	var value T
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return zero, false, nil
	}
	return value, true, nil
}
