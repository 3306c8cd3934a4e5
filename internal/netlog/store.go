// ABOUTME: Bounded, age-pruned, persisted log of redacted network traces
// ABOUTME: Applies retention after every append and writes snapshots from a single writer goroutine

package netlog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-client/internal/fsutil"
)

// Retention defaults.
const (
	DefaultMaxAge     = 7 * 24 * time.Hour
	DefaultMaxEntries = 1000
)

// Entry is one request/response trace. Header maps and previews are already
// redacted when they reach the store. Optional fields are nil when unknown.
type Entry struct {
	ID                  string            `json:"id"`
	Timestamp           time.Time         `json:"timestamp"`
	Method              string            `json:"method"`
	Path                string            `json:"path"`
	FullURL             string            `json:"fullURL"`
	StatusCode          *int              `json:"statusCode,omitempty"`
	DurationMs          *int64            `json:"durationMs,omitempty"`
	RequestHeaders      map[string]string `json:"requestHeaders"`
	RequestBodyPreview  *string           `json:"requestBodyPreview,omitempty"`
	ResponseHeaders     map[string]string `json:"responseHeaders"`
	ResponseBodyPreview *string           `json:"responseBodyPreview,omitempty"`
	ErrorDescription    *string           `json:"errorDescription,omitempty"`
}

// Options configures a Store. Zero values select the defaults.
type Options struct {
	MaxAge     time.Duration
	MaxEntries int
	Logger     *slog.Logger
	// Now is the clock used for age retention.
	Now func() time.Time
}

// Store holds entries in insertion order. An empty path keeps the store in
// memory only. The store never returns errors: logging must not be able to
// fail the operation being logged.
type Store struct {
	mu      sync.RWMutex
	entries []Entry

	path       string
	maxAge     time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger

	dirty     chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Open creates a store backed by path, loading any prior snapshot. A missing,
// unreadable or corrupt snapshot starts the store empty.
func Open(path string, opts Options) *Store {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Store{
		path:       path,
		maxAge:     opts.MaxAge,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		logger:     opts.Logger.With("component", "netlog"),
		dirty:      make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	if path == "" {
		close(s.stopped)
		return s
	}

	s.entries = s.load()
	s.applyRetention()
	go s.writeLoop()
	return s
}

func (s *Store) load() []Entry {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		s.logger.Warn("failed to read network log, starting empty", "path", s.path, "error", err)
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("network log is corrupt, starting empty", "path", s.path, "error", err)
		return nil
	}
	return entries
}

// Append adds an entry, applies retention and schedules a write. Missing IDs
// and timestamps are filled in.
func (s *Store) Append(e Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.applyRetentionLocked()
	s.mu.Unlock()

	s.markDirty()
}

// Clear drops every entry and schedules a write.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	s.markDirty()
}

// Entries returns a copy of the current entries in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) applyRetention() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyRetentionLocked()
}

// applyRetentionLocked drops entries older than maxAge, then the entries
// with the oldest timestamps beyond maxEntries. Survivors keep their
// insertion order. Must be called with mu held.
func (s *Store) applyRetentionLocked() {
	cutoff := s.now().Add(-s.maxAge)

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	// Zero the tail so dropped entries can be collected
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = Entry{}
	}
	s.entries = kept

	excess := len(s.entries) - s.maxEntries
	if excess <= 0 {
		return
	}
	if slices.IsSortedFunc(s.entries, byTimestamp) {
		trimmed := make([]Entry, s.maxEntries)
		copy(trimmed, s.entries[excess:])
		s.entries = trimmed
		return
	}

	// Ties on timestamp drop the earlier insertion first.
	order := make([]int, len(s.entries))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return byTimestamp(s.entries[a], s.entries[b])
	})
	drop := make(map[int]struct{}, excess)
	for _, i := range order[:excess] {
		drop[i] = struct{}{}
	}

	trimmed := make([]Entry, 0, s.maxEntries)
	for i, e := range s.entries {
		if _, ok := drop[i]; !ok {
			trimmed = append(trimmed, e)
		}
	}
	s.entries = trimmed
}

func byTimestamp(a, b Entry) int {
	return a.Timestamp.Compare(b.Timestamp)
}

// markDirty wakes the writer. Pending signals coalesce into one write.
func (s *Store) markDirty() {
	if s.path == "" {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// writeLoop is the only goroutine writing the snapshot file, so snapshots hit
// the disk in mutation order.
func (s *Store) writeLoop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.dirty:
			s.persist()
		case <-s.done:
			select {
			case <-s.dirty:
				s.persist()
			default:
			}
			return
		}
	}
}

// persist serializes the current entries and replaces the file. Failures are
// logged and otherwise ignored.
func (s *Store) persist() {
	s.mu.RLock()
	data, err := json.Marshal(s.entries)
	s.mu.RUnlock()
	if err != nil {
		s.logger.Warn("failed to encode network log", "error", err)
		return
	}

	if err := fsutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		s.logger.Warn("failed to write network log", "path", s.path, "error", err)
	}
}

// Close flushes any pending write and stops the writer. It is safe to call
// multiple times. Mutations after Close are kept in memory only.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
}
