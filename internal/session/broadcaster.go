// ABOUTME: In-memory fan-out broadcaster for session state transitions
// ABOUTME: Queues states per subscriber, collapsing the backlog of a subscriber that stops reading

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// maxPending bounds each subscriber's backlog. State changes are rare, so
	// a full backlog means the subscriber stopped reading.
	maxPending = 64
)

// subscriber owns a backlog drained into out by its own goroutine. The
// backlog never holds two equal neighbours, and its last element is always
// the latest published state.
type subscriber struct {
	id  string
	out chan State

	mu      sync.Mutex
	pending []State
	closing bool // deliver the backlog, then close out

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{
		id:     uuid.New().String(),
		out:    make(chan State),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// push queues st and reports whether the backlog had to be collapsed.
// A full backlog replaces its tail with st, or drops the tail when the
// element before it already equals st.
func (s *subscriber) push(st State) bool {
	s.mu.Lock()
	collapsed := false
	switch n := len(s.pending); {
	case n < maxPending:
		s.pending = append(s.pending, st)
	case s.pending[n-2] == st:
		s.pending = s.pending[:n-1]
		collapsed = true
	default:
		s.pending[n-1] = st
		collapsed = true
	}
	s.mu.Unlock()

	s.notify()
	return collapsed
}

func (s *subscriber) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest queued state. done is true once the subscriber is
// closing and the backlog is empty.
func (s *subscriber) next() (st State, ok, done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return "", false, s.closing
	}
	st = s.pending[0]
	s.pending = s.pending[1:]
	return st, true, false
}

func (s *subscriber) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.notify()
}

func (s *subscriber) cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *subscriber) run() {
	defer close(s.exited)
	defer close(s.out)

	for {
		st, ok, done := s.next()
		if done {
			return
		}
		if !ok {
			select {
			case <-s.wake:
			case <-s.stop:
				return
			}
			continue
		}
		select {
		case s.out <- st:
		case <-s.stop:
			return
		}
	}
}

// broadcaster provides in-memory pub/sub for State values.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	closed      bool
	logger      *slog.Logger
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	return &broadcaster{
		subscribers: make(map[string]*subscriber),
		logger:      logger,
	}
}

// subscribe registers a subscriber. If initial is non-nil it is queued before
// any published state. The subscription is cleaned up when ctx is cancelled.
func (b *broadcaster) subscribe(ctx context.Context, initial *State) <-chan State {
	sub := newSubscriber()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return sub.out
	}
	if initial != nil {
		sub.pending = append(sub.pending, *initial)
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	b.logger.Debug("state subscriber added", "sub_id", sub.id)

	go sub.run()
	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(sub.id)
			sub.cancel()
		case <-sub.exited:
		}
	}()

	return sub.out
}

// publish queues a state for every subscriber. It never blocks on a reader.
func (b *broadcaster) publish(state State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		if sub.push(state) {
			b.logger.Warn("collapsed backlog of slow subscriber", "sub_id", id, "state", state)
		}
	}
}

func (b *broadcaster) unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[subID]; !ok {
		return
	}
	delete(b.subscribers, subID)

	b.logger.Debug("state subscriber removed", "sub_id", subID)
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// close shuts down the broadcaster. Each subscriber receives its backlog
// before its channel is closed.
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		sub.finish()
		delete(b.subscribers, id)
	}
	b.closed = true
}
