// Package state holds the gateway's single current reading.
package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sprout-iot/sprout/pkg/reading"
	"github.com/zoobzio/clockz"
)

// Source tags which ingestion path produced a reading.
type Source string

const (
	SourceStream Source = "stream"
	SourceSubmit Source = "submit"
)

// Current is the store's single slot.
type Current struct {
	Payload    reading.Payload
	ReceivedAt time.Time
	Source     Source
}

// Store keeps the latest accepted payload. Set is the only mutation; it runs
// every OnSet listener while holding the commit lock, so a write and the
// broadcast it triggers are ordered with respect to every other Set and
// Replay. Get is lock-free and never observes a partial write.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[Current]
	listeners []func(Current)
	clock     clockz.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used to stamp ReceivedAt.
func WithClock(clock clockz.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{clock: clockz.RealClock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnSet registers fn to run after every Set, inside the commit lock.
// Listeners must not block and must not call Set or Replay.
func (s *Store) OnSet(fn func(Current)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Set replaces the current reading and notifies listeners.
func (s *Store) Set(p reading.Payload, src Source) Current {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := Current{
		Payload:    p,
		ReceivedAt: s.clock.Now(),
		Source:     src,
	}
	s.current.Store(&cur)

	for _, fn := range s.listeners {
		fn(cur)
	}
	return cur
}

// Get returns the current reading, or false before the first Set.
func (s *Store) Get() (Current, bool) {
	cur := s.current.Load()
	if cur == nil {
		return Current{}, false
	}
	return *cur, true
}

// Replay calls fn with the current reading inside the commit lock, so fn is
// ordered with respect to Set listeners. It reports false, without calling
// fn, before the first Set.
func (s *Store) Replay(fn func(Current)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return false
	}
	fn(*cur)
	return true
}

// Age returns how long ago the current reading was received.
func (s *Store) Age() (time.Duration, bool) {
	cur := s.current.Load()
	if cur == nil {
		return 0, false
	}
	return s.clock.Since(cur.ReceivedAt), true
}
