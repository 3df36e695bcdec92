package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors.
var (
	// ErrHubClosed is returned by Subscribe after Close.
	ErrHubClosed = errors.New("hub: closed")

	// ErrSubscriberBackedUp is the removal reason for a subscriber whose
	// queue was full at publish time.
	ErrSubscriberBackedUp = errors.New("hub: subscriber backed up")

	// ErrNilSubscriber is returned when subscribing a nil Subscriber.
	ErrNilSubscriber = errors.New("hub: nil subscriber")
)

// Subscriber is a send target. Send is only ever called from the
// subscription's own goroutine, one payload at a time. Close is called once
// when the subscription ends, on a goroutine of its own, and may overlap a
// Send that is still returning.
type Subscriber interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Lossy is implemented by subscribers that would rather lose payloads than
// be removed when their queue is full. Drop is called once per lost payload
// and must not block.
type Lossy interface {
	DropWhenFull() bool
	Drop()
}

// SubscriberFunc adapts a function to Subscriber with a no-op Close.
type SubscriberFunc func(ctx context.Context, msg []byte) error

// Send calls f.
func (f SubscriberFunc) Send(ctx context.Context, msg []byte) error { return f(ctx, msg) }

// Close does nothing.
func (f SubscriberFunc) Close() error { return nil }

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id        string
	sub       Subscriber
	lossy     Lossy
	queue     chan []byte
	done      chan struct{}
	endOnce   sync.Once
	createdAt time.Time

	// ctx is cancelled when the subscription ends, aborting a pending Send.
	ctx    context.Context
	cancel context.CancelFunc

	sent    atomic.Uint64
	dropped atomic.Uint64
	err     atomic.Pointer[error]
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id }

// CreatedAt returns when the subscription was registered.
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }

// Sent returns the number of payloads delivered.
func (s *Subscription) Sent() uint64 { return s.sent.Load() }

// Dropped returns the number of payloads lost while the queue was full.
// It stays zero for subscribers that are not Lossy.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the reason the subscription ended, nil for an explicit
// Unsubscribe or while still active.
func (s *Subscription) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// end marks the subscription finished. It reports whether this call ended it.
func (s *Subscription) end(reason error) bool {
	ended := false
	s.endOnce.Do(func() {
		if reason != nil {
			s.err.Store(&reason)
		}
		close(s.done)
		s.cancel()
		ended = true
	})
	return ended
}
