package hub

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sprout-iot/sprout/pkg/reading"
	"github.com/sprout-iot/sprout/pkg/state"
	"github.com/zoobzio/clockz"
)

// Hub manages the subscriber set.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	store  *state.Store
	config Config
	clock  clockz.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	broadcasts atomic.Uint64
	heartbeats atomic.Uint64
	evictions  atomic.Uint64
	drops      atomic.Uint64
	peak       int
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithClock sets the clock driving the heartbeat.
func WithClock(clock clockz.Clock) Option {
	return func(h *Hub) {
		h.clock = clock
	}
}

// New creates a Hub publishing from store and starts its heartbeat.
// A nil store yields a hub that only publishes explicit Publish calls.
func New(store *state.Store, config Config, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		subs:   make(map[string]*Subscription),
		store:  store,
		config: config.withDefaults(),
		clock:  clockz.RealClock,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub")

	if store != nil {
		store.OnSet(func(cur state.Current) {
			h.Publish(cur.Payload)
		})
		h.wg.Add(1)
		go h.heartbeatLoop()
	}
	return h
}

// Subscribe registers sub and starts delivering payloads to it.
func (h *Hub) Subscribe(sub Subscriber) (*Subscription, error) {
	if sub == nil {
		return nil, ErrNilSubscriber
	}

	s := &Subscription{
		id:        uuid.NewString(),
		sub:       sub,
		queue:     make(chan []byte, h.config.QueueSize),
		done:      make(chan struct{}),
		createdAt: h.clock.Now(),
	}
	s.ctx, s.cancel = context.WithCancel(h.ctx)
	if l, ok := sub.(Lossy); ok && l.DropWhenFull() {
		s.lossy = l
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.cancel()
		return nil, ErrHubClosed
	}
	h.subs[s.id] = s
	if len(h.subs) > h.peak {
		h.peak = len(h.subs)
	}
	active := len(h.subs)
	h.wg.Add(1)
	h.mu.Unlock()

	go h.sendLoop(s)

	if h.config.PrimeSubscribers && h.store != nil {
		// Replay holds the store's commit lock, so the primed payload cannot
		// land behind a newer broadcast.
		h.store.Replay(func(cur state.Current) {
			select {
			case s.queue <- cur.Payload.Bytes():
			default:
			}
		})
	}

	h.logger.Info("subscriber added",
		"subscriber_id", s.id,
		"active_subscribers", active)
	return s, nil
}

// Unsubscribe removes s and closes its transport in the background. It is
// safe to call more than once and from inside a Send.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	h.remove(s, nil)
}

// Publish queues p for every current subscriber and returns how many
// accepted it. A subscriber with a full queue is removed, unless it is Lossy,
// in which case p is dropped for it alone. Publish never waits on a
// subscriber's transport.
func (h *Hub) Publish(p reading.Payload) int {
	if p.IsZero() {
		return 0
	}
	msg := p.Bytes()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	queued := 0
	var backedUp, lost []*Subscription
	for _, s := range h.subs {
		select {
		case s.queue <- msg:
			queued++
		default:
			if s.lossy != nil {
				lost = append(lost, s)
			} else {
				backedUp = append(backedUp, s)
			}
		}
	}
	h.mu.Unlock()

	h.broadcasts.Add(1)
	for _, s := range lost {
		s.dropped.Add(1)
		h.drops.Add(1)
		s.lossy.Drop()
	}
	for _, s := range backedUp {
		h.remove(s, ErrSubscriberBackedUp)
	}
	return queued
}

// Heartbeat re-publishes the current reading. It reports false, publishing
// nothing, before the first reading exists.
func (h *Hub) Heartbeat() bool {
	if h.store == nil {
		return false
	}
	ok := h.store.Replay(func(cur state.Current) {
		h.Publish(cur.Payload)
	})
	if ok {
		h.heartbeats.Add(1)
	}
	return ok
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()

	ticker := h.clock.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			h.Heartbeat()
		case <-h.ctx.Done():
			return
		}
	}
}

// sendLoop delivers queued payloads to one subscriber until it ends.
func (h *Hub) sendLoop(s *Subscription) {
	defer h.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			if err := h.send(s, msg); err != nil {
				if h.ctx.Err() != nil {
					// Hub shutdown, not a subscriber failure.
					err = nil
				}
				h.remove(s, err)
				return
			}
			s.sent.Add(1)
		}
	}
}

// send calls Subscriber.Send with a timeout, converting a panic into an error.
func (h *Hub) send(s *Subscription, msg []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber send panic",
				"subscriber_id", s.id,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("hub: subscriber panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, h.config.SendTimeout)
	defer cancel()
	return s.sub.Send(ctx, msg)
}

// remove unregisters and ends s. The transport is closed on its own
// goroutine: remove runs under the store's commit lock when called from
// Publish, and a Close may block on a stalled peer.
func (h *Hub) remove(s *Subscription, reason error) {
	h.mu.Lock()
	if cur, ok := h.subs[s.id]; ok && cur == s {
		delete(h.subs, s.id)
	}
	active := len(h.subs)
	h.mu.Unlock()

	if !s.end(reason) {
		return
	}
	h.wg.Add(1)
	go h.closeTransport(s)

	if reason != nil {
		h.evictions.Add(1)
		h.logger.Warn("subscriber removed",
			"subscriber_id", s.id,
			"reason", reason,
			"active_subscribers", active)
		return
	}
	h.logger.Info("subscriber removed",
		"subscriber_id", s.id,
		"active_subscribers", active)
}

func (h *Hub) closeTransport(s *Subscription) {
	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber close panic", "subscriber_id", s.id, "panic", r)
		}
	}()

	if err := s.sub.Close(); err != nil {
		h.logger.Debug("subscriber close error", "subscriber_id", s.id, "error", err)
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Stats contains aggregated hub statistics.
type Stats struct {
	Active     int
	Peak       int
	Broadcasts uint64
	Heartbeats uint64
	Evictions  uint64
	Drops      uint64
}

// Stats returns aggregated hub statistics.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	active, peak := len(h.subs), h.peak
	h.mu.Unlock()

	return Stats{
		Active:     active,
		Peak:       peak,
		Broadcasts: h.broadcasts.Load(),
		Heartbeats: h.heartbeats.Load(),
		Evictions:  h.evictions.Load(),
		Drops:      h.drops.Load(),
	}
}

// Close stops the heartbeat, ends every subscription and waits for sender
// goroutines and transport closes to finish. Transports close in parallel.
// Close must not be called from inside a Send.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	h.cancel()
	for _, s := range subs {
		h.remove(s, nil)
	}
	h.wg.Wait()

	h.logger.Info("hub closed", "closed_subscribers", len(subs))
}
