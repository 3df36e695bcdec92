// Package hub fans the current reading out to many independently paced
// subscribers.
//
// Every subscriber gets its own bounded queue and sender goroutine. Publish
// never blocks on a subscriber: it enqueues without waiting, and a subscriber
// whose queue is full, whose Send fails, or whose Send panics is removed on
// its own while the others keep receiving.
//
// A Hub attached to a state.Store publishes on every Set (inside the store's
// commit lock, so broadcasts keep acceptance order) and re-publishes the
// current reading on a fixed heartbeat so that late joiners converge without
// waiting for new sensor input.
//
// # Usage
//
//	store := state.New()
//	h := hub.New(store, hub.DefaultConfig())
//	defer h.Close()
//
//	sub, err := h.Subscribe(mySubscriber)
//	...
//	h.Unsubscribe(sub)
package hub
