// Package server exposes the gateway over HTTP and WebSocket.
//
// Routes:
//
//	GET  /ws                   subscribe to broadcasts (text frames, canonical payload JSON)
//	POST /api/readings         discrete submission of one candidate
//	GET  /api/readings/latest  the current reading
//	GET  /healthz              health snapshot
//	GET  /metrics              Prometheus exposition (when metrics are configured)
//
// A WebSocket client needs no handshake payload; anything it sends is read
// and discarded. Each connection is an ordinary hub subscriber, so a slow or
// broken client is removed without affecting the others.
package server
