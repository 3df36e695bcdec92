package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sprout-iot/sprout/pkg/hub"
)

// controlWait bounds ping and close control frames.
const controlWait = 5 * time.Second

// wsSubscriber adapts a WebSocket connection to hub.Subscriber. The hub
// calls Send from a single goroutine; pings use WriteControl, which
// gorilla/websocket allows concurrently with other writes.
type wsSubscriber struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	closeOnce sync.Once
}

func (c *wsSubscriber) Send(ctx context.Context, msg []byte) error {
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Close sends a going-away frame and closes the connection. The close frame
// is best effort: a peer that stopped reading may never take it.
func (c *wsSubscriber) Close() error {
	var err error
	c.closeOnce.Do(func() {
		cerr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(controlWait))
		if cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
			c.logger.Debug("websocket close frame error", "error", cerr)
		}
		err = c.conn.Close()
	})
	return err
}

func (c *wsSubscriber) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWait))
}

// HandleWebSocket upgrades the request and registers the connection with
// the hub until either side goes away.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ws := &wsSubscriber{conn: conn, logger: s.logger}
	sub, err := s.deps.Hub.Subscribe(ws)
	if err != nil {
		s.logger.Warn("websocket subscribe failed", "error", err)
		ws.Close()
		return
	}

	go s.pingLoop(ws, sub)
	s.readLoop(ws, sub)
}

// readLoop discards client messages and unsubscribes on the first read
// error, which covers client close, network loss and pong timeout.
func (s *Server) readLoop(ws *wsSubscriber, sub *hub.Subscription) {
	defer s.deps.Hub.Unsubscribe(sub)

	conn := ws.conn
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error",
					"subscriber_id", sub.ID(),
					"error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	}
}

func (s *Server) pingLoop(ws *wsSubscriber, sub *hub.Subscription) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ws.ping(); err != nil {
				s.logger.Debug("websocket ping error",
					"subscriber_id", sub.ID(),
					"error", err)
				s.deps.Hub.Unsubscribe(sub)
				return
			}
		case <-sub.Done():
			return
		}
	}
}
