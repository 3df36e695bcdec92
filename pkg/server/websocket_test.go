package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	var upgrader websocket.Upgrader
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the connection never arrived")
		return nil
	}
}

func TestWebSocketSubscriberReportsWriteFailures(t *testing.T) {
	conn := serverConn(t)

	var logs bytes.Buffer
	ws := &wsSubscriber{
		conn:   conn,
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	conn.UnderlyingConn().Close()
	ws.Close()

	if !strings.Contains(logs.String(), "websocket close frame error") {
		t.Errorf("close frame failure not logged, got %q", logs.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Send(ctx, []byte(canonicalBody)); err == nil {
		t.Error("Send() on a dead connection should fail")
	}
}
