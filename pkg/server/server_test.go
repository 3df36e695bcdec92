package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sprout-iot/sprout/pkg/hub"
	"github.com/sprout-iot/sprout/pkg/ingest"
	"github.com/sprout-iot/sprout/pkg/middleware"
	"github.com/sprout-iot/sprout/pkg/state"
)

const (
	validFrame    = `{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513","json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}`
	canonicalBody = `{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513","json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}`
)

type gateway struct {
	store    *state.Store
	pipeline *ingest.Pipeline
	hub      *hub.Hub
	server   *Server
	http     *httptest.Server
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGateway(t *testing.T, hubConfig hub.Config, config Config, hubOpts ...hub.Option) *gateway {
	t.Helper()
	logger := quietLogger()
	store := state.New()
	pipeline := ingest.NewPipeline(store, ingest.WithPipelineLogger(logger))
	h := hub.New(store, hubConfig, append([]hub.Option{hub.WithLogger(logger)}, hubOpts...)...)
	metrics := middleware.NewMetrics(middleware.Sources{
		FramesAccepted: pipeline.Accepted,
		FramesRejected: pipeline.Rejected,
		Subscribers:    h.Count,
	}, middleware.WithRegistry(prometheus.NewRegistry()))

	srv := New(Deps{
		Store:    store,
		Pipeline: pipeline,
		Hub:      h,
		Metrics:  metrics,
	}, config, WithLogger(logger))

	g := &gateway{store: store, pipeline: pipeline, hub: h, server: srv, http: httptest.NewServer(srv)}
	t.Cleanup(func() {
		h.Close()
		g.http.Close()
	})
	return g
}

func (g *gateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	before := g.hub.Count()
	url := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	eventually(t, "subscription", func() bool { return g.hub.Count() > before })
	return conn
}

func (g *gateway) post(t *testing.T, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(g.http.URL+"/api/readings", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func readText(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("message type = %d, want text", kind)
	}
	return msg
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func slowHeartbeat() hub.Config {
	cfg := hub.DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	return cfg
}

func TestSubmitBroadcastsToSubscribers(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})
	a := g.dial(t)
	b := g.dial(t)

	resp, body := g.post(t, validFrame)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if string(body) != canonicalBody {
		t.Errorf("response = %s, want %s", body, canonicalBody)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	gotA, gotB := readText(t, a), readText(t, b)
	if !bytes.Equal(gotA, gotB) || string(gotA) != canonicalBody {
		t.Errorf("subscribers received %s and %s, want %s", gotA, gotB, canonicalBody)
	}
}

func TestSubmitRejected(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})

	resp, body := g.post(t, `{"line":"STATE;soil=1","json":{"soil":1}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var e struct {
		Error    string `json:"error"`
		Category string `json:"category"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("error body %s: %v", body, err)
	}
	if e.Error != "E104" || e.Category != "validation" || e.Message == "" {
		t.Errorf("error body = %+v", e)
	}
	if _, ok := g.store.Get(); ok {
		t.Error("rejected submission changed the current reading")
	}
}

func TestSubmitTooLarge(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{MaxBodyBytes: 64})

	resp, body := g.post(t, validFrame)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"error":"E401"`) {
		t.Errorf("body = %s", body)
	}
}

func TestLatestReading(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})

	resp, err := http.Get(g.http.URL + "/api/readings/latest")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status before first reading = %d, want 404", resp.StatusCode)
	}

	g.post(t, validFrame)

	resp, err = http.Get(g.http.URL + "/api/readings/latest")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if string(got.Payload) != canonicalBody {
		t.Errorf("payload = %s", got.Payload)
	}
	if got.Source != "submit" {
		t.Errorf("source = %q, want submit", got.Source)
	}
	if got.ReceivedAt.IsZero() {
		t.Error("received_at is zero")
	}
}

func TestHealthz(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})
	g.dial(t)
	g.post(t, validFrame)
	g.post(t, `{}`)

	resp, err := http.Get(g.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var snap struct {
		Status         string `json:"status"`
		FramesAccepted uint64 `json:"frames_accepted"`
		FramesRejected uint64 `json:"frames_rejected"`
		Subscribers    int    `json:"subscribers"`
		HasReading     bool   `json:"has_reading"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Status != "ok" || snap.FramesAccepted != 1 || snap.FramesRejected != 1 || snap.Subscribers != 1 || !snap.HasReading {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})
	g.post(t, validFrame)

	resp, err := http.Get(g.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"sprout_frames_accepted_total 1", "sprout_http_requests_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestWebSocketCloseUnsubscribes(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})
	conn := g.dial(t)

	conn.WriteMessage(websocket.TextMessage, []byte("hello, ignored"))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	eventually(t, "unsubscribe", func() bool { return g.hub.Count() == 0 })
}

func TestWebSocketPrimedWithCurrentReading(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})
	g.post(t, validFrame)

	conn := g.dial(t)
	if got := readText(t, conn); string(got) != canonicalBody {
		t.Errorf("primed payload = %s", got)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{})
	url := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("Dial() with a foreign origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	g := newGateway(t, slowHeartbeat(), Config{AllowedOrigins: []string{"http://app.example"}})

	req, _ := http.NewRequest(http.MethodOptions, g.http.URL+"/api/readings", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		host    string
		origin  string
		want    bool
	}{
		{"no origin", nil, "gw:3000", "", true},
		{"same origin", nil, "gw:3000", "http://gw:3000", true},
		{"foreign origin", nil, "gw:3000", "http://other:3000", false},
		{"allow-listed", []string{"http://app.example"}, "gw:3000", "http://app.example", true},
		{"wildcard", []string{"*"}, "gw:3000", "http://anything", true},
		{"malformed", nil, "gw:3000", "://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			c := Config{AllowedOrigins: tt.allowed}
			if got := c.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	store := state.New()
	h := hub.New(store, slowHeartbeat(), hub.WithLogger(quietLogger()))
	defer h.Close()
	srv := New(Deps{Store: store, Pipeline: ingest.NewPipeline(store), Hub: h},
		Config{Address: "127.0.0.1:0"}, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
