package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/sprout-iot/sprout/pkg/health"
	"github.com/sprout-iot/sprout/pkg/hub"
	"github.com/sprout-iot/sprout/pkg/ingest"
	"github.com/sprout-iot/sprout/pkg/middleware"
	"github.com/sprout-iot/sprout/pkg/state"
)

// Deps are the gateway components the server exposes.
type Deps struct {
	Store    *state.Store
	Pipeline *ingest.Pipeline
	Hub      *hub.Hub
	Health   *health.Reporter

	// Metrics is optional; /metrics is only mounted when it is set.
	Metrics *middleware.Metrics

	// Tracing is optional request tracing middleware.
	Tracing func(http.Handler) http.Handler
}

// Server is the HTTP/WebSocket surface of the gateway.
type Server struct {
	deps     Deps
	config   Config
	upgrader websocket.Upgrader
	handler  http.Handler
	logger   *slog.Logger

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a Server. Zero config fields take defaults.
func New(deps Deps, config Config, opts ...Option) *Server {
	s := &Server{
		deps:   deps,
		config: config.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	if s.deps.Health == nil {
		s.deps.Health = &health.Reporter{
			Frames:      s.deps.Pipeline,
			Subscribers: s.deps.Hub,
			Readings:    s.deps.Store,
		}
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  s.config.ReadBufferSize,
		WriteBufferSize: s.config.WriteBufferSize,
		CheckOrigin:     s.config.checkOrigin,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Handler)
	}
	if s.deps.Tracing != nil {
		r.Use(s.deps.Tracing)
	}

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Exposition())
	}

	r.Route("/api/readings", func(r chi.Router) {
		if len(s.config.AllowedOrigins) > 0 {
			r.Use(handlers.CORS(
				handlers.AllowedOrigins(s.config.AllowedOrigins),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"Content-Type"}),
			))
			r.Options("/", func(http.ResponseWriter, *http.Request) {})
		}
		r.Post("/", s.handleSubmit)
		r.Get("/latest", s.handleLatest)
	})

	var h http.Handler = r
	if s.config.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(s.config.AccessLog, h)
	}
	return h
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		IdleTimeout:       s.config.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded
// by ShutdownTimeout. Upgraded WebSocket connections are not tracked by
// http.Server; they end when the hub closes.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.config
}
