package server

import (
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config configures the HTTP server.
type Config struct {
	// Address is the listen address. Default: ":3000".
	Address string

	// MaxBodyBytes bounds a submission body. Default: 64 KiB.
	MaxBodyBytes int64

	// AllowedOrigins lists origins allowed for CORS and WebSocket upgrades.
	// "*" allows any origin. Empty means same-origin only.
	AllowedOrigins []string

	// PingInterval is how often WebSocket subscribers are pinged.
	// Default: 30s.
	PingInterval time.Duration

	// PongWait is how long a WebSocket subscriber may stay silent (no pong
	// and no message) before it is dropped. Default: 60s.
	PongWait time.Duration

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration

	// Timeouts for the underlying http.Server.
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	// AccessLog receives Apache combined-format access logs when set.
	AccessLog io.Writer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:           ":3000",
		MaxBodyBytes:      64 << 10,
		PingInterval:      30 * time.Second,
		PongWait:          60 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = 2 * c.PingInterval
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}

// checkOrigin validates a WebSocket upgrade against AllowedOrigins, falling
// back to a same-origin check.
func (c Config) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Native clients (devices, mobile apps, curl) send no Origin.
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return sameOrigin(r, origin)
}

func sameOrigin(r *http.Request, origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && u.Host == r.Host
}
