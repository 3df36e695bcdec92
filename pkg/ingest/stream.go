package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sprout-iot/sprout/internal/errors"
	"github.com/sprout-iot/sprout/pkg/frame"
	"github.com/sprout-iot/sprout/pkg/state"
	"github.com/zoobzio/clockz"
)

// StreamConfig tunes a StreamSource.
type StreamConfig struct {
	// Backoff spaces reopen attempts.
	Backoff Backoff

	// ReadSize is the chunk buffer size. Default: 256.
	ReadSize int

	// MaxFrameSize bounds a single frame. Default: frame.DefaultMaxFrameSize.
	MaxFrameSize int
}

// DefaultStreamConfig returns a StreamConfig with sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Backoff:      DefaultBackoff(),
		ReadSize:     256,
		MaxFrameSize: frame.DefaultMaxFrameSize,
	}
}

// StreamSource owns the device channel for the lifetime of Run.
type StreamSource struct {
	opener   Opener
	pipeline *Pipeline
	config   StreamConfig
	clock    clockz.Clock
	logger   *slog.Logger

	connected    atomic.Bool
	sessions     atomic.Uint64
	openFailures atomic.Uint64
	disconnects  atomic.Uint64

	errMu   sync.Mutex
	lastErr error
}

// StreamOption configures a StreamSource.
type StreamOption func(*StreamSource)

// WithStreamLogger sets the source logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *StreamSource) {
		s.logger = logger
	}
}

// WithStreamClock sets the clock used for backoff waits.
func WithStreamClock(clock clockz.Clock) StreamOption {
	return func(s *StreamSource) {
		s.clock = clock
	}
}

// NewStreamSource creates a source reading from opener into pipeline.
func NewStreamSource(opener Opener, pipeline *Pipeline, config StreamConfig, opts ...StreamOption) *StreamSource {
	d := DefaultStreamConfig()
	if config.ReadSize <= 0 {
		config.ReadSize = d.ReadSize
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = d.MaxFrameSize
	}
	if config.Backoff.Initial <= 0 {
		config.Backoff = d.Backoff
	}

	s := &StreamSource{
		opener:   opener,
		pipeline: pipeline,
		config:   config,
		clock:    clockz.RealClock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "stream", "address", opener.String())
	return s
}

// Run opens the device and ingests from it until ctx is cancelled,
// reopening with backoff whenever opening fails or the channel closes.
// It returns nil once ctx is done.
func (s *StreamSource) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		port, err := s.opener.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			s.openFailures.Add(1)
			s.setErr(err)
			delay := s.config.Backoff.Delay(attempt)
			s.logger.Warn("device open failed",
				"attempt", attempt,
				"retry_in", delay,
				"error", err)
			if !s.wait(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		s.sessions.Add(1)
		s.connected.Store(true)
		s.logger.Info("device connected")

		err = s.readSession(ctx, port)
		s.connected.Store(false)
		if ctx.Err() != nil {
			s.logger.Info("stream source stopped")
			return nil
		}

		s.disconnects.Add(1)
		s.setErr(err)
		s.logger.Warn("device disconnected", "error", err)

		// Space reopen attempts even when the device opens fine but drops
		// immediately.
		if !s.wait(ctx, s.config.Backoff.Delay(1)) {
			return nil
		}
	}
}

// readSession reads chunks until the channel fails or ctx is done. Any
// partially assembled frame is discarded when it returns.
func (s *StreamSource) readSession(ctx context.Context, port io.ReadCloser) error {
	asm := frame.NewAssembler(s.config.MaxFrameSize)
	asm.OnDiscard = s.pipeline.RecordDiscard
	defer asm.Reset()

	var closeOnce sync.Once
	closePort := func() {
		closeOnce.Do(func() {
			if err := port.Close(); err != nil {
				s.logger.Debug("device close error", "error", err)
			}
		})
	}
	defer closePort()

	// Closing the port is the only way to unblock a pending Read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			closePort()
		case <-stop:
		}
	}()

	emit := func(candidate []byte) {
		// Rejections are counted and logged by the pipeline.
		_, _ = s.pipeline.Ingest(ctx, candidate, state.SourceStream)
	}

	buf := make([]byte, s.config.ReadSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			asm.Each(buf[:n], emit)
		}
		if err != nil {
			return errors.New("E201").Wrap(err)
		}
		if n == 0 {
			return errors.New("E201").WithDetail("read returned no data")
		}
	}
}

func (s *StreamSource) wait(ctx context.Context, d time.Duration) bool {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *StreamSource) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Connected reports whether the device channel is currently open.
func (s *StreamSource) Connected() bool { return s.connected.Load() }

// StreamStats contains stream source counters.
type StreamStats struct {
	Connected    bool
	Sessions     uint64
	OpenFailures uint64
	Disconnects  uint64
	LastError    string
}

// Stats returns the source counters.
func (s *StreamSource) Stats() StreamStats {
	s.errMu.Lock()
	var last string
	if s.lastErr != nil {
		last = s.lastErr.Error()
	}
	s.errMu.Unlock()

	return StreamStats{
		Connected:    s.connected.Load(),
		Sessions:     s.sessions.Load(),
		OpenFailures: s.openFailures.Load(),
		Disconnects:  s.disconnects.Load(),
		LastError:    last,
	}
}
