package hub

import "time"

// Config holds hub tuning.
type Config struct {
	// HeartbeatInterval is the period of the current-state re-publish.
	// Default: 1 second.
	HeartbeatInterval time.Duration

	// QueueSize is the per-subscriber buffer. A subscriber that falls this
	// many payloads behind is removed.
	// Default: 16.
	QueueSize int

	// SendTimeout bounds a single Subscriber.Send call.
	// Default: 5 seconds.
	SendTimeout time.Duration

	// PrimeSubscribers queues the current reading for a new subscriber as
	// soon as it subscribes instead of waiting for the next heartbeat.
	// Default: true.
	PrimeSubscribers bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: time.Second,
		QueueSize:         16,
		SendTimeout:       5 * time.Second,
		PrimeSubscribers:  true,
	}
}

// withDefaults fills zero numeric fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	return c
}
