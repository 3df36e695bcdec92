// Package health summarizes gateway liveness for operators.
package health

import (
	"time"
)

// Status values reported by a Snapshot.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// StreamState reports whether the device channel is open.
type StreamState interface {
	Connected() bool
}

// FrameCounter reports ingestion outcomes.
type FrameCounter interface {
	Accepted() uint64
	Rejected() uint64
}

// SubscriberCounter reports active subscribers.
type SubscriberCounter interface {
	Count() int
}

// ReadingAger reports the age of the current reading.
type ReadingAger interface {
	Age() (time.Duration, bool)
}

// Snapshot is a point-in-time health summary. It is read-only and never
// triggers ingestion or broadcast.
type Snapshot struct {
	Status            string  `json:"status"`
	StreamConnected   bool    `json:"stream_connected"`
	FramesAccepted    uint64  `json:"frames_accepted"`
	FramesRejected    uint64  `json:"frames_rejected"`
	Subscribers       int     `json:"subscribers"`
	HasReading        bool    `json:"has_reading"`
	ReadingAgeSeconds float64 `json:"reading_age_seconds,omitempty"`
}

// Reporter assembles snapshots from component counters. Any source may be
// nil; its fields are then reported as zero.
type Reporter struct {
	Stream      StreamState
	Frames      FrameCounter
	Subscribers SubscriberCounter
	Readings    ReadingAger

	// StaleAfter marks the gateway degraded when the current reading is
	// older than this. Zero disables the check.
	StaleAfter time.Duration
}

// Snapshot returns the current health summary.
//
// The gateway is degraded when a stream source is configured but
// disconnected, or when the current reading is older than StaleAfter.
// A gateway with no reading yet is not degraded by that alone.
func (r *Reporter) Snapshot() Snapshot {
	s := Snapshot{Status: StatusOK}

	if r.Stream != nil {
		s.StreamConnected = r.Stream.Connected()
		if !s.StreamConnected {
			s.Status = StatusDegraded
		}
	}
	if r.Frames != nil {
		s.FramesAccepted = r.Frames.Accepted()
		s.FramesRejected = r.Frames.Rejected()
	}
	if r.Subscribers != nil {
		s.Subscribers = r.Subscribers.Count()
	}
	if r.Readings != nil {
		if age, ok := r.Readings.Age(); ok {
			s.HasReading = true
			s.ReadingAgeSeconds = age.Seconds()
			if r.StaleAfter > 0 && age > r.StaleAfter {
				s.Status = StatusDegraded
			}
		}
	}
	return s
}

// Healthy reports whether the snapshot status is ok.
func (s Snapshot) Healthy() bool { return s.Status == StatusOK }
