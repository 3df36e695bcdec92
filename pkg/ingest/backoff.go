package ingest

import "time"

// Backoff is an exponential retry schedule with a cap. Retries never stop;
// the schedule only controls spacing.
type Backoff struct {
	// Initial is the delay before the first retry.
	Initial time.Duration

	// Max caps every delay.
	Max time.Duration

	// Multiplier grows the delay per attempt. Values below 1 mean a fixed
	// schedule.
	Multiplier float64
}

// DefaultBackoff returns 1s, 2s, 4s ... capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
	}
}

// Delay returns the wait before retry number attempt (1-based).
//
// Formula: min(Initial * Multiplier^(attempt-1), Max)
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff().Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(b.Initial)
	if b.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay *= b.Multiplier
			if delay >= float64(b.Max) {
				return b.Max
			}
		}
	}
	if delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}
