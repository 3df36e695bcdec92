// Package frame reconstructs complete delimiter-balanced frames from a
// chunked character stream.
//
// The Assembler is a two-state machine. While Idle (depth 0) it discards
// everything except an opening delimiter, which tolerates free-text log lines
// interleaved with frames. While Accumulating (depth > 0) it buffers every
// byte, tracking nesting depth, and emits the buffered frame when depth
// returns to zero. It knows nothing about the frame's schema.
package frame

import (
	"github.com/sprout-iot/sprout/internal/errors"
)

// Delimiters.
const (
	Open  byte = '{'
	Close byte = '}'
)

// DefaultMaxFrameSize bounds a single frame in bytes.
const DefaultMaxFrameSize = 4096

// State is the assembler's machine state.
type State uint8

const (
	StateIdle State = iota
	StateAccumulating
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Assembler accumulates one stream's bytes into frames.
// An Assembler is not safe for concurrent use; each stream owns one.
type Assembler struct {
	buf     []byte
	depth   int
	maxSize int

	// OnDiscard, if set, is called when a partial frame is dropped
	// (oversize or Reset mid-frame) with a framing error.
	OnDiscard func(err error)
}

// NewAssembler creates an Assembler. maxSize <= 0 selects DefaultMaxFrameSize.
func NewAssembler(maxSize int) *Assembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Assembler{maxSize: maxSize}
}

// Feed consumes chunk and returns every frame completed by it, in arrival
// order. Returned slices are owned by the caller.
func (a *Assembler) Feed(chunk []byte) [][]byte {
	var frames [][]byte
	a.Each(chunk, func(f []byte) {
		frames = append(frames, f)
	})
	return frames
}

// Each consumes chunk and calls emit for every frame completed by it, in
// arrival order, before returning.
func (a *Assembler) Each(chunk []byte, emit func(frame []byte)) {
	if a.maxSize <= 0 {
		a.maxSize = DefaultMaxFrameSize
	}

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if a.depth == 0 {
			// Idle: only an opening delimiter matters. A stray close is dropped.
			if c == Open {
				a.buf = append(a.buf[:0], c)
				a.depth = 1
			}
			continue
		}

		a.buf = append(a.buf, c)
		switch c {
		case Open:
			a.depth++
		case Close:
			a.depth--
		}

		if a.depth == 0 {
			out := make([]byte, len(a.buf))
			copy(out, a.buf)
			a.buf = a.buf[:0]
			emit(out)
			continue
		}

		if len(a.buf) >= a.maxSize {
			a.discard(errors.New("E001").WithDetailf("discarded %d bytes at depth %d", len(a.buf), a.depth))
		}
	}
}

// Reset discards any partially accumulated frame and returns to Idle.
func (a *Assembler) Reset() {
	if a.depth > 0 {
		a.discard(errors.New("E002").WithDetailf("discarded %d bytes at depth %d", len(a.buf), a.depth))
	}
}

func (a *Assembler) discard(err error) {
	a.buf = a.buf[:0]
	a.depth = 0
	if a.OnDiscard != nil {
		a.OnDiscard(err)
	}
}

// State returns the current machine state.
func (a *Assembler) State() State {
	if a.depth > 0 {
		return StateAccumulating
	}
	return StateIdle
}

// Depth returns the current nesting depth. It is never negative.
func (a *Assembler) Depth() int { return a.depth }

// Buffered returns the number of bytes held for the frame in progress.
func (a *Assembler) Buffered() int { return len(a.buf) }
