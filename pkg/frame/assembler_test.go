package frame

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/sprout-iot/sprout/internal/errors"
)

const sample = `{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513","json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}`

func feedAll(a *Assembler, chunks ...string) []string {
	var out []string
	for _, c := range chunks {
		for _, f := range a.Feed([]byte(c)) {
			out = append(out, string(f))
		}
	}
	return out
}

func TestSingleChunk(t *testing.T) {
	a := NewAssembler(0)
	got := feedAll(a, sample)
	if len(got) != 1 || got[0] != sample {
		t.Fatalf("frames = %q", got)
	}
	if a.State() != StateIdle || a.Buffered() != 0 {
		t.Errorf("state = %v buffered = %d, want idle/0", a.State(), a.Buffered())
	}
}

func TestChunkInvarianceOneByteAtATime(t *testing.T) {
	a := NewAssembler(0)
	var got []string
	for i := 0; i < len(sample); i++ {
		frames := a.Feed([]byte{sample[i]})
		if i < len(sample)-1 && len(frames) != 0 {
			t.Fatalf("frame emitted early at byte %d", i)
		}
		for _, f := range frames {
			got = append(got, string(f))
		}
	}
	if len(got) != 1 || got[0] != sample {
		t.Fatalf("frames = %q", got)
	}
}

func TestChunkInvarianceAllTwoWaySplits(t *testing.T) {
	for i := 0; i <= len(sample); i++ {
		a := NewAssembler(0)
		got := feedAll(a, sample[:i], sample[i:])
		if len(got) != 1 || got[0] != sample {
			t.Fatalf("split at %d: frames = %q", i, got)
		}
	}
}

func TestChunkInvarianceRandomSplits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	input := "boot ok\n" + sample + "\nwifi: retry\n" + sample + sample

	for round := 0; round < 200; round++ {
		a := NewAssembler(0)
		var got []string
		rest := input
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			got = append(got, feedAll(a, rest[:n])...)
			rest = rest[n:]
		}
		if len(got) != 3 {
			t.Fatalf("round %d: got %d frames", round, len(got))
		}
		for _, f := range got {
			if f != sample {
				t.Fatalf("round %d: frame = %q", round, f)
			}
		}
	}
}

func TestThreeChunksMidObject(t *testing.T) {
	a := NewAssembler(0)
	third := len(sample) / 3
	c1, c2, c3 := sample[:third], sample[third:2*third], sample[2*third:]

	if f := a.Feed([]byte(c1)); len(f) != 0 {
		t.Fatalf("chunk 1 emitted %q", f)
	}
	if f := a.Feed([]byte(c2)); len(f) != 0 {
		t.Fatalf("chunk 2 emitted %q", f)
	}
	f := a.Feed([]byte(c3))
	if len(f) != 1 || string(f[0]) != sample {
		t.Fatalf("chunk 3 emitted %q", f)
	}
}

func TestMultipleFramesOneChunkInOrder(t *testing.T) {
	a := NewAssembler(0)
	got := feedAll(a, `{"a":1}{"b":{"c":2}}junk{"d":3}`)
	want := []string{`{"a":1}`, `{"b":{"c":2}}`, `{"d":3}`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("frames = %q, want %q", got, want)
	}
}

func TestInterleavedFreeText(t *testing.T) {
	a := NewAssembler(0)
	got := feedAll(a,
		"Sensor init...\r\n",
		`{"x":1}`+"\r\nreading soil\r\n",
		"DHT ok\n{\"y\":",
		"2}\nbye",
	)
	want := []string{`{"x":1}`, `{"y":2}`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("frames = %q, want %q", got, want)
	}
}

func TestStrayCloseWhileIdle(t *testing.T) {
	a := NewAssembler(0)
	got := feedAll(a, "}}}", "}")
	if len(got) != 0 {
		t.Errorf("frames = %q, want none", got)
	}
	if a.Depth() != 0 || a.State() != StateIdle {
		t.Errorf("depth = %d state = %v", a.Depth(), a.State())
	}

	got = feedAll(a, `}{"ok":true}}`)
	if len(got) != 1 || got[0] != `{"ok":true}` {
		t.Errorf("frames = %q", got)
	}
}

func TestDepthNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	alphabet := []byte(`{}{}ab"`)
	a := NewAssembler(64)
	for i := 0; i < 10000; i++ {
		a.Feed([]byte{alphabet[rng.Intn(len(alphabet))]})
		if a.Depth() < 0 {
			t.Fatalf("depth went negative at step %d", i)
		}
		if a.Depth() == 0 && a.Buffered() != 0 {
			t.Fatalf("idle with %d buffered bytes at step %d", a.Buffered(), i)
		}
	}
}

func TestMaxFrameSizeDiscards(t *testing.T) {
	var discarded []error
	a := NewAssembler(16)
	a.OnDiscard = func(err error) { discarded = append(discarded, err) }

	got := feedAll(a, "{"+strings.Repeat("x", 40), `{"ok":1}`)
	if len(discarded) != 1 {
		t.Fatalf("discards = %d, want 1", len(discarded))
	}
	if errors.CodeOf(discarded[0]) != "E001" {
		t.Errorf("discard code = %q, want E001", errors.CodeOf(discarded[0]))
	}
	if len(got) != 1 || got[0] != `{"ok":1}` {
		t.Errorf("frames = %q", got)
	}
}

func TestResetDiscardsPartialFrame(t *testing.T) {
	var discarded []error
	a := NewAssembler(0)
	a.OnDiscard = func(err error) { discarded = append(discarded, err) }

	a.Feed([]byte(sample[:20]))
	if a.State() != StateAccumulating {
		t.Fatalf("state = %v, want accumulating", a.State())
	}
	a.Reset()
	if a.State() != StateIdle || a.Buffered() != 0 {
		t.Errorf("after Reset: state = %v buffered = %d", a.State(), a.Buffered())
	}
	if len(discarded) != 1 || errors.CodeOf(discarded[0]) != "E002" {
		t.Errorf("discarded = %v", discarded)
	}

	// Tail of the old frame must not resurrect it.
	if got := feedAll(a, sample[20:]); len(got) != 0 {
		t.Errorf("tail emitted %q", got)
	}

	// Reset while idle is silent.
	a.Reset()
	if len(discarded) != 1 {
		t.Errorf("Reset while idle reported a discard")
	}
}

func TestEmittedFramesAreIndependentCopies(t *testing.T) {
	a := NewAssembler(0)
	first := a.Feed([]byte(`{"a":1}`))[0]
	a.Feed([]byte(`{"b":2}`))
	if !bytes.Equal(first, []byte(`{"a":1}`)) {
		t.Errorf("first frame mutated to %q", first)
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StateAccumulating.String() != "accumulating" {
		t.Error("unexpected state names")
	}
	if State(9).String() != "unknown" {
		t.Error("unexpected name for invalid state")
	}
}
