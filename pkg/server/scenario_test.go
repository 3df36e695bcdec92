package server

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sprout-iot/sprout/pkg/hub"
	"github.com/sprout-iot/sprout/pkg/ingest"
	"github.com/zoobzio/clockz"
)

// pipeOpener hands out a single in-memory device channel.
type pipeOpener struct {
	r *io.PipeReader
}

func (o *pipeOpener) Open(ctx context.Context) (io.ReadCloser, error) {
	if o.r == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := o.r
	o.r = nil
	return r, nil
}

func (o *pipeOpener) String() string { return "pipe" }

// A frame delivered over the stream in three chunks reaches two existing
// subscribers with identical bytes, and a late subscriber converges on the
// same payload through the heartbeat.
func TestStreamFrameReachesSubscribersAndHeartbeatConverges(t *testing.T) {
	clock := clockz.NewFakeClock()
	hubConfig := hub.DefaultConfig()
	hubConfig.PrimeSubscribers = false
	g := newGateway(t, hubConfig, Config{}, hub.WithClock(clock))

	pr, pw := io.Pipe()
	stream := ingest.NewStreamSource(&pipeOpener{r: pr}, g.pipeline, ingest.DefaultStreamConfig(),
		ingest.WithStreamLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	a := g.dial(t)
	b := g.dial(t)

	chunks := []string{validFrame[:25], validFrame[25:70], validFrame[70:] + "\r\n"}
	go func() {
		for _, c := range chunks {
			pw.Write([]byte(c))
			time.Sleep(5 * time.Millisecond)
		}
	}()

	gotA, gotB := readText(t, a), readText(t, b)
	if !bytes.Equal(gotA, gotB) {
		t.Fatalf("subscribers diverged:\n%s\n%s", gotA, gotB)
	}
	if string(gotA) != canonicalBody {
		t.Errorf("payload = %s, want %s", gotA, canonicalBody)
	}
	cur, ok := g.store.Get()
	if !ok || cur.Source != "stream" {
		t.Errorf("current = %+v", cur)
	}

	// No new input: only the heartbeat one interval later reaches c.
	c := g.dial(t)
	eventually(t, "heartbeat ticker", clock.HasWaiters)
	clock.Advance(hubConfig.HeartbeatInterval)
	clock.BlockUntilReady()
	if got := readText(t, c); !bytes.Equal(got, gotA) {
		t.Errorf("late subscriber got %s, want %s", got, gotA)
	}
}
