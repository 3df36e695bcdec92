package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/sprout-iot/sprout/pkg/reading"
	"github.com/sprout-iot/sprout/pkg/state"
)

const validFrame = `{"line":"STATE;soil=395;temp=22.9;hum=19.0;mq2=85;rain=1020;bio=513","json":{"soil":395,"temp":22.9,"hum":19.0,"mq2":85,"rain":1020,"bio":513}}`

func TestPipelineAccepts(t *testing.T) {
	store := state.New()
	p := NewPipeline(store)

	cur, err := p.Ingest(context.Background(), []byte(validFrame), state.SourceStream)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if cur.Source != state.SourceStream {
		t.Errorf("Source = %q", cur.Source)
	}
	got, ok := store.Get()
	if !ok || got.Payload.Reading().Soil != 395 {
		t.Fatalf("store not updated: %+v", got)
	}
	if p.Accepted() != 1 || p.Rejected() != 0 {
		t.Errorf("accepted/rejected = %d/%d, want 1/0", p.Accepted(), p.Rejected())
	}
}

func TestPipelineRejectionLeavesStateUnchanged(t *testing.T) {
	store := state.New()
	p := NewPipeline(store)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, []byte(validFrame), state.SourceStream); err != nil {
		t.Fatal(err)
	}
	before, _ := store.Get()

	bad := []string{
		`{"line":"x","json":{"soil":1}}`,
		`{"broken"`,
		`{"line":"x","json":{"soil":"wet","temp":1,"hum":1,"mq2":1,"rain":1,"bio":1}}`,
	}
	for _, candidate := range bad {
		if _, err := p.Ingest(ctx, []byte(candidate), state.SourceStream); !errors.Is(err, reading.ErrRejected) {
			t.Errorf("Ingest(%s) error = %v, want ErrRejected", candidate, err)
		}
		after, _ := store.Get()
		if after.Payload.String() != before.Payload.String() || !after.ReceivedAt.Equal(before.ReceivedAt) || after.Source != before.Source {
			t.Fatalf("state changed by rejected candidate %s", candidate)
		}
	}
	if p.Rejected() != uint64(len(bad)) {
		t.Errorf("Rejected() = %d, want %d", p.Rejected(), len(bad))
	}
}

func TestSubmitMatchesStreamShape(t *testing.T) {
	store := state.New()
	p := NewPipeline(store)
	ctx := context.Background()

	streamed, err := p.Ingest(ctx, []byte(validFrame), state.SourceStream)
	if err != nil {
		t.Fatal(err)
	}
	submitted, err := p.Submit(ctx, []byte(validFrame))
	if err != nil {
		t.Fatal(err)
	}
	if submitted.Source != state.SourceSubmit {
		t.Errorf("Source = %q, want submit", submitted.Source)
	}
	if string(streamed.Payload.Bytes()) != string(submitted.Payload.Bytes()) {
		t.Errorf("payload bytes differ between paths:\n%s\n%s", streamed.Payload, submitted.Payload)
	}
}

func TestPipelineRecordDiscard(t *testing.T) {
	p := NewPipeline(state.New())
	p.RecordDiscard(errors.New("partial"))
	if p.Discarded() != 1 {
		t.Errorf("Discarded() = %d, want 1", p.Discarded())
	}
}
