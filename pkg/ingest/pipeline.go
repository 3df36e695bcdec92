package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/sprout-iot/sprout/pkg/reading"
	"github.com/sprout-iot/sprout/pkg/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sprout-iot/sprout/pkg/ingest"

// Pipeline validates candidates and commits accepted ones to the store.
type Pipeline struct {
	store  *state.Store
	logger *slog.Logger
	tracer trace.Tracer

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	discarded atomic.Uint64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithTracer sets the tracer used for per-candidate spans.
func WithTracer(tracer trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		p.tracer = tracer
	}
}

// NewPipeline creates a Pipeline committing to store.
func NewPipeline(store *state.Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Ingest validates candidate and, if it is accepted, stores it tagged with
// src. A rejected candidate leaves the store untouched and returns the
// validation error.
func (p *Pipeline) Ingest(ctx context.Context, candidate []byte, src state.Source) (state.Current, error) {
	_, span := p.tracer.Start(ctx, "ingest.candidate",
		trace.WithAttributes(
			attribute.String("sprout.source", string(src)),
			attribute.Int("sprout.candidate_bytes", len(candidate)),
		))
	defer span.End()

	payload, err := reading.Validate(candidate)
	if err != nil {
		p.rejected.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		p.logger.Warn("candidate rejected",
			"source", src,
			"reason", reading.Reason(err),
			"bytes", len(candidate))
		return state.Current{}, err
	}

	cur := p.store.Set(payload, src)
	p.accepted.Add(1)
	span.SetStatus(codes.Ok, "")
	p.logger.Debug("reading accepted", "source", src, "line", payload.Line())
	return cur, nil
}

// Submit is the discrete-submission path: body is one complete candidate.
func (p *Pipeline) Submit(ctx context.Context, body []byte) (state.Current, error) {
	return p.Ingest(ctx, body, state.SourceSubmit)
}

// RecordDiscard counts a framing error reported by an Assembler.
func (p *Pipeline) RecordDiscard(err error) {
	p.discarded.Add(1)
	p.logger.Debug("partial frame discarded", "reason", reading.Reason(err))
}

// Accepted returns the number of accepted candidates.
func (p *Pipeline) Accepted() uint64 { return p.accepted.Load() }

// Rejected returns the number of rejected candidates.
func (p *Pipeline) Rejected() uint64 { return p.rejected.Load() }

// Discarded returns the number of partial frames dropped by framing.
func (p *Pipeline) Discarded() uint64 { return p.discarded.Load() }
