// Package middleware provides HTTP observability for the sprout gateway.
//
// # Prometheus Metrics
//
// NewMetrics registers request counters and latency histograms plus
// function-backed collectors that read gateway counters at scrape time:
//
//	m := middleware.NewMetrics(middleware.Sources{
//	    FramesAccepted: pipeline.Accepted,
//	    FramesRejected: pipeline.Rejected,
//	    Subscribers:    hub.Count,
//	}, middleware.WithRegistry(reg))
//
//	r.Use(m.Handler)
//	r.Handle("/metrics", m.Exposition())
//
// # OpenTelemetry
//
// Tracing wraps each request in a server span named after its chi route
// pattern. The tracer uses the global provider unless one is supplied:
//
//	r.Use(middleware.Tracing(middleware.WithTracerName("sprout")))
//
// Handlers reach the span with trace.SpanFromContext(r.Context()).
package middleware
