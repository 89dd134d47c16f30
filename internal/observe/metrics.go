// Package observe provides application-wide observability primitives for
// Clerk: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Clerk metrics.
const meterName = "github.com/emporia-ai/clerk"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ModelDuration tracks chat-completion latency.
	ModelDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding request latency.
	EmbeddingDuration metric.Float64Histogram

	// ToolDuration tracks tool handler execution latency.
	ToolDuration metric.Float64Histogram

	// RetrievalDuration tracks end-to-end semantic retrieval latency
	// (embed + vector search + catalog fetch).
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// ModelRequests counts chat-completion API calls. Use with attributes:
	//   attribute.String("assistant", ...), attribute.String("status", ...)
	ModelRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// Turns counts completed chat turns. Use with attributes:
	//   attribute.String("assistant", ...), attribute.String("outcome", ...)
	Turns metric.Int64Counter

	// --- Error counters ---

	// ModelErrors counts upstream model failures. Use with attribute:
	//   attribute.String("assistant", ...)
	ModelErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks the number of chat turns currently in flight.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model round-trips, which dominate turn latency.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ModelDuration, err = m.Float64Histogram("clerk.model.duration",
		metric.WithDescription("Latency of chat-completion requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("clerk.embedding.duration",
		metric.WithDescription("Latency of embedding requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("clerk.tool.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("clerk.retrieval.duration",
		metric.WithDescription("End-to-end semantic retrieval latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ModelRequests, err = m.Int64Counter("clerk.model.requests",
		metric.WithDescription("Total chat-completion requests by assistant and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("clerk.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("clerk.turns",
		metric.WithDescription("Total completed chat turns by assistant and outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ModelErrors, err = m.Int64Counter("clerk.model.errors",
		metric.WithDescription("Total upstream model failures by assistant."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("clerk.active_turns",
		metric.WithDescription("Number of chat turns currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("clerk.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordModelRequest records a chat-completion counter increment with the
// standard attribute set.
func (m *Metrics) RecordModelRequest(ctx context.Context, assistant, status string) {
	m.ModelRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("assistant", assistant),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordTurn records a completed chat turn.
func (m *Metrics) RecordTurn(ctx context.Context, assistant, outcome string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("assistant", assistant),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordModelError records an upstream model failure.
func (m *Metrics) RecordModelError(ctx context.Context, assistant string) {
	m.ModelErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("assistant", assistant)),
	)
}
