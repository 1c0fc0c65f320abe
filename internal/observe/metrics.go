// Package observe provides application-wide observability primitives for
// Wayfarer: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Wayfarer metrics.
const meterName = "github.com/emberforge/wayfarer"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FrameDuration tracks wall-clock time per autonomous frame.
	FrameDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// LLMRequests counts LLM calls. Use with attributes:
	//   attribute.String("subsystem", ...), attribute.String("operation", ...), attribute.String("status", ...)
	LLMRequests metric.Int64Counter

	// Fallbacks counts degraded operations served from templates. Use with:
	//   attribute.String("subsystem", ...), attribute.String("operation", ...)
	Fallbacks metric.Int64Counter

	// GameEvents counts published events by type.
	GameEvents metric.Int64Counter

	// Actions counts executed protagonist actions. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", ...)
	Actions metric.Int64Counter

	// ActiveSessions tracks the number of running game sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ConnectedObservers tracks attached websocket observers.
	ConnectedObservers metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Frames
// without LLM calls land in the low buckets; frames that wait on inference
// stretch into seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FrameDuration, err = m.Float64Histogram("wayfarer.frame.duration",
		metric.WithDescription("Wall-clock time per autonomous frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("wayfarer.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LLMRequests, err = m.Int64Counter("wayfarer.llm.requests",
		metric.WithDescription("Total LLM requests by subsystem, operation, and status."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("wayfarer.fallbacks",
		metric.WithDescription("Total degraded operations served from fallback templates."),
	); err != nil {
		return nil, err
	}
	if met.GameEvents, err = m.Int64Counter("wayfarer.events",
		metric.WithDescription("Total published game events by type."),
	); err != nil {
		return nil, err
	}
	if met.Actions, err = m.Int64Counter("wayfarer.actions",
		metric.WithDescription("Total executed actions by type and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("wayfarer.active_sessions",
		metric.WithDescription("Number of running game sessions."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedObservers, err = m.Int64UpDownCounter("wayfarer.connected_observers",
		metric.WithDescription("Number of attached websocket observers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("wayfarer.http.request.duration",
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

// RecordLLMRequest records an LLM request counter increment with the
// standard attribute set.
func (m *Metrics) RecordLLMRequest(ctx context.Context, subsystem, operation, status string) {
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("subsystem", subsystem),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordFallback records a degraded operation.
func (m *Metrics) RecordFallback(ctx context.Context, subsystem, operation string) {
	m.Fallbacks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("subsystem", subsystem),
			attribute.String("operation", operation),
		),
	)
}

// RecordGameEvent records one published event.
func (m *Metrics) RecordGameEvent(ctx context.Context, eventType string) {
	m.GameEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordAction records one executed action.
func (m *Metrics) RecordAction(ctx context.Context, actionType string, success bool) {
	status := "ok"
	if !success {
		status = "failed"
	}
	m.Actions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", actionType),
			attribute.String("status", status),
		),
	)
}
