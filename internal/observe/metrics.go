// Package observe provides application-wide observability primitives for
// Voxlink: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxlink metrics.
const meterName = "github.com/MrWong99/voxlink"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// CaptureChunks counts microphone chunks transmitted to the provider.
	// Use with attribute: attribute.String("status", "sent"|"dropped")
	CaptureChunks metric.Int64Counter

	// PlaybackUnits counts provider audio chunks scheduled for playback.
	PlaybackUnits metric.Int64Counter

	// CodecErrors counts malformed audio payloads dropped by the codec.
	// Use with attribute: attribute.String("direction", "inbound"|"outbound")
	CodecErrors metric.Int64Counter

	// Turns counts completed conversation turns.
	Turns metric.Int64Counter

	// Interruptions counts barge-in events that cleared the playback timeline.
	Interruptions metric.Int64Counter

	// --- Histograms ---

	// ScheduleLead tracks how far ahead of real time playback units are
	// placed on the timeline. Near-zero values mean the model is barely
	// keeping ahead of the speaker.
	ScheduleLead metric.Float64Histogram

	// SessionDuration tracks the wall-clock length of completed sessions.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActivePlaybackUnits tracks scheduled-but-unfinished playback units.
	ActivePlaybackUnits metric.Int64UpDownCounter
}

// leadBuckets defines histogram bucket boundaries (in seconds) for playback
// scheduling lead times.
var leadBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for session
// durations.
var sessionBuckets = []float64{
	10, 30, 60, 120, 300, 600, 1200, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.CaptureChunks, err = m.Int64Counter("voxlink.capture.chunks",
		metric.WithDescription("Total microphone chunks transmitted by status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackUnits, err = m.Int64Counter("voxlink.playback.units",
		metric.WithDescription("Total provider audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.CodecErrors, err = m.Int64Counter("voxlink.codec.errors",
		metric.WithDescription("Total malformed audio payloads dropped by direction."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("voxlink.turns",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("voxlink.interruptions",
		metric.WithDescription("Total barge-in events that cleared playback."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.ScheduleLead, err = m.Float64Histogram("voxlink.playback.schedule_lead",
		metric.WithDescription("Lead time between scheduling and unit start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(leadBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxlink.session.duration",
		metric.WithDescription("Wall-clock length of completed sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxlink.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxlink.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybackUnits, err = m.Int64UpDownCounter("voxlink.playback.active_units",
		metric.WithDescription("Number of scheduled-but-unfinished playback units."),
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

// RecordCaptureChunk records one transmitted (or dropped) microphone chunk.
func (m *Metrics) RecordCaptureChunk(ctx context.Context, status string) {
	m.CaptureChunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCodecError records one dropped malformed payload.
func (m *Metrics) RecordCodecError(ctx context.Context, direction string) {
	m.CodecErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}

// RecordScheduledUnit records a playback unit entering the timeline together
// with its scheduling lead.
func (m *Metrics) RecordScheduledUnit(ctx context.Context, lead time.Duration) {
	m.PlaybackUnits.Add(ctx, 1)
	m.ScheduleLead.Record(ctx, lead.Seconds())
}

// RecordTurn records one completed conversation turn.
func (m *Metrics) RecordTurn(ctx context.Context) {
	m.Turns.Add(ctx, 1)
}

// RecordInterruption records one barge-in event.
func (m *Metrics) RecordInterruption(ctx context.Context) {
	m.Interruptions.Add(ctx, 1)
}
