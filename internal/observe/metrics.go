// Package observe provides application-wide observability primitives for
// natuvoice: OpenTelemetry metrics, tracing, context-aware structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed in
// Prometheus text format through the exporter bridge set up by
// [InitProvider]. Tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all natuvoice metrics.
const meterName = "github.com/MrWong99/natuvoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Voice turn stages ---

	// TurnDuration tracks the wall time of a whole voice turn. Attribute:
	//   attribute.String("outcome", "ok"|"error")
	TurnDuration metric.Float64Histogram

	// STTDuration tracks transcription latency. Attribute:
	//   attribute.String("backend", "cloud"|"local")
	STTDuration metric.Float64Histogram

	// AnswerDuration tracks answer generation latency.
	AnswerDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// STTFallbacks counts turns answered by the local engine after a cloud
	// failure.
	STTFallbacks metric.Int64Counter

	// TTSFailures counts turns whose synthesis failed.
	TTSFailures metric.Int64Counter

	// VoiceFallbacks counts voice substitutions after a rejected voice.
	VoiceFallbacks metric.Int64Counter

	// ProviderErrors counts engine failures. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	//   attribute.String("name", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited metric.Int64Counter

	// --- Gauges ---

	// ActiveTurns tracks voice turns currently in flight.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for voice
// turn stages. Cloud STT and LLM calls sit in the 0.3–3 s range.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.TurnDuration, "natuvoice.turn.duration", "Wall time of a voice turn."},
		{&met.STTDuration, "natuvoice.stt.duration", "Latency of speech-to-text transcription."},
		{&met.AnswerDuration, "natuvoice.answer.duration", "Latency of answer generation."},
		{&met.TTSDuration, "natuvoice.tts.duration", "Latency of text-to-speech synthesis."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.STTFallbacks, "natuvoice.stt.fallbacks", "Turns transcribed by the local engine after a cloud failure."},
		{&met.TTSFailures, "natuvoice.tts.failures", "Voice turns whose synthesis failed."},
		{&met.VoiceFallbacks, "natuvoice.tts.voice_fallbacks", "Voice substitutions after a rejected voice."},
		{&met.ProviderErrors, "natuvoice.provider.errors", "Engine failures by provider and kind."},
		{&met.BreakerTransitions, "natuvoice.breaker.transitions", "Circuit breaker state changes."},
		{&met.RateLimited, "natuvoice.ratelimit.rejected", "Requests rejected by the rate limiter."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveTurns, err = m.Int64UpDownCounter("natuvoice.turns.active",
		metric.WithDescription("Voice turns currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("natuvoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Call it only after
// [InitProvider] so the instruments bind to the real provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderError records an engine failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("state", state),
		),
	)
}

// RecordVoiceFallback records a TTS voice substitution.
func (m *Metrics) RecordVoiceFallback(ctx context.Context, from, to string) {
	m.VoiceFallbacks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}
