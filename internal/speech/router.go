package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/resilience"
	"github.com/MrWong99/natuvoice/pkg/provider/stt"
)

// ErrSTTUnavailable is returned when no transcription engine can serve the
// configured mode.
var ErrSTTUnavailable = errors.New("speech: no usable stt engine")

// Mode selects which engines the router tries.
type Mode string

const (
	// ModeLocal uses only the local engine.
	ModeLocal Mode = "local"

	// ModeCloud tries the cloud engine first and falls back to local.
	ModeCloud Mode = "cloud"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeLocal || m == ModeCloud }

// Backend names the engine that produced a transcript.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCloud Backend = "cloud"
)

// Transcription is the outcome of one routed transcription.
type Transcription struct {
	Text string

	// Backend is the engine that actually produced Text.
	Backend Backend

	// FallbackUsed is true when the cloud engine failed and the local engine
	// answered instead.
	FallbackUsed bool
}

// Router dispatches an utterance to the cloud or local STT engine.
type Router struct {
	mode    Mode
	cloud   stt.Provider
	local   stt.Provider
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
	rate    int
}

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithBreaker guards the cloud engine. While the breaker is open the cloud
// engine is skipped and counted as failed.
func WithBreaker(cb *resilience.CircuitBreaker) RouterOption {
	return func(r *Router) { r.breaker = cb }
}

// WithRouterMetrics records stage latency and fallbacks into m.
func WithRouterMetrics(m *observe.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

// WithSampleRate sets the PCM rate reported to engines. Default: 16000.
func WithSampleRate(hz int) RouterOption {
	return func(r *Router) {
		if hz > 0 {
			r.rate = hz
		}
	}
}

// NewRouter returns a Router for mode. A nil engine or an [stt.Unavailable]
// stub counts as not configured.
func NewRouter(mode Mode, cloud, local stt.Provider, opts ...RouterOption) (*Router, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("speech: unknown stt mode %q", mode)
	}
	r := &Router{mode: mode, cloud: cloud, local: local, rate: 16000}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Mode returns the configured mode.
func (r *Router) Mode() Mode { return r.mode }

// Usable reports whether at least one engine can serve the configured mode.
func (r *Router) Usable() bool {
	if stt.Usable(r.local) {
		return true
	}
	return r.mode == ModeCloud && stt.Usable(r.cloud)
}

// Transcribe converts one utterance to text. wav is sent to the cloud engine
// and pcm to the local engine; both must hold the same audio.
//
// In cloud mode any cloud failure falls back to local. A cancelled ctx is
// returned as is and never triggers fallback. When no engine can answer the
// error wraps [ErrSTTUnavailable] together with the last engine error.
func (r *Router) Transcribe(ctx context.Context, wav, pcm []byte) (Transcription, error) {
	if !r.Usable() {
		return Transcription{}, fmt.Errorf("%w: mode %s has no configured engine", ErrSTTUnavailable, r.mode)
	}
	if len(pcm) == 0 {
		return Transcription{Backend: r.preferred()}, nil
	}

	ctx, span := observe.StartSpan(ctx, "stt.route")
	defer span.End()

	a := stt.Audio{PCM: pcm, WAV: wav, SampleRate: r.rate}
	var cloudErr error

	if r.mode == ModeCloud && stt.Usable(r.cloud) {
		text, err := r.transcribeCloud(ctx, a)
		if err == nil {
			span.SetAttributes(attribute.String("stt.backend", string(BackendCloud)))
			return Transcription{Text: text, Backend: BackendCloud}, nil
		}
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "cancelled")
			return Transcription{}, fmt.Errorf("speech: cloud stt: %w", ctx.Err())
		}
		cloudErr = err
		observe.Logger(ctx).Warn("cloud stt failed, falling back to local",
			"kind", stt.KindOf(err).String(),
			"err", err,
		)
	} else if r.mode == ModeCloud {
		cloudErr = r.cloudReason()
	}

	if !stt.Usable(r.local) {
		span.SetStatus(codes.Error, "no local engine")
		return Transcription{}, fmt.Errorf("%w: %w", ErrSTTUnavailable, cloudErr)
	}

	fallback := r.mode == ModeCloud
	text, err := r.timed(ctx, BackendLocal, func() (string, error) {
		return r.local.Transcribe(ctx, a)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "local stt failed")
		return Transcription{}, fmt.Errorf("speech: local stt: %w", err)
	}
	if fallback && r.metrics != nil {
		r.metrics.STTFallbacks.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.String("stt.backend", string(BackendLocal)),
		attribute.Bool("stt.fallback", fallback),
	)
	return Transcription{Text: text, Backend: BackendLocal, FallbackUsed: fallback}, nil
}

func (r *Router) transcribeCloud(ctx context.Context, a stt.Audio) (string, error) {
	return r.timed(ctx, BackendCloud, func() (string, error) {
		if r.breaker == nil {
			return r.cloud.Transcribe(ctx, a)
		}
		var text string
		err := r.breaker.Execute(func() error {
			var err error
			text, err = r.cloud.Transcribe(ctx, a)
			return err
		})
		return text, err
	})
}

func (r *Router) timed(ctx context.Context, b Backend, fn func() (string, error)) (string, error) {
	start := time.Now()
	text, err := fn()
	if r.metrics != nil {
		r.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("backend", string(b))))
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			r.metrics.RecordProviderError(ctx, "stt-"+string(b), stt.KindOf(err).String())
		}
	}
	return text, err
}

// cloudReason explains why cloud mode has no cloud engine.
func (r *Router) cloudReason() error {
	if u, ok := r.cloud.(*stt.Unavailable); ok && u.Reason != nil {
		return u.Reason
	}
	return errors.New("no cloud engine configured")
}

func (r *Router) preferred() Backend {
	if r.mode == ModeCloud && stt.Usable(r.cloud) {
		return BackendCloud
	}
	return BackendLocal
}
