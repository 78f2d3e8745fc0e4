package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrWong99/natuvoice/internal/config"
	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/resilience"
	"github.com/MrWong99/natuvoice/internal/speech"
	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/stt"
	"github.com/MrWong99/natuvoice/pkg/provider/vad"
)

// ErrUnavailable is returned for turns against a pipeline that could not be
// constructed. It always wraps the [*ConfigurationError] captured at startup.
var ErrUnavailable = errors.New("pipeline: unavailable")

// ConfigurationError reports a component that could not be built from the
// configuration.
type ConfigurationError struct {
	// Component is one of "audio", "vad", "stt", "tts" or "pipeline".
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pipeline: configure %s: %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Availability is the result of [Build]: either a ready pipeline or the
// reason it could not be built.
type Availability struct {
	pipeline *Pipeline
	reason   *ConfigurationError
	closers  []io.Closer
}

// Ready reports whether a pipeline was built.
func (a *Availability) Ready() bool { return a.pipeline != nil }

// Reason returns the construction failure, or nil when ready.
func (a *Availability) Reason() error {
	if a.reason == nil {
		return nil
	}
	return a.reason
}

// Pipeline returns the ready pipeline or an error wrapping [ErrUnavailable]
// and the captured [*ConfigurationError].
func (a *Availability) Pipeline() (*Pipeline, error) {
	if a.pipeline == nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, a.reason)
	}
	return a.pipeline, nil
}

// Close releases engines that hold native resources.
func (a *Availability) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Unavailable returns an Availability that reports err for every turn.
func Unavailable(component string, err error) *Availability {
	return &Availability{reason: &ConfigurationError{Component: component, Err: err}}
}

// Ready wraps an already assembled pipeline.
func Ready(p *Pipeline, closers ...io.Closer) *Availability {
	return &Availability{pipeline: p, closers: closers}
}

// BuildOption configures [Build].
type BuildOption func(*buildOptions)

type buildOptions struct {
	metrics   *observe.Metrics
	telemetry Telemetry
	decoder   audio.Decoder
	useCustom bool
}

// WithMetrics records pipeline, router and synthesizer metrics into m.
func WithMetrics(m *observe.Metrics) BuildOption {
	return func(o *buildOptions) { o.metrics = m }
}

// WithTelemetry sets the per-turn event sink.
func WithTelemetry(t Telemetry) BuildOption {
	return func(o *buildOptions) { o.telemetry = t }
}

// WithDecoder replaces the ffmpeg decoder for non-WAVE input.
func WithDecoder(d audio.Decoder) BuildOption {
	return func(o *buildOptions) {
		o.decoder = d
		o.useCustom = true
	}
}

// Build constructs the pipeline described by cfg using the engine factories
// in reg. It never returns a partially working pipeline: any fatal
// construction problem yields an Availability that is not ready.
//
// A cloud STT engine that fails to build is replaced by an [stt.Unavailable]
// stub so the router falls back to the local engine. Every other failure is
// fatal.
func Build(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...BuildOption) *Availability {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	log := observe.Logger(ctx)

	a := &Availability{}
	fail := func(component string, err error) *Availability {
		// Engines built so far are released; the caller only sees the reason.
		if cerr := a.Close(); cerr != nil {
			log.Warn("pipeline: release engines", "err", cerr)
		}
		log.Error("voice pipeline unavailable", "component", component, "err", err)
		return Unavailable(component, err)
	}

	decoder := o.decoder
	if !o.useCustom {
		decoder = audio.NewFFmpegDecoder(
			audio.WithBinary(cfg.Audio.FFmpegBin),
			audio.WithTempDir(cfg.Audio.TempDir),
		)
	}
	normalizer, err := audio.NewNormalizer(cfg.Audio.SampleRate, audio.WithDecoder(decoder))
	if err != nil {
		return fail("audio", err)
	}

	trimmer, err := buildTrimmer(cfg, reg)
	if err != nil {
		return fail("vad", err)
	}

	router, err := a.buildRouter(ctx, cfg, reg, o.metrics)
	if err != nil {
		return fail("stt", err)
	}

	entry := cfg.TTS.Active()
	if entry.Name == "" {
		return fail("tts", fmt.Errorf("no %s tts engine configured", cfg.TTS.Mode))
	}
	provider, err := reg.CreateTTS(entry)
	if err != nil {
		return fail("tts", fmt.Errorf("%s: %w", entry.Name, err))
	}
	a.track(provider)

	var synthOpts []speech.SynthOption
	if o.metrics != nil {
		synthOpts = append(synthOpts, speech.WithSynthMetrics(o.metrics))
	}
	synth, err := speech.NewSynthesizer(provider, cfg.TTS.Voice, cfg.TTS.ChunkChars, cfg.Audio.SampleRate, synthOpts...)
	if err != nil {
		return fail("tts", err)
	}

	p, err := New(Deps{
		Normalizer:  normalizer,
		Trimmer:     trimmer,
		Router:      router,
		Synthesizer: synth,
		Telemetry:   o.telemetry,
		Metrics:     o.metrics,
	})
	if err != nil {
		return fail("pipeline", err)
	}
	a.pipeline = p

	log.Info("voice pipeline ready",
		"stt_mode", string(router.Mode()),
		"stt_cloud", cfg.STT.Cloud.Name,
		"stt_local", cfg.STT.Local.Name,
		"tts", entry.Name,
		"vad", trimmer.Config().Enabled,
		"sample_rate", cfg.Audio.SampleRate,
	)
	return a
}

func buildTrimmer(cfg *config.Config, reg *config.Registry) (*speech.Trimmer, error) {
	vc := speech.VADConfig{
		Enabled:        cfg.VAD.IsEnabled(),
		Aggressiveness: cfg.VAD.Level(),
		FrameMs:        cfg.VAD.FrameMs,
		EndSilenceMs:   cfg.VAD.EndSilenceMs,
		SampleRate:     cfg.Audio.SampleRate,
	}
	var engine vad.Engine
	if vc.Enabled {
		var err error
		engine, err = reg.CreateVAD(config.ProviderEntry{Name: cfg.VAD.Engine})
		if err != nil {
			return nil, err
		}
	}
	return speech.NewTrimmer(vc, engine)
}

func (a *Availability) buildRouter(ctx context.Context, cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*speech.Router, error) {
	log := observe.Logger(ctx)
	mode := speech.Mode(cfg.STT.Mode)
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown stt mode %q", cfg.STT.Mode)
	}

	var local stt.Provider
	if name := cfg.STT.Local.Name; name != "" {
		p, err := reg.CreateSTT(cfg.STT.Local)
		switch {
		case err == nil:
			local = p
			a.track(p)
		case mode == speech.ModeLocal:
			return nil, fmt.Errorf("local engine %s: %w", name, err)
		default:
			log.Warn("local stt engine unavailable, cloud only", "provider", name, "err", err)
		}
	} else if mode == speech.ModeLocal {
		return nil, errors.New("local mode requires stt.local")
	}

	var cloud stt.Provider
	if mode == speech.ModeCloud {
		name := cfg.STT.Cloud.Name
		var err error
		if name == "" {
			err = errors.New("stt.cloud is not configured")
		} else {
			cloud, err = reg.CreateSTT(cfg.STT.Cloud)
		}
		if err != nil {
			log.Warn("cloud stt engine unavailable, using local", "provider", name, "err", err)
			cloud = stt.NewUnavailable(name, err)
		} else {
			a.track(cloud)
		}
		if !stt.Usable(cloud) && !stt.Usable(local) {
			return nil, fmt.Errorf("cloud mode has no usable engine: %w", err)
		}
	}

	opts := []speech.RouterOption{speech.WithSampleRate(cfg.Audio.SampleRate)}
	if m != nil {
		opts = append(opts, speech.WithRouterMetrics(m))
	}
	if stt.Usable(cloud) {
		opts = append(opts, speech.WithBreaker(newBreaker(cfg.STT.Breaker, m)))
	}
	return speech.NewRouter(mode, cloud, local, opts...)
}

func newBreaker(bc config.BreakerConfig, m *observe.Metrics) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.Config{
		Name:         "stt-cloud",
		MaxFailures:  bc.MaxFailures,
		ResetTimeout: time.Duration(bc.ResetTimeoutSec) * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.RecordBreakerTransition(context.Background(), name, to.String())
			}
		},
	})
}

func (a *Availability) track(p any) {
	if c, ok := p.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}
