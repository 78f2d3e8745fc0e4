package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/tts"
)

// SynthesisError reports a chunk that could not be synthesized.
type SynthesisError struct {
	// Chunk is the zero-based index of the failing chunk.
	Chunk int

	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech: synthesize chunk %d: %v", e.Chunk, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesizer turns answer text into one canonical WAVE file by chunking it
// and synthesizing each chunk through a TTS engine.
//
// When the engine rejects the active voice, Synthesizer retries the chunk
// once with the first alternative the engine names and keeps that voice for
// every later chunk and call.
type Synthesizer struct {
	provider   tts.Provider
	chunkChars int
	targetRate int
	metrics    *observe.Metrics

	mu    sync.Mutex
	voice string
}

// SynthOption configures a [Synthesizer].
type SynthOption func(*Synthesizer)

// WithSynthMetrics records latency and voice fallbacks into m.
func WithSynthMetrics(m *observe.Metrics) SynthOption {
	return func(s *Synthesizer) { s.metrics = m }
}

// NewSynthesizer returns a Synthesizer that starts with voice and packs at
// most chunkChars runes into each engine call. Output is resampled to
// targetRate.
func NewSynthesizer(provider tts.Provider, voice string, chunkChars, targetRate int, opts ...SynthOption) (*Synthesizer, error) {
	if provider == nil {
		return nil, errors.New("speech: synthesizer: tts provider is nil")
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("speech: synthesizer: target rate must be positive, got %d", targetRate)
	}
	s := &Synthesizer{
		provider:   provider,
		voice:      voice,
		chunkChars: chunkChars,
		targetRate: targetRate,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Voice returns the voice used for the next chunk.
func (s *Synthesizer) Voice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

// Synthesize renders text as mono 16-bit PCM at the target rate wrapped in
// a WAVE container. Empty text yields a valid header-only file.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := Chunk(text, s.chunkChars)
	if len(chunks) == 0 {
		return audio.EncodeWAV(nil, s.targetRate, 1, audio.CanonicalWidth), nil
	}

	ctx, span := observe.StartSpan(ctx, "tts.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("tts.chunks", len(chunks)))

	start := time.Now()
	var pcm []byte
	for i, c := range chunks {
		buf, err := s.chunk(ctx, c)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chunk failed")
			return nil, &SynthesisError{Chunk: i, Err: err}
		}
		pcm = append(pcm, buf.Data...)
	}
	if s.metrics != nil {
		s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	}
	return audio.EncodeWAV(pcm, s.targetRate, 1, audio.CanonicalWidth), nil
}

// chunk synthesizes one chunk, retrying once on a rejected voice.
func (s *Synthesizer) chunk(ctx context.Context, text string) (audio.Buffer, error) {
	voice := s.Voice()
	wav, err := s.provider.Synthesize(ctx, text, voice)

	var vu *tts.VoiceUnsupportedError
	if errors.As(err, &vu) {
		alt, ok := alternative(voice, vu.Supported)
		if !ok {
			return audio.Buffer{}, err
		}
		observe.Logger(ctx).Warn("tts voice rejected, retrying with alternative",
			"voice", voice,
			"alternative", alt,
		)
		wav, err = s.provider.Synthesize(ctx, text, alt)
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("retry with voice %q: %w", alt, err)
		}
		s.setVoice(voice, alt)
		if s.metrics != nil {
			s.metrics.RecordVoiceFallback(ctx, voice, alt)
		}
	}
	if err != nil {
		return audio.Buffer{}, err
	}

	buf, err := audio.ParseWAV(wav)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("parse engine output: %w", err)
	}
	return audio.Canonicalize(buf, s.targetRate)
}

// setVoice switches to next unless a concurrent call already moved away
// from prev.
func (s *Synthesizer) setVoice(prev, next string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voice == prev {
		s.voice = next
	}
}

// alternative returns the first supported voice that differs from current.
func alternative(current string, supported []string) (string, bool) {
	for _, v := range supported {
		if v != "" && v != current {
			return v, true
		}
	}
	return "", false
}
