// Package pipeline runs one voice turn end to end.
//
// A turn flows through five strictly sequential stages:
//
//  1. Normalize the uploaded clip to canonical PCM and trim surrounding
//     silence (together, not separately timed).
//  2. Transcribe through the [speech.Router], which may fall back from the
//     cloud engine to the local one.
//  3. Hand the transcript to the caller-supplied [AnswerFunc].
//  4. Synthesize the answer, if audio was requested.
//  5. Emit exactly one [TurnEvent] to the configured [Telemetry].
//
// Normalization, transcription and answer failures fail the turn. A
// synthesis failure only degrades it: the result carries the text, no audio
// and the error message in [TurnResult.TTSError].
//
// A [Pipeline] holds no per-turn state and is safe for concurrent turns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/speech"
	"github.com/MrWong99/natuvoice/pkg/audio"
)

// AnswerFunc produces the reply to a transcript. It is opaque to the
// pipeline and may perform its own network calls.
type AnswerFunc func(ctx context.Context, text string) (string, error)

// TurnRequest is one uploaded utterance.
type TurnRequest struct {
	// Audio is the raw uploaded file, WAVE or any container ffmpeg reads.
	Audio []byte

	// SourceName is the client file name. Its extension is a format hint.
	SourceName string

	// IncludeAudio requests a synthesized reply.
	IncludeAudio bool
}

// Latencies are per-stage wall times in milliseconds.
type Latencies struct {
	STT    int64 `json:"stt"`
	Answer int64 `json:"llm"`
	TTS    int64 `json:"tts"`
}

// TurnResult is the outcome of a completed turn. It is not modified after
// [Pipeline.RunTurn] returns it.
type TurnResult struct {
	STTText    string
	AnswerText string

	// Audio is the synthesized reply as a WAVE file. It is nil when audio
	// was not requested or synthesis failed.
	Audio []byte

	Backend      speech.Backend
	FallbackUsed bool
	Latency      Latencies

	// TTSError holds the synthesis failure message, if any.
	TTSError string
}

// Deps are the collaborators of a [Pipeline].
type Deps struct {
	Normalizer  *audio.Normalizer
	Trimmer     *speech.Trimmer
	Router      *speech.Router
	Synthesizer *speech.Synthesizer

	// Telemetry receives one event per turn. Defaults to [LogTelemetry].
	Telemetry Telemetry

	// Metrics is optional.
	Metrics *observe.Metrics
}

// Pipeline sequences the stages of a voice turn.
type Pipeline struct {
	normalizer *audio.Normalizer
	trimmer    *speech.Trimmer
	router     *speech.Router
	synth      *speech.Synthesizer
	telemetry  Telemetry
	metrics    *observe.Metrics
}

// New assembles a Pipeline from fully built components.
func New(d Deps) (*Pipeline, error) {
	var errs []error
	if d.Normalizer == nil {
		errs = append(errs, errors.New("normalizer is required"))
	}
	if d.Trimmer == nil {
		errs = append(errs, errors.New("trimmer is required"))
	}
	if d.Router == nil {
		errs = append(errs, errors.New("stt router is required"))
	}
	if d.Synthesizer == nil {
		errs = append(errs, errors.New("synthesizer is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		normalizer: d.Normalizer,
		trimmer:    d.Trimmer,
		router:     d.Router,
		synth:      d.Synthesizer,
		telemetry:  d.Telemetry,
		metrics:    d.Metrics,
	}
	if p.telemetry == nil {
		p.telemetry = LogTelemetry{}
	}
	return p, nil
}

// STTMode returns the configured transcription mode.
func (p *Pipeline) STTMode() speech.Mode { return p.router.Mode() }

// VADEnabled reports whether silence trimming is active.
func (p *Pipeline) VADEnabled() bool { return p.trimmer.Config().Enabled }

// SampleRate returns the canonical PCM rate in Hz.
func (p *Pipeline) SampleRate() int { return p.normalizer.TargetRate() }

// RunTurn processes one utterance. The returned error is an
// [*audio.DecodeError] for unusable input, wraps [speech.ErrSTTUnavailable]
// when no engine could transcribe, or wraps the error of answer.
func (p *Pipeline) RunTurn(ctx context.Context, req TurnRequest, answer AnswerFunc) (*TurnResult, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.turn")
	defer span.End()

	if p.metrics != nil {
		p.metrics.ActiveTurns.Add(ctx, 1)
		defer p.metrics.ActiveTurns.Add(ctx, -1)
	}

	res, err := p.runTurn(ctx, req, answer)

	ev := TurnEvent{Duration: time.Since(start), Err: err}
	if res != nil {
		ev.Result = *res
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
	} else {
		span.SetAttributes(
			attribute.String("stt.backend", string(res.Backend)),
			attribute.Bool("stt.fallback", res.FallbackUsed),
			attribute.Bool("tts.failed", res.TTSError != ""),
		)
	}
	p.record(ctx, ev)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) runTurn(ctx context.Context, req TurnRequest, answer AnswerFunc) (*TurnResult, error) {
	if answer == nil {
		return nil, errors.New("pipeline: answer func is nil")
	}

	buf, err := p.normalizer.Normalize(ctx, req.Audio, req.SourceName)
	if err != nil {
		return nil, err
	}
	pcm := p.trimmer.Trim(ctx, buf.Data)
	wav := audio.EncodeWAV(pcm, buf.SampleRate, 1, audio.CanonicalWidth)

	res := &TurnResult{}

	t := time.Now()
	tr, err := p.router.Transcribe(ctx, wav, pcm)
	res.Latency.STT = time.Since(t).Milliseconds()
	res.Backend = tr.Backend
	res.FallbackUsed = tr.FallbackUsed
	if err != nil {
		return res, err
	}
	res.STTText = strings.TrimSpace(tr.Text)

	t = time.Now()
	text, err := answer(ctx, res.STTText)
	res.Latency.Answer = time.Since(t).Milliseconds()
	if p.metrics != nil {
		p.metrics.AnswerDuration.Record(ctx, time.Since(t).Seconds())
	}
	if err != nil {
		return res, fmt.Errorf("pipeline: answer: %w", err)
	}
	res.AnswerText = text

	if !req.IncludeAudio {
		return res, nil
	}

	t = time.Now()
	out, err := p.synth.Synthesize(ctx, text)
	res.Latency.TTS = time.Since(t).Milliseconds()
	if err != nil {
		res.TTSError = err.Error()
		if p.metrics != nil {
			p.metrics.TTSFailures.Add(ctx, 1)
		}
		observe.Logger(ctx).Warn("tts failed, returning text only", "err", err)
		return res, nil
	}
	res.Audio = out
	return res, nil
}

// Synthesize renders text as a canonical WAVE file. It backs the standalone
// TTS endpoint and, unlike a turn, returns synthesis errors.
func (p *Pipeline) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return p.synth.Synthesize(ctx, text)
}

func (p *Pipeline) record(ctx context.Context, ev TurnEvent) {
	if p.metrics != nil {
		p.metrics.TurnDuration.Record(ctx, ev.Duration.Seconds(),
			metric.WithAttributes(observe.Attr("outcome", ev.Outcome())))
	}
	p.telemetry.RecordTurn(ctx, ev)
}
