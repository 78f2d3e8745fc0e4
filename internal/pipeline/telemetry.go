package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/natuvoice/internal/observe"
)

// TurnEvent summarizes one turn, successful or not.
type TurnEvent struct {
	// Result holds whatever the turn produced before it ended. On failure
	// it may be partially filled.
	Result TurnResult

	Duration time.Duration

	// Err is the turn failure, nil on success.
	Err error
}

// Outcome returns "ok" or "error".
func (e TurnEvent) Outcome() string {
	if e.Err != nil {
		return "error"
	}
	return "ok"
}

// Telemetry receives one event per turn.
type Telemetry interface {
	RecordTurn(ctx context.Context, ev TurnEvent)
}

// TelemetryFunc adapts a function to [Telemetry].
type TelemetryFunc func(ctx context.Context, ev TurnEvent)

// RecordTurn calls f.
func (f TelemetryFunc) RecordTurn(ctx context.Context, ev TurnEvent) { f(ctx, ev) }

// LogTelemetry writes each turn as one "voice_turn" log record.
type LogTelemetry struct{}

var _ Telemetry = LogTelemetry{}

// RecordTurn implements [Telemetry].
func (LogTelemetry) RecordTurn(ctx context.Context, ev TurnEvent) {
	r := ev.Result
	attrs := []slog.Attr{
		slog.String("outcome", ev.Outcome()),
		slog.String("backend", string(r.Backend)),
		slog.Bool("fallback", r.FallbackUsed),
		slog.Int64("stt_ms", r.Latency.STT),
		slog.Int64("answer_ms", r.Latency.Answer),
		slog.Int64("tts_ms", r.Latency.TTS),
		slog.Int64("total_ms", ev.Duration.Milliseconds()),
	}
	if r.TTSError != "" {
		attrs = append(attrs, slog.String("tts_error", r.TTSError))
	}
	level := slog.LevelInfo
	if ev.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", ev.Err.Error()))
	}
	observe.Logger(ctx).LogAttrs(ctx, level, "voice_turn", attrs...)
}
