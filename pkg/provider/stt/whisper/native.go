//go:build whispercpp

// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// NativeAvailable reports whether this binary links whisper.cpp.
const NativeAvailable = true

// NativeProvider implements stt.Provider using whisper.cpp Go bindings. The
// model is loaded once and shared; every call gets its own inference context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NewNative loads the ggml model at modelPath.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	cfg := nativeConfig{language: defaultLanguage}
	for _, o := range opts {
		o(&cfg)
	}
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{model: model, language: cfg.language}, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe runs whisper.cpp inference on a.PCM. whisper.cpp expects 16 kHz
// input, so other rates are resampled first.
func (p *NativeProvider) Transcribe(ctx context.Context, a stt.Audio) (string, error) {
	if len(a.PCM) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pcm := audio.ToFloat(audio.Buffer{Data: a.PCM, SampleRate: a.SampleRate, SampleWidth: audio.CanonicalWidth, Channels: 1})
	pcm = audio.Resample(pcm, a.SampleRate, whisperlib.SampleRate)
	samples := make([]float32, len(pcm))
	for i, v := range pcm {
		samples[i] = float32(v)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", stt.NewError(nativeName, stt.KindBackend, fmt.Errorf("create context: %w", err))
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", stt.NewError(nativeName, stt.KindBackend, fmt.Errorf("process audio: %w", err))
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", stt.NewError(nativeName, stt.KindBackend, fmt.Errorf("read segment: %w", err))
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
