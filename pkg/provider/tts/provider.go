// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and turns one bounded piece of text into one WAVE file at the
// engine's native format. Splitting long answers into chunks, resampling and
// concatenation are the caller's job.
//
// When a provider rejects the requested voice it reports a
// *VoiceUnsupportedError naming the voices it does accept, so callers can pick
// a replacement without parsing error strings.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns a complete RIFF/WAVE
	// file. An empty voice selects the engine's default.
	//
	// Returns *VoiceUnsupportedError when the engine does not know voice.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	// ListVoices returns the identifiers accepted as the voice argument of
	// Synthesize, sorted.
	ListVoices(ctx context.Context) ([]string, error)
}

// VoiceUnsupportedError reports that an engine rejected a voice identifier.
type VoiceUnsupportedError struct {
	// Voice is the rejected identifier.
	Voice string

	// Supported lists the identifiers the engine accepts. May be empty when
	// the catalogue could not be retrieved.
	Supported []string
}

func (e *VoiceUnsupportedError) Error() string {
	if len(e.Supported) == 0 {
		return fmt.Sprintf("tts: voice %q not supported", e.Voice)
	}
	return fmt.Sprintf("tts: voice %q not supported (supported: %s)", e.Voice, strings.Join(e.Supported, ", "))
}

// ErrUnavailable is returned by [Unavailable] when no reason was recorded.
var ErrUnavailable = errors.New("tts: engine unavailable")

// Compile-time assertion that Unavailable satisfies Provider.
var _ Provider = (*Unavailable)(nil)

// Unavailable is a Provider that always fails. It stands in for an engine
// that could not be constructed.
type Unavailable struct {
	Name   string
	Reason error
}

// Synthesize always returns an error wrapping Reason.
func (u *Unavailable) Synthesize(context.Context, string, string) ([]byte, error) {
	reason := u.Reason
	if reason == nil {
		reason = ErrUnavailable
	}
	return nil, fmt.Errorf("tts: %s unavailable: %w", u.Name, reason)
}
