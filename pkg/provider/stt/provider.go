// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider transcribes one complete, already-endpointed utterance per call.
// Backends come in two flavours: local engines, which consume the raw
// canonical PCM, and cloud engines, which are sent the same audio wrapped in a
// WAVE container. Both receive the full [Audio] value and pick the
// representation they need.
//
// Failures are reported as *[Error] values carrying an [ErrorKind] so callers
// can decide on fallback without string matching.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Audio is a single utterance ready for transcription.
type Audio struct {
	// PCM is mono 16-bit signed little-endian audio at SampleRate.
	PCM []byte

	// WAV is PCM wrapped in a RIFF/WAVE container.
	WAV []byte

	// SampleRate is the PCM sample rate in Hz.
	SampleRate int
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe returns the text spoken in a. An utterance with no
	// recognisable speech yields an empty string and a nil error.
	Transcribe(ctx context.Context, a Audio) (string, error)
}

// ErrorKind classifies a transcription failure.
type ErrorKind int

const (
	// KindBackend is a failure reported by the engine itself (5xx, inference
	// error, malformed response).
	KindBackend ErrorKind = iota

	// KindTransport is a network-level failure reaching the engine.
	KindTransport

	// KindAuth means the engine rejected the configured credentials.
	KindAuth

	// KindInvalidInput means the engine rejected the audio payload.
	KindInvalidInput

	// KindUnavailable means the engine is not usable at all, typically because
	// it failed to initialise.
	KindUnavailable
)

// String returns the lower-case name of k.
func (k ErrorKind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrUnavailable matches, via [errors.Is], any *Error of kind KindUnavailable.
var ErrUnavailable = errors.New("stt: engine unavailable")

// Error is a classified transcription failure.
type Error struct {
	// Provider names the engine that failed (e.g. "deepgram").
	Provider string

	// Kind classifies the failure.
	Kind ErrorKind

	// Err is the underlying cause.
	Err error
}

// NewError returns an *Error for provider.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("stt: %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is [ErrUnavailable] and e is of that kind.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable && e.Kind == KindUnavailable
}

// KindOf returns the kind of the first *Error in err's chain, or KindBackend
// when err carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

// KindFromStatus maps an HTTP status code returned by an engine to an
// ErrorKind.
func KindFromStatus(code int) ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
		return KindAuth
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return KindInvalidInput
	}
	return KindBackend
}
