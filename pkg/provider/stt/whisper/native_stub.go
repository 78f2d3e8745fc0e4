//go:build !whispercpp

package whisper

import (
	"context"

	"github.com/MrWong99/natuvoice/pkg/provider/stt"
)

// NativeAvailable reports whether this binary links whisper.cpp.
const NativeAvailable = false

// NativeProvider is a placeholder in builds without the "whispercpp" tag.
type NativeProvider struct{}

// NewNative always fails with ErrNativeUnavailable in this build.
func NewNative(string, ...NativeOption) (*NativeProvider, error) {
	return nil, ErrNativeUnavailable
}

// Close is a no-op.
func (p *NativeProvider) Close() error { return nil }

// Transcribe always fails with a KindUnavailable error.
func (p *NativeProvider) Transcribe(context.Context, stt.Audio) (string, error) {
	return "", stt.NewError(nativeName, stt.KindUnavailable, ErrNativeUnavailable)
}
