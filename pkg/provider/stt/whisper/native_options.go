package whisper

import (
	"errors"

	"github.com/MrWong99/natuvoice/pkg/provider/stt"
)

const nativeName = "whisper-native"

// ErrNativeUnavailable is returned by NewNative when the binary was built
// without the "whispercpp" tag.
var ErrNativeUnavailable = errors.New("whisper: native backend not compiled in (build with -tags whispercpp)")

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

type nativeConfig struct {
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*nativeConfig)

// WithNativeLanguage sets the language code for transcription (e.g., "es").
// Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(c *nativeConfig) {
		if lang != "" {
			c.language = lang
		}
	}
}
