// Package audio converts uploaded audio clips into the canonical PCM format
// used by the voice pipeline: mono, 16-bit signed little-endian samples at a
// fixed target sample rate.
//
// WAVE input is parsed natively. Anything else is handed to a [Decoder]
// (by default [FFmpegDecoder]) that produces a WAVE file first. All numeric
// conversion happens in a float64 domain normalised to [-1.0, 1.0].
package audio

import (
	"fmt"
	"time"
)

// CanonicalWidth is the sample width, in bytes, of canonical PCM.
const CanonicalWidth = 2

// Buffer holds raw interleaved PCM samples together with their format.
// Every conversion step returns a new Buffer; callers never share Data.
type Buffer struct {
	// Data is the raw interleaved little-endian sample data.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// SampleWidth is the number of bytes per sample (1, 2, 3 or 4).
	SampleWidth int

	// Channels is the number of interleaved channels.
	Channels int

	// Float reports whether samples are IEEE-754 float32 rather than integer
	// PCM. Only valid with SampleWidth 4.
	Float bool
}

// checkFormat reports whether the descriptive fields of b are usable,
// ignoring Data.
func (b Buffer) checkFormat() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", b.SampleRate)
	}
	if b.Channels <= 0 {
		return fmt.Errorf("audio: invalid channel count %d", b.Channels)
	}
	switch b.SampleWidth {
	case 1, 2, 3, 4:
	default:
		return fmt.Errorf("audio: unsupported sample width %d", b.SampleWidth)
	}
	if b.Float && b.SampleWidth != 4 {
		return fmt.Errorf("audio: float samples require width 4, got %d", b.SampleWidth)
	}
	return nil
}

// Validate checks the format fields and that Data holds a whole number of
// frames.
func (b Buffer) Validate() error {
	if err := b.checkFormat(); err != nil {
		return err
	}
	if frame := b.SampleWidth * b.Channels; len(b.Data)%frame != 0 {
		return fmt.Errorf("audio: %d bytes is not a multiple of the %d-byte frame size", len(b.Data), frame)
	}
	return nil
}

// Frames returns the number of complete frames in b.
func (b Buffer) Frames() int {
	frame := b.SampleWidth * b.Channels
	if frame <= 0 {
		return 0
	}
	return len(b.Data) / frame
}

// Duration returns the playback length of b.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// IsCanonical reports whether b is already mono 16-bit integer PCM at rate.
func (b Buffer) IsCanonical(rate int) bool {
	return b.SampleRate == rate && b.Channels == 1 && b.SampleWidth == CanonicalWidth && !b.Float
}
