// Package vad defines the Engine interface for frame-level voice activity
// detection.
//
// An Engine is a factory for sessions. A session classifies fixed-size frames
// of mono 16-bit little-endian PCM as speech or silence and may keep
// per-stream state, so each audio stream gets its own session. Engines must
// be safe for concurrent use; a SessionHandle is not.
package vad

// MaxAggressiveness is the strictest supported sensitivity level.
const MaxAggressiveness = 3

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns an error for frames of any other size.
	FrameSizeMs int

	// Aggressiveness selects the detection sensitivity, from 0 (permissive,
	// more frames count as speech) to [MaxAggressiveness] (strict).
	// Out-of-range values are clamped.
	Aggressiveness int
}

// ClampedAggressiveness returns Aggressiveness limited to [0, MaxAggressiveness].
func (c Config) ClampedAggressiveness() int {
	return min(max(c.Aggressiveness, 0), MaxAggressiveness)
}

// FrameBytes returns the size in bytes of one 16-bit mono frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// Event is the classification result for a single frame.
type Event struct {
	// Speech reports whether the frame contains voice activity.
	Speech bool

	// Level is the engine-specific score the decision was made on (for the
	// energy engine, frame RMS in dBFS).
	Level float64
}

// SessionHandle classifies the frames of a single audio stream.
type SessionHandle interface {
	// ProcessFrame classifies one frame of raw little-endian PCM at the
	// configured SampleRate and FrameSizeMs.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine creates VAD sessions.
type Engine interface {
	// NewSession returns a session for cfg, or an error if the engine cannot
	// handle the requested sample rate or frame size.
	NewSession(cfg Config) (SessionHandle, error)
}
