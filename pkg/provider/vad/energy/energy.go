// Package energy provides a frame-energy voice activity detector.
//
// Each frame's root-mean-square level is compared against a fixed threshold
// in dBFS chosen by the configured aggressiveness: level 0 accepts quiet
// frames as speech, level 3 requires a clearly voiced signal. The engine has
// no model files and no per-stream state beyond the frame size.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/natuvoice/pkg/provider/vad"
)

// Thresholds maps aggressiveness 0–3 to the minimum frame level, in dBFS,
// classified as speech.
var Thresholds = [vad.MaxAggressiveness + 1]float64{-55, -48, -42, -36}

// silenceFloor is reported as the level of an all-zero frame.
const silenceFloor = -120.0

// Compile-time assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Engine is a stateless vad.Engine. The zero value is ready to use.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine { return &Engine{} }

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %d ms", cfg.FrameSizeMs)
	}
	frameBytes := cfg.FrameBytes()
	if frameBytes == 0 {
		return nil, fmt.Errorf("energy: %d ms at %d Hz gives an empty frame", cfg.FrameSizeMs, cfg.SampleRate)
	}
	return &session{
		frameBytes: frameBytes,
		threshold:  Thresholds[cfg.ClampedAggressiveness()],
	}, nil
}

type session struct {
	frameBytes int
	threshold  float64
	closed     bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, fmt.Errorf("energy: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	level := LevelDBFS(frame)
	return vad.Event{Speech: level >= s.threshold, Level: level}, nil
}

func (s *session) Reset() {}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// LevelDBFS returns the RMS level of 16-bit signed little-endian PCM relative
// to full scale. Silent or empty input reports -120 dBFS.
func LevelDBFS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return silenceFloor
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	if rms == 0 {
		return silenceFloor
	}
	return max(20*math.Log10(rms/32768), silenceFloor)
}
