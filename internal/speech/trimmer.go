package speech

import (
	"context"
	"fmt"

	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/pkg/provider/vad"
)

// VADConfig controls silence trimming. It is resolved once at startup and
// never changed afterwards.
type VADConfig struct {
	// Enabled turns trimming on. When false, [Trimmer.Trim] is the identity.
	Enabled bool

	// Aggressiveness is the VAD sensitivity, 0 (permissive) to 3 (strict).
	Aggressiveness int

	// FrameMs is the classification frame length in milliseconds.
	FrameMs int

	// EndSilenceMs is how much trailing silence is kept after the last
	// speech frame before the rest of the clip is cut.
	EndSilenceMs int

	// SampleRate must match the rate of the PCM passed to Trim.
	SampleRate int
}

// Normalized returns a copy of c with Aggressiveness clamped to [0, 3].
func (c VADConfig) Normalized() VADConfig {
	c.Aggressiveness = min(max(c.Aggressiveness, 0), vad.MaxAggressiveness)
	return c
}

// SilenceLimit returns the number of consecutive trailing silence frames
// after which trimming stops. It is never below one.
func (c VADConfig) SilenceLimit() int {
	if c.FrameMs <= 0 {
		return 1
	}
	return max(1, c.EndSilenceMs/c.FrameMs)
}

func (c VADConfig) session() vad.Config {
	return vad.Config{
		SampleRate:     c.SampleRate,
		FrameSizeMs:    c.FrameMs,
		Aggressiveness: c.Aggressiveness,
	}
}

type trimState int

const (
	notStarted trimState = iota
	speaking
	trailingSilence
)

// Trimmer cuts leading silence and over-long trailing silence from
// canonical PCM using a frame-level VAD engine.
type Trimmer struct {
	cfg    VADConfig
	engine vad.Engine
}

// NewTrimmer validates cfg and returns a Trimmer backed by engine. A
// disabled config needs no engine.
func NewTrimmer(cfg VADConfig, engine vad.Engine) (*Trimmer, error) {
	cfg = cfg.Normalized()
	if !cfg.Enabled {
		return &Trimmer{cfg: cfg}, nil
	}
	if engine == nil {
		return nil, fmt.Errorf("speech: trimmer: vad engine is nil")
	}
	if cfg.SampleRate <= 0 || cfg.FrameMs <= 0 {
		return nil, fmt.Errorf("speech: trimmer: invalid frame geometry (rate=%d frame_ms=%d)", cfg.SampleRate, cfg.FrameMs)
	}
	if cfg.session().FrameBytes() == 0 {
		return nil, fmt.Errorf("speech: trimmer: %d ms frames at %d Hz hold no samples", cfg.FrameMs, cfg.SampleRate)
	}
	return &Trimmer{cfg: cfg, engine: engine}, nil
}

// Config returns the normalized configuration.
func (t *Trimmer) Config() VADConfig { return t.cfg }

// Trim returns the speech portion of pcm: frames before the first speech
// frame are dropped, and processing stops once SilenceLimit consecutive
// silence frames follow speech. A trailing partial frame is dropped.
//
// Trim fails open. When trimming is disabled, when no speech is found or
// when the VAD engine errors, pcm is returned unchanged. The result is
// therefore never empty for non-empty input.
func (t *Trimmer) Trim(ctx context.Context, pcm []byte) []byte {
	if !t.cfg.Enabled || len(pcm) == 0 {
		return pcm
	}

	sessCfg := t.cfg.session()
	frameBytes := sessCfg.FrameBytes()
	sess, err := t.engine.NewSession(sessCfg)
	if err != nil {
		observe.Logger(ctx).Warn("vad session failed, keeping untrimmed audio", "err", err)
		return pcm
	}
	defer sess.Close()

	limit := t.cfg.SilenceLimit()
	out := make([]byte, 0, len(pcm))
	state := notStarted
	silence := 0

frames:
	for off := 0; off+frameBytes <= len(pcm); off += frameBytes {
		frame := pcm[off : off+frameBytes]
		ev, err := sess.ProcessFrame(frame)
		if err != nil {
			observe.Logger(ctx).Warn("vad classification failed, keeping untrimmed audio", "err", err)
			return pcm
		}

		switch state {
		case notStarted:
			if !ev.Speech {
				continue
			}
			state = speaking
			out = append(out, frame...)
		case speaking:
			out = append(out, frame...)
			if !ev.Speech {
				state = trailingSilence
				silence = 1
				if silence >= limit {
					break frames
				}
			}
		case trailingSilence:
			out = append(out, frame...)
			if ev.Speech {
				state = speaking
				silence = 0
				continue
			}
			silence++
			if silence >= limit {
				break frames
			}
		}
	}

	if state == notStarted || len(out) == 0 {
		return pcm
	}
	return out
}
