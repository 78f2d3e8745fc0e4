package audio

import (
	"context"
	"errors"
	"fmt"
)

// DecodeError reports audio that could not be turned into canonical PCM:
// an unrecognised or corrupt container, or a failing external decoder.
// It is a client-input error and is never retried.
type DecodeError struct {
	// Source is the client-supplied file name, if any.
	Source string

	// Err is the underlying cause.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("audio: decode: %v", e.Err)
	}
	return fmt.Sprintf("audio: decode %q: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder turns an arbitrary audio container into a mono WAVE file at the
// requested sample rate.
type Decoder interface {
	Decode(ctx context.Context, raw []byte, sourceName string, sampleRate int) ([]byte, error)
}

// Normalizer converts uploaded clips into canonical PCM at a fixed target
// sample rate. It is safe for concurrent use.
type Normalizer struct {
	targetRate int
	decoder    Decoder
}

// NormalizerOption configures a [Normalizer].
type NormalizerOption func(*Normalizer)

// WithDecoder sets the decoder used for non-WAVE input. Passing nil disables
// non-WAVE input altogether.
func WithDecoder(d Decoder) NormalizerOption {
	return func(n *Normalizer) { n.decoder = d }
}

// NewNormalizer returns a Normalizer targeting targetRate Hz. Unless
// overridden with [WithDecoder], non-WAVE input is decoded by ffmpeg found
// on PATH.
func NewNormalizer(targetRate int, opts ...NormalizerOption) (*Normalizer, error) {
	if targetRate <= 0 {
		return nil, fmt.Errorf("audio: target rate must be positive, got %d", targetRate)
	}
	n := &Normalizer{
		targetRate: targetRate,
		decoder:    NewFFmpegDecoder(),
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// TargetRate returns the canonical sample rate in Hz.
func (n *Normalizer) TargetRate() int { return n.targetRate }

// Normalize decodes raw and returns mono 16-bit PCM at the target rate.
// WAVE input is parsed in-process; everything else goes through the
// configured Decoder. All failures are reported as *DecodeError.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, sourceName string) (Buffer, error) {
	if len(raw) == 0 {
		return Buffer{}, &DecodeError{Source: sourceName, Err: errors.New("empty input")}
	}

	wav := raw
	if !IsWAV(raw) {
		if n.decoder == nil {
			return Buffer{}, &DecodeError{Source: sourceName, Err: errors.New("not a WAVE file and no decoder configured")}
		}
		out, err := n.decoder.Decode(ctx, raw, sourceName, n.targetRate)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				return Buffer{}, err
			}
			if ctx.Err() != nil {
				return Buffer{}, err
			}
			return Buffer{}, &DecodeError{Source: sourceName, Err: err}
		}
		wav = out
	}

	buf, err := ParseWAV(wav)
	if err != nil {
		return Buffer{}, &DecodeError{Source: sourceName, Err: err}
	}
	canon, err := Canonicalize(buf, n.targetRate)
	if err != nil {
		return Buffer{}, &DecodeError{Source: sourceName, Err: err}
	}
	return canon, nil
}
