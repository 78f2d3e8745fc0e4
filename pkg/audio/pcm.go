package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// ToFloat converts the samples in b to float64 values in [-1.0, 1.0].
// Width 1 is unsigned (offset 128), widths 2–4 are signed two's complement
// and width 3 is sign-extended from a packed 24-bit triplet. Float buffers
// are read as IEEE-754 float32. A trailing partial sample is ignored.
// Channels stay interleaved; see [Downmix].
func ToFloat(b Buffer) []float64 {
	w := b.SampleWidth
	if w <= 0 {
		return nil
	}
	n := len(b.Data) / w
	out := make([]float64, n)
	for i := range n {
		s := b.Data[i*w : i*w+w]
		switch {
		case b.Float:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(s)))
		case w == 1:
			out[i] = (float64(s[0]) - 128) / 128
		case w == 2:
			out[i] = float64(int16(binary.LittleEndian.Uint16(s))) / 32768
		case w == 3:
			v := int32(s[0]) | int32(s[1])<<8 | int32(s[2])<<16
			if v&0x800000 != 0 {
				v -= 1 << 24
			}
			out[i] = float64(v) / 8388608
		case w == 4:
			out[i] = float64(int32(binary.LittleEndian.Uint32(s))) / 2147483648
		}
	}
	return out
}

// FromFloat encodes float samples as little-endian integer PCM of the given
// width, clipping to [-1.0, 1.0] first. It is the inverse of [ToFloat]
// within one quantisation step. Unsupported widths return nil.
func FromFloat(samples []float64, width int) []byte {
	if width < 1 || width > 4 {
		return nil
	}
	out := make([]byte, len(samples)*width)
	for i, v := range samples {
		v = clip(v)
		d := out[i*width:]
		switch width {
		case 1:
			d[0] = byte(int(math.Round(v*127)) + 128)
		case 2:
			binary.LittleEndian.PutUint16(d, uint16(int16(math.Round(v*32767))))
		case 3:
			q := int32(math.Round(v * 8388607))
			d[0] = byte(q)
			d[1] = byte(q >> 8)
			d[2] = byte(q >> 16)
		case 4:
			binary.LittleEndian.PutUint32(d, uint32(int32(math.Round(v*2147483647))))
		}
	}
	return out
}

// Quantize16 converts float samples to 16-bit signed PCM by clipping to
// [-1.0, 1.0] and scaling by 32767.
func Quantize16(samples []float64) []byte {
	return FromFloat(samples, CanonicalWidth)
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Downmix averages interleaved channels into a mono signal. Samples past the
// last complete frame are truncated. With one channel the input is returned
// as is.
func Downmix(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}

// Resample converts a mono float signal from srcRate to dstRate by linear
// interpolation over a normalised time axis. The output holds
// round(len*dstRate/srcRate) samples spread evenly across the source span.
// If the rates are equal the input is returned unchanged.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 || srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	dstLen := int(math.Round(float64(len(samples)) * float64(dstRate) / float64(srcRate)))
	if dstLen <= 0 {
		return nil
	}
	out := make([]float64, dstLen)
	if dstLen == 1 || len(samples) == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}

	last := len(samples) - 1
	step := float64(last) / float64(dstLen-1)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = samples[j] + (samples[j+1]-samples[j])*frac
	}
	return out
}

// Canonicalize converts b to mono 16-bit signed PCM at targetRate: float
// conversion, channel downmix, linear resampling and quantisation. A buffer
// that is already canonical is copied without passing through the float
// domain.
func Canonicalize(b Buffer, targetRate int) (Buffer, error) {
	if targetRate <= 0 {
		return Buffer{}, fmt.Errorf("audio: invalid target rate %d", targetRate)
	}
	if err := b.checkFormat(); err != nil {
		return Buffer{}, err
	}
	if b.IsCanonical(targetRate) {
		data := bytes.Clone(b.Data)
		data = data[:len(data)-len(data)%CanonicalWidth]
		return Buffer{Data: data, SampleRate: targetRate, SampleWidth: CanonicalWidth, Channels: 1}, nil
	}

	samples := ToFloat(b)
	samples = Downmix(samples, b.Channels)
	samples = Resample(samples, b.SampleRate, targetRate)
	return Buffer{
		Data:        Quantize16(samples),
		SampleRate:  targetRate,
		SampleWidth: CanonicalWidth,
		Channels:    1,
	}, nil
}
