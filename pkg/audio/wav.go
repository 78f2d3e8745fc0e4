package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatFloat      = 0x0003
	wavFormatExtensible = 0xFFFE

	// wavHeaderSize is the size of the canonical header written by EncodeWAV.
	wavHeaderSize = 44
)

// errNotWAV is returned by ParseWAV when the RIFF/WAVE signature is missing.
var errNotWAV = errors.New("audio: not a RIFF/WAVE container")

// IsWAV reports whether b starts with the 12-byte RIFF/WAVE signature.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

// ParseWAV decodes a RIFF/WAVE container into a Buffer. It walks the chunk
// list (honouring the pad byte after odd-sized chunks), requires a "fmt "
// chunk before the "data" chunk and accepts integer PCM of width 1–4 bytes
// as well as 32-bit IEEE float. A data chunk whose declared size runs past
// the end of b is clamped to the bytes present, and trailing bytes that do
// not form a whole frame are dropped.
func ParseWAV(b []byte) (Buffer, error) {
	if !IsWAV(b) {
		return Buffer{}, errNotWAV
	}

	var (
		buf      Buffer
		haveFmt  bool
		fmtTag   uint16
		bitDepth int
	)

	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+size > len(b) {
				return Buffer{}, fmt.Errorf("audio: fmt chunk truncated (%d bytes)", size)
			}
			f := b[body : body+size]
			fmtTag = binary.LittleEndian.Uint16(f[0:2])
			buf.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			buf.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			bitDepth = int(binary.LittleEndian.Uint16(f[14:16]))
			if fmtTag == wavFormatExtensible {
				if size < 40 {
					return Buffer{}, errors.New("audio: extensible fmt chunk too short")
				}
				// The sub-format GUID starts with the plain format tag.
				fmtTag = binary.LittleEndian.Uint16(f[24:26])
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return Buffer{}, errors.New("audio: data chunk precedes fmt chunk")
			}
			switch fmtTag {
			case wavFormatPCM:
			case wavFormatFloat:
				if bitDepth != 32 {
					return Buffer{}, fmt.Errorf("audio: unsupported float bit depth %d", bitDepth)
				}
				buf.Float = true
			default:
				return Buffer{}, fmt.Errorf("audio: unsupported WAVE format tag 0x%04x", fmtTag)
			}
			if bitDepth%8 != 0 {
				return Buffer{}, fmt.Errorf("audio: unsupported bit depth %d", bitDepth)
			}
			buf.SampleWidth = bitDepth / 8
			if err := buf.checkFormat(); err != nil {
				return Buffer{}, err
			}

			end := body + size
			if end > len(b) || end < body {
				end = len(b)
			}
			data := b[body:end]
			frame := buf.SampleWidth * buf.Channels
			data = data[:len(data)-len(data)%frame]
			buf.Data = append([]byte(nil), data...)
			return buf, nil
		}

		next := body + size + size&1
		if next <= off || next > len(b) {
			break
		}
		off = next
	}

	if !haveFmt {
		return Buffer{}, errors.New("audio: missing fmt chunk")
	}
	return Buffer{}, errors.New("audio: missing data chunk")
}

// EncodeWAV wraps raw little-endian PCM in a canonical 44-byte RIFF/WAVE
// header with a single PCM "fmt " chunk and one "data" chunk.
func EncodeWAV(pcm []byte, sampleRate, channels, sampleWidth int) []byte {
	byteRate := sampleRate * channels * sampleWidth
	blockAlign := channels * sampleWidth
	dataSize := len(pcm)

	out := make([]byte, wavHeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(sampleWidth*8))

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[44:], pcm)

	return out
}

// EncodeBuffer is EncodeWAV for an integer PCM Buffer.
func EncodeBuffer(b Buffer) []byte {
	return EncodeWAV(b.Data, b.SampleRate, b.Channels, b.SampleWidth)
}
