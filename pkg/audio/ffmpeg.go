package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultFFmpegBinary = "ffmpeg"

// FFmpegDecoder decodes arbitrary containers by shelling out to ffmpeg.
// Input and output go through temporary files which are removed on every
// return path.
type FFmpegDecoder struct {
	binary  string
	tempDir string
}

// FFmpegOption configures an [FFmpegDecoder].
type FFmpegOption func(*FFmpegDecoder)

// WithBinary sets the ffmpeg executable (name on PATH or absolute path).
func WithBinary(path string) FFmpegOption {
	return func(d *FFmpegDecoder) {
		if path != "" {
			d.binary = path
		}
	}
}

// WithTempDir sets the directory for intermediate files. Defaults to
// [os.TempDir].
func WithTempDir(dir string) FFmpegOption {
	return func(d *FFmpegDecoder) { d.tempDir = dir }
}

// NewFFmpegDecoder returns a decoder that invokes ffmpeg.
func NewFFmpegDecoder(opts ...FFmpegOption) *FFmpegDecoder {
	d := &FFmpegDecoder{binary: defaultFFmpegBinary}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Decode implements [Decoder]. The temporary input file keeps the extension
// of sourceName (".bin" when absent) so ffmpeg can use it as a format hint.
// A non-zero exit status is returned as *DecodeError carrying ffmpeg's
// stderr.
func (d *FFmpegDecoder) Decode(ctx context.Context, raw []byte, sourceName string, sampleRate int) ([]byte, error) {
	in, err := os.CreateTemp(d.tempDir, "natuvoice-in-*"+inputExt(sourceName))
	if err != nil {
		return nil, fmt.Errorf("audio: create temp input: %w", err)
	}
	defer os.Remove(in.Name())

	_, werr := in.Write(raw)
	cerr := in.Close()
	if werr != nil {
		return nil, fmt.Errorf("audio: write temp input: %w", werr)
	}
	if cerr != nil {
		return nil, fmt.Errorf("audio: close temp input: %w", cerr)
	}

	out, err := os.CreateTemp(d.tempDir, "natuvoice-out-*.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: create temp output: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in.Name(),
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "wav",
		outPath,
	}
	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("audio: ffmpeg cancelled: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("ffmpeg: %w: %s", err, msg)
		} else {
			err = fmt.Errorf("ffmpeg: %w", err)
		}
		return nil, &DecodeError{Source: sourceName, Err: err}
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("audio: read ffmpeg output: %w", err)
	}
	return wav, nil
}

// inputExt returns a safe file extension derived from name.
func inputExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ".bin"
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ".bin"
		}
	}
	return ext
}
