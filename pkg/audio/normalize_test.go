package audio_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/audio"
)

// fakeDecoder returns a fixed WAV payload or error and records its inputs.
type fakeDecoder struct {
	wav       []byte
	err       error
	gotName   string
	gotRate   int
	callCount int
}

func (d *fakeDecoder) Decode(_ context.Context, _ []byte, sourceName string, sampleRate int) ([]byte, error) {
	d.callCount++
	d.gotName = sourceName
	d.gotRate = sampleRate
	return d.wav, d.err
}

func TestNewNormalizer_InvalidRate(t *testing.T) {
	if _, err := audio.NewNormalizer(0); err == nil {
		t.Fatal("expected error for zero target rate")
	}
}

func TestNormalize_WAVSkipsDecoder(t *testing.T) {
	dec := &fakeDecoder{err: errors.New("must not be called")}
	n, err := audio.NewNormalizer(16000, audio.WithDecoder(dec))
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	wav := audio.EncodeWAV(audio.FromFloat(interleave(sine(4800, 48000, 440, 0.5), 2), 2), 48000, 2, 2)
	buf, err := n.Normalize(context.Background(), wav, "upload.wav")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if dec.callCount != 0 {
		t.Errorf("decoder called %d times, want 0", dec.callCount)
	}
	if !buf.IsCanonical(16000) || buf.Frames() != 1600 {
		t.Errorf("channels=%d rate=%d frames=%d", buf.Channels, buf.SampleRate, buf.Frames())
	}
}

func TestNormalize_NonWAVUsesDecoder(t *testing.T) {
	dec := &fakeDecoder{wav: audio.EncodeWAV(samplesToBytes([]int16{100, 200, 300}), 16000, 1, 2)}
	n, _ := audio.NewNormalizer(16000, audio.WithDecoder(dec))

	buf, err := n.Normalize(context.Background(), []byte("OggS....opus payload"), "clip.ogg")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if dec.callCount != 1 || dec.gotName != "clip.ogg" || dec.gotRate != 16000 {
		t.Errorf("decoder saw name=%q rate=%d calls=%d", dec.gotName, dec.gotRate, dec.callCount)
	}
	got := bytesToSamples(buf.Data)
	if len(got) != 3 || got[0] != 100 || got[2] != 300 {
		t.Errorf("samples = %v", got)
	}
}

func TestNormalize_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		dec  audio.Decoder
		in   []byte
	}{
		{"empty input", &fakeDecoder{}, nil},
		{"no decoder", nil, []byte("not a wave file")},
		{"decoder fails", &fakeDecoder{err: errors.New("boom")}, []byte("garbage")},
		{"decoder returns junk", &fakeDecoder{wav: []byte("still not wav")}, []byte("garbage")},
		{"corrupt wav", &fakeDecoder{}, []byte("RIFF\x04\x00\x00\x00WAVE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, _ := audio.NewNormalizer(16000, audio.WithDecoder(tt.dec))
			_, err := n.Normalize(context.Background(), tt.in, "x.bin")
			var de *audio.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *audio.DecodeError, got %T: %v", err, err)
			}
			if de.Source != "x.bin" {
				t.Errorf("Source = %q, want x.bin", de.Source)
			}
		})
	}
}

// writeFakeFFmpeg installs a shell script that prints to stderr and exits 1.
func writeFakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script decoder not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func TestFFmpegDecoder_FailureLeavesNoTempFiles(t *testing.T) {
	tmp := t.TempDir()
	dec := audio.NewFFmpegDecoder(audio.WithBinary(writeFakeFFmpeg(t)), audio.WithTempDir(tmp))
	n, _ := audio.NewNormalizer(16000, audio.WithDecoder(dec))

	_, err := n.Normalize(context.Background(), []byte{0xde, 0xad, 0xbe, 0xef}, "broken.webm")
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *audio.DecodeError, got %T: %v", err, err)
	}
	if de.Source != "broken.webm" {
		t.Errorf("Source = %q", de.Source)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not empty: %d entries left", len(entries))
	}
}

func TestFFmpegDecoder_RealBinary(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	tmp := t.TempDir()
	dec := audio.NewFFmpegDecoder(audio.WithTempDir(tmp))

	t.Run("corrupt payload", func(t *testing.T) {
		_, err := dec.Decode(context.Background(), []byte("this is not audio at all"), "clip.mp3", 16000)
		var de *audio.DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("expected *audio.DecodeError, got %T: %v", err, err)
		}
	})

	t.Run("wav input", func(t *testing.T) {
		src := audio.EncodeWAV(audio.FromFloat(sine(44100, 44100, 440, 0.5), 2), 44100, 1, 2)
		out, err := dec.Decode(context.Background(), src, "clip.wav", 16000)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		buf, err := audio.ParseWAV(out)
		if err != nil {
			t.Fatalf("ParseWAV: %v", err)
		}
		if buf.SampleRate != 16000 || buf.Channels != 1 {
			t.Errorf("format = %+v", buf)
		}
	})

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Errorf("temp dir not empty: %d entries left", len(entries))
	}
}
