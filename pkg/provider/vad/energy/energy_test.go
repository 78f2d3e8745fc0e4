package energy_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/provider/vad"
	"github.com/MrWong99/natuvoice/pkg/provider/vad/energy"
)

// tone returns n samples of a 440 Hz sine at the given peak amplitude (0–1).
func tone(n int, amp float64) []byte {
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(amp * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func newSession(t *testing.T, aggressiveness int) vad.SessionHandle {
	t.Helper()
	s, err := energy.New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: aggressiveness})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSession_InvalidConfig(t *testing.T) {
	tests := []vad.Config{
		{SampleRate: 0, FrameSizeMs: 30},
		{SampleRate: 16000, FrameSizeMs: 0},
		{SampleRate: 10, FrameSizeMs: 10},
	}
	for _, cfg := range tests {
		if _, err := energy.New().NewSession(cfg); err == nil {
			t.Errorf("NewSession(%+v): expected error", cfg)
		}
	}
}

func TestProcessFrame_SpeechAndSilence(t *testing.T) {
	s := newSession(t, 2)

	ev, err := s.ProcessFrame(tone(480, 0.5))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !ev.Speech {
		t.Errorf("loud tone classified as silence (level %.1f dBFS)", ev.Level)
	}

	ev, err = s.ProcessFrame(make([]byte, 960))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Speech {
		t.Error("digital silence classified as speech")
	}
	if ev.Level != -120 {
		t.Errorf("silence level = %v, want -120", ev.Level)
	}
}

func TestProcessFrame_AggressivenessOrdering(t *testing.T) {
	// A faint tone around -45 dBFS: speech for permissive levels only.
	frame := tone(480, 0.008)
	want := []bool{true, true, false, false}
	for level, w := range want {
		ev, err := newSession(t, level).ProcessFrame(frame)
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if ev.Speech != w {
			t.Errorf("aggressiveness %d: speech = %v, want %v (level %.1f dBFS)", level, ev.Speech, w, ev.Level)
		}
	}
}

func TestProcessFrame_ClampsAggressiveness(t *testing.T) {
	frame := tone(480, 0.008)
	hi, _ := newSession(t, 99).ProcessFrame(frame)
	lo, _ := newSession(t, -5).ProcessFrame(frame)
	if hi.Speech || !lo.Speech {
		t.Errorf("clamped results: strict=%v permissive=%v", hi.Speech, lo.Speech)
	}
}

func TestProcessFrame_WrongSize(t *testing.T) {
	if _, err := newSession(t, 2).ProcessFrame(make([]byte, 10)); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestProcessFrame_AfterClose(t *testing.T) {
	s := newSession(t, 2)
	_ = s.Close()
	if _, err := s.ProcessFrame(make([]byte, 960)); err == nil {
		t.Error("expected error after Close")
	}
}
