package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/speech"
	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/natuvoice/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/natuvoice/pkg/provider/tts/mock"
	"github.com/MrWong99/natuvoice/pkg/provider/vad/energy"
)

const testRate = 16000

// utterance returns a WAVE file with 0.5 s silence, 0.5 s tone and 0.5 s
// silence.
func utterance() []byte {
	samples := make([]float64, 3*testRate/2)
	for i := testRate / 2; i < testRate; i++ {
		samples[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/testRate)
	}
	return audio.EncodeWAV(audio.Quantize16(samples), testRate, 1, 2)
}

func replyWAV() []byte {
	return audio.EncodeWAV(make([]byte, 3200), 22050, 1, 2)
}

type recorder struct {
	mu     sync.Mutex
	events []TurnEvent
}

func (r *recorder) RecordTurn(_ context.Context, ev TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) only(t *testing.T) TurnEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) != 1 {
		t.Fatalf("telemetry events = %d, want 1", len(r.events))
	}
	return r.events[0]
}

type failingDecoder struct{ calls int }

func (d *failingDecoder) Decode(context.Context, []byte, string, int) ([]byte, error) {
	d.calls++
	return nil, &audio.DecodeError{Source: "clip.webm", Err: errors.New("ffmpeg: exit status 1: Invalid data")}
}

type fixture struct {
	cloud, local *sttmock.Provider
	tts          *ttsmock.Provider
	telemetry    *recorder
	metrics      *observe.Metrics
	reader       *sdkmetric.ManualReader
	decoder      audio.Decoder
	mode         speech.Mode
}

func newFixture() *fixture {
	return &fixture{
		cloud:     &sttmock.Provider{Text: "hola desde la nube"},
		local:     &sttmock.Provider{Text: "¿dónde anidan los colibríes?"},
		tts:       &ttsmock.Provider{WAV: replyWAV()},
		telemetry: &recorder{},
		mode:      speech.ModeCloud,
	}
}

func (f *fixture) build(t *testing.T) *Pipeline {
	t.Helper()
	f.reader = sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	f.metrics = m

	norm, err := audio.NewNormalizer(testRate, audio.WithDecoder(f.decoder))
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	trim, err := speech.NewTrimmer(speech.VADConfig{
		Enabled:        true,
		Aggressiveness: 2,
		FrameMs:        30,
		EndSilenceMs:   300,
		SampleRate:     testRate,
	}, energy.New())
	if err != nil {
		t.Fatalf("NewTrimmer: %v", err)
	}
	router, err := speech.NewRouter(f.mode, f.cloud, f.local, speech.WithRouterMetrics(m))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	synth, err := speech.NewSynthesizer(f.tts, "p225", 700, testRate, speech.WithSynthMetrics(m))
	if err != nil {
		t.Fatalf("NewSynthesizer: %v", err)
	}
	p, err := New(Deps{
		Normalizer:  norm,
		Trimmer:     trim,
		Router:      router,
		Synthesizer: synth,
		Telemetry:   f.telemetry,
		Metrics:     m,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func (f *fixture) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func echo(answers *[]string) AnswerFunc {
	return func(_ context.Context, text string) (string, error) {
		*answers = append(*answers, text)
		return "Los colibríes anidan en el bosque nuboso.", nil
	}
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(Deps{})
	if err == nil {
		t.Fatal("expected error for empty deps")
	}
	for _, want := range []string{"normalizer", "trimmer", "router", "synthesizer"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestRunTurn_CloudFailureFallsBackToLocal(t *testing.T) {
	f := newFixture()
	f.cloud.Err = stt.NewError("deepgram", stt.KindTransport, errors.New("connection reset"))
	p := f.build(t)

	var asked []string
	res, err := p.RunTurn(context.Background(), TurnRequest{
		Audio:        utterance(),
		SourceName:   "turn.wav",
		IncludeAudio: true,
	}, echo(&asked))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if res.Backend != speech.BackendLocal || !res.FallbackUsed {
		t.Errorf("backend=%q fallback=%v, want local/true", res.Backend, res.FallbackUsed)
	}
	if res.STTText == "" || res.STTText != f.local.Text {
		t.Errorf("STTText = %q", res.STTText)
	}
	if len(asked) != 1 || asked[0] != f.local.Text {
		t.Errorf("answer saw %q", asked)
	}
	if res.AnswerText == "" || res.TTSError != "" {
		t.Errorf("answer=%q tts_error=%q", res.AnswerText, res.TTSError)
	}
	buf, err := audio.ParseWAV(res.Audio)
	if err != nil || !buf.IsCanonical(testRate) {
		t.Fatalf("reply audio = %+v, %v", buf, err)
	}

	calls := f.local.Calls()
	if len(calls) != 1 {
		t.Fatalf("local calls = %d", len(calls))
	}
	if got, full := len(calls[0].Audio.PCM), 3*testRate; got >= full || got == 0 {
		t.Errorf("local engine got %d PCM bytes, want trimmed below %d", got, full)
	}
	if !audio.IsWAV(f.cloud.Calls()[0].Audio.WAV) {
		t.Error("cloud engine did not receive a WAVE file")
	}

	ev := f.telemetry.only(t)
	if ev.Outcome() != "ok" || !ev.Result.FallbackUsed {
		t.Errorf("event = %+v", ev)
	}
	if got := f.counter(t, "natuvoice.stt.fallbacks"); got != 1 {
		t.Errorf("fallback counter = %d, want 1", got)
	}
}

func TestRunTurn_TTSFailureDegradesToText(t *testing.T) {
	f := newFixture()
	f.tts.Err = errors.New("coqui: 500 internal server error")
	p := f.build(t)

	var asked []string
	res, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance(), IncludeAudio: true}, echo(&asked))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Audio != nil {
		t.Errorf("Audio = %d bytes, want nil", len(res.Audio))
	}
	if res.TTSError == "" {
		t.Error("TTSError not set")
	}
	if res.STTText == "" || res.AnswerText == "" {
		t.Errorf("stt=%q answer=%q", res.STTText, res.AnswerText)
	}
	if res.Backend != speech.BackendCloud || res.FallbackUsed {
		t.Errorf("backend=%q fallback=%v", res.Backend, res.FallbackUsed)
	}

	ev := f.telemetry.only(t)
	if ev.Outcome() != "ok" || ev.Result.TTSError != res.TTSError {
		t.Errorf("event = %+v", ev)
	}
	if got := f.counter(t, "natuvoice.tts.failures"); got != 1 {
		t.Errorf("tts failure counter = %d, want 1", got)
	}
}

func TestRunTurn_DecodeErrorFailsTurn(t *testing.T) {
	dec := &failingDecoder{}
	f := newFixture()
	f.decoder = dec
	p := f.build(t)

	called := false
	_, err := p.RunTurn(context.Background(), TurnRequest{
		Audio:      []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00},
		SourceName: "clip.webm",
	}, func(context.Context, string) (string, error) {
		called = true
		return "", nil
	})

	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *audio.DecodeError", err)
	}
	if dec.calls != 1 || called || f.cloud.CallCount() != 0 || f.local.CallCount() != 0 {
		t.Errorf("decoder=%d answer=%v cloud=%d local=%d", dec.calls, called, f.cloud.CallCount(), f.local.CallCount())
	}
	if ev := f.telemetry.only(t); ev.Outcome() != "error" {
		t.Errorf("outcome = %q", ev.Outcome())
	}
}

func TestRunTurn_FFmpegFailureLeavesNoTempFiles(t *testing.T) {
	bin := writeFailingFFmpeg(t)
	tmp := t.TempDir()
	f := newFixture()
	f.decoder = audio.NewFFmpegDecoder(audio.WithBinary(bin), audio.WithTempDir(tmp))
	p := f.build(t)

	_, err := p.RunTurn(context.Background(), TurnRequest{Audio: []byte("not audio"), SourceName: "x.ogg"}, echo(new([]string)))
	var de *audio.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *audio.DecodeError", err)
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d temp files left behind", len(entries))
	}
}

func TestRunTurn_AnswerErrorPropagates(t *testing.T) {
	f := newFixture()
	p := f.build(t)
	boom := errors.New("llm: 503 overloaded")

	res, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance(), IncludeAudio: true},
		func(context.Context, string) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want answer error", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if f.tts.CallCount() != 0 {
		t.Error("tts called after answer failure")
	}
	if ev := f.telemetry.only(t); ev.Outcome() != "error" || ev.Result.STTText == "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestRunTurn_NoUsableSTT(t *testing.T) {
	f := newFixture()
	f.mode = speech.ModeLocal
	p := f.build(t)
	// Rebuild the router with no real local engine.
	router, _ := speech.NewRouter(speech.ModeLocal, nil, stt.NewUnavailable("whisper", errors.New("model missing")))
	p.router = router

	_, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance()}, echo(new([]string)))
	if !errors.Is(err, speech.ErrSTTUnavailable) {
		t.Fatalf("err = %v, want ErrSTTUnavailable", err)
	}
}

func TestRunTurn_TrimsTranscript(t *testing.T) {
	f := newFixture()
	f.cloud.Text = "  ¿Tienen miel de azahar?\n"
	p := f.build(t)

	var asked []string
	res, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance()}, echo(&asked))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	const want = "¿Tienen miel de azahar?"
	if res.STTText != want {
		t.Errorf("STTText = %q, want %q", res.STTText, want)
	}
	if len(asked) != 1 || asked[0] != want {
		t.Errorf("answer saw %q, want %q", asked, want)
	}
}

func TestRunTurn_WithoutAudio(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	res, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance()}, echo(new([]string)))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Audio != nil || res.TTSError != "" || res.Latency.TTS != 0 {
		t.Errorf("result = %+v", res)
	}
	if f.tts.CallCount() != 0 {
		t.Errorf("tts called %d times", f.tts.CallCount())
	}
}

func TestRunTurn_VoiceFallback(t *testing.T) {
	f := newFixture()
	f.tts.Voices = []string{"p226"}
	p := f.build(t)

	res, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance(), IncludeAudio: true}, echo(new([]string)))
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.Audio == nil {
		t.Fatalf("no audio, tts_error=%q", res.TTSError)
	}
	if p.synth.Voice() != "p226" {
		t.Errorf("voice = %q, want p226", p.synth.Voice())
	}
}

func TestRunTurn_NilAnswer(t *testing.T) {
	p := newFixture().build(t)
	if _, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance()}, nil); err == nil {
		t.Fatal("expected error for nil answer func")
	}
}

func TestSynthesize_ReturnsErrors(t *testing.T) {
	f := newFixture()
	f.tts.Err = errors.New("boom")
	p := f.build(t)

	_, err := p.Synthesize(context.Background(), "hola")
	var se *speech.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *speech.SynthesisError", err)
	}
}

func TestRunTurn_Concurrent(t *testing.T) {
	f := newFixture()
	p := f.build(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.RunTurn(context.Background(), TurnRequest{Audio: utterance(), IncludeAudio: true},
				func(context.Context, string) (string, error) { return "ok", nil })
			if err != nil || res.Audio == nil {
				t.Errorf("RunTurn: %v", err)
			}
		}()
	}
	wg.Wait()

	f.telemetry.mu.Lock()
	n := len(f.telemetry.events)
	f.telemetry.mu.Unlock()
	if n != 8 {
		t.Errorf("events = %d, want 8", n)
	}
}

// writeFailingFFmpeg installs a stand-in ffmpeg that always exits 1.
func writeFailingFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script decoder not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
