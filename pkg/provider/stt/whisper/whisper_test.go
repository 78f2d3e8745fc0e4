package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/stt"
	"github.com/MrWong99/natuvoice/pkg/provider/stt/whisper"
)

// newMockServer responds to POST /inference with responseText and records
// the multipart fields and decoded WAV of the last request.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, gotFields map[string]string, gotWAV *audio.Buffer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		calls.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k := range gotFields {
			gotFields[k] = r.FormValue(k)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if buf, err := audio.ParseWAV(data); err == nil && gotWAV != nil {
			*gotWAV = buf
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func speechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(i%200*50)))
	}
	return buf
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestTranscribe_PostsWAV(t *testing.T) {
	var calls atomic.Int32
	fields := map[string]string{"language": "", "model": ""}
	var wav audio.Buffer
	srv := newMockServer(t, "  hola mundo \n", &calls, fields, &wav)

	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("es"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm := speechPCM(1600)
	text, err := p.Transcribe(context.Background(), stt.Audio{PCM: pcm, SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hola mundo" {
		t.Errorf("text = %q, want %q", text, "hola mundo")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if fields["language"] != "es" || fields["model"] != "small" {
		t.Errorf("fields = %v", fields)
	}
	if wav.SampleRate != 16000 || wav.Channels != 1 || string(wav.Data) != string(pcm) {
		t.Errorf("server received rate=%d ch=%d len=%d", wav.SampleRate, wav.Channels, len(wav.Data))
	}
}

func TestTranscribe_EmptyPCMSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "unused", &calls, map[string]string{}, nil)
	p, _ := whisper.New(srv.URL)

	text, err := p.Transcribe(context.Background(), stt.Audio{SampleRate: 16000})
	if err != nil || text != "" {
		t.Fatalf("Transcribe = %q, %v; want empty, nil", text, err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

func TestTranscribe_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   stt.ErrorKind
	}{
		{"server error", http.StatusInternalServerError, stt.KindBackend},
		{"bad audio", http.StatusBadRequest, stt.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			p, _ := whisper.New(srv.URL)
			_, err := p.Transcribe(context.Background(), stt.Audio{PCM: speechPCM(160), SampleRate: 16000})
			if got := stt.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestTranscribe_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, _ := whisper.New(url)
	_, err := p.Transcribe(context.Background(), stt.Audio{PCM: speechPCM(160), SampleRate: 16000})
	var se *stt.Error
	if !errors.As(err, &se) || se.Kind != stt.KindTransport {
		t.Fatalf("expected transport *stt.Error, got %v", err)
	}
}

func TestTranscribe_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Audio{PCM: speechPCM(160), SampleRate: 16000}); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
