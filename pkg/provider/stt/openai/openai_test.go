package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("model = %q, want %q", p.model, DefaultModel)
	}
}

func TestTranscribe_Success(t *testing.T) {
	wav := []byte("RIFF\x00\x00\x00\x00WAVEpayload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "gpt-4o-mini-transcribe" {
			t.Errorf("model = %q", got)
		}
		if got := r.FormValue("language"); got != "es" {
			t.Errorf("language = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		if string(body) != string(wav) || hdr.Filename != "audio.wav" {
			t.Errorf("file %q = %q", hdr.Filename, body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  ¿Dónde está el protector solar? "}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini-transcribe", WithBaseURL(srv.URL+"/"), WithLanguage("es"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), stt.Audio{WAV: wav, SampleRate: 16000})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "¿Dónde está el protector solar?" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribe_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   stt.ErrorKind
	}{
		{"auth", http.StatusUnauthorized, stt.KindAuth},
		{"bad audio", http.StatusBadRequest, stt.KindInvalidInput},
		{"outage", http.StatusInternalServerError, stt.KindBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"invalid_request_error"}}`)
			}))
			defer srv.Close()

			p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/"))
			_, err := p.Transcribe(context.Background(), stt.Audio{WAV: []byte("x")})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := stt.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (%v)", got, tt.want, err)
			}
		})
	}
}

func TestTranscribe_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, _ := New("sk-test", "", WithBaseURL(url+"/"))
	_, err := p.Transcribe(context.Background(), stt.Audio{WAV: []byte("x")})
	if got := stt.KindOf(err); got != stt.KindTransport {
		t.Errorf("kind = %v, want transport (%v)", got, err)
	}
}

func TestTranscribe_MissingWAV(t *testing.T) {
	p, _ := New("sk-test", "")
	_, err := p.Transcribe(context.Background(), stt.Audio{PCM: []byte{1, 2}})
	if stt.KindOf(err) != stt.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
