package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MrWong99/natuvoice/pkg/audio"
	"github.com/MrWong99/natuvoice/pkg/provider/tts"
	"github.com/coder/websocket"
)

// fakeServer serves /v1/voices and the stream-input WebSocket. Voices not in
// known are refused during the handshake.
func fakeServer(t *testing.T, known []string, pcm []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/voices", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var vr voicesResponse
		for _, id := range known {
			vr.Voices = append(vr.Voices, elevenLabsVoice{VoiceID: id, Name: strings.ToUpper(id)})
		}
		_ = json.NewEncoder(w).Encode(vr)
	})
	mux.HandleFunc("/v1/text-to-speech/{voice}/stream-input", func(w http.ResponseWriter, r *http.Request) {
		voice := r.PathValue("voice")
		found := false
		for _, k := range known {
			found = found || k == voice
		}
		if !found {
			http.Error(w, "voice not found", http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("output_format"); got != "pcm_22050" {
			t.Errorf("output_format = %q", got)
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		var text strings.Builder
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var m textMessage
			_ = json.Unmarshal(data, &m)
			if m.Text == "" {
				break
			}
			text.WriteString(m.Text)
		}
		if strings.TrimSpace(text.String()) != "Hola" {
			t.Errorf("text = %q", text.String())
		}

		half := len(pcm) / 2
		for _, part := range [][]byte{pcm[:half], pcm[half:]} {
			msg, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(part)})
			_ = conn.Write(r.Context(), websocket.MessageText, msg)
		}
		final, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(r.Context(), websocket.MessageText, final)
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return httptest.NewServer(mux)
}

func TestNew(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
	p, err := New("key", WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.SampleRate() != 24000 {
		t.Errorf("SampleRate = %d, want 24000", p.SampleRate())
	}
}

func TestStreamURL(t *testing.T) {
	p, _ := New("key", WithModel("eleven_multilingual_v2"))
	raw, err := p.streamURL("voice 1")
	if err != nil {
		t.Fatalf("streamURL: %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Scheme != "wss" || u.Host != "api.elevenlabs.io" {
		t.Errorf("url = %s", raw)
	}
	if u.EscapedPath() != "/v1/text-to-speech/voice%201/stream-input" {
		t.Errorf("path = %s", u.EscapedPath())
	}
	if u.Query().Get("model_id") != "eleven_multilingual_v2" || u.Query().Get("output_format") != "pcm_16000" {
		t.Errorf("query = %s", u.RawQuery)
	}
}

func TestStreamURL_EscapesVoiceOnce(t *testing.T) {
	p, _ := New("key")
	tests := []struct {
		voice string
		want  string
	}{
		{"21m00Tcm4TlvDq8ikWAM", "/v1/text-to-speech/21m00Tcm4TlvDq8ikWAM/stream-input"},
		{"voz%1", "/v1/text-to-speech/voz%251/stream-input"},
		{"a/b", "/v1/text-to-speech/a%2Fb/stream-input"},
		{"añil", "/v1/text-to-speech/a%C3%B1il/stream-input"},
	}
	for _, tt := range tests {
		t.Run(tt.voice, func(t *testing.T) {
			raw, err := p.streamURL(tt.voice)
			if err != nil {
				t.Fatalf("streamURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse %q: %v", raw, err)
			}
			if got := u.EscapedPath(); got != tt.want {
				t.Errorf("escaped path = %s, want %s", got, tt.want)
			}
			if strings.Contains(raw, "%25") && !strings.Contains(tt.voice, "%") {
				t.Errorf("voice escaped twice: %s", raw)
			}
		})
	}
}

func TestSynthesize(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	srv := fakeServer(t, []string{"abc"}, pcm)
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL), WithOutputFormat("pcm_22050"))
	wav, err := p.Synthesize(context.Background(), "Hola", "abc")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	buf, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if buf.SampleRate != 22050 || buf.Channels != 1 || string(buf.Data) != string(pcm) {
		t.Errorf("got %+v", buf)
	}
}

func TestSynthesize_UnknownVoice(t *testing.T) {
	srv := fakeServer(t, []string{"abc", "def"}, nil)
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL), WithOutputFormat("pcm_22050"))
	_, err := p.Synthesize(context.Background(), "Hola", "nova")
	var vu *tts.VoiceUnsupportedError
	if !errors.As(err, &vu) {
		t.Fatalf("expected *tts.VoiceUnsupportedError, got %T: %v", err, err)
	}
	if strings.Join(vu.Supported, ",") != "abc,def" {
		t.Errorf("Supported = %v", vu.Supported)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Error("expected error for empty voice")
	}
	if _, err := p.Synthesize(context.Background(), " ", "abc"); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestListVoices_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"invalid key"}`)
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(srv.URL))
	if _, err := p.ListVoices(context.Background()); err == nil {
		t.Fatal("expected error on 401")
	}
}
