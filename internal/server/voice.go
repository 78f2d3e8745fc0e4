package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/natuvoice/internal/answer"
	"github.com/MrWong99/natuvoice/internal/knowledge"
	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/pipeline"
	"github.com/MrWong99/natuvoice/pkg/audio"
)

const (
	defaultSourceName = "audio.wav"
	maxTTSChars       = 8000

	// multipartMemory is the part of a multipart body kept in memory; the
	// rest spills to temporary files removed after the request.
	multipartMemory = 8 << 20
)

// badRequest is a client error carrying its display message.
type badRequest struct {
	status int
	msg    string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{status: http.StatusBadRequest, msg: msg} }

// voiceTurn is a parsed voice-turn request.
type voiceTurn struct {
	audio        []byte
	sourceName   string
	includeAudio bool
	topK         int
	filter       knowledge.Filter
}

type voiceTurnJSON struct {
	AudioBase64  string            `json:"audio_base64"`
	Filename     string            `json:"filename"`
	IncludeAudio *bool             `json:"include_audio"`
	TopK         int               `json:"top_k"`
	Filter       map[string]string `json:"filter"`
}

type voiceTurnResponse struct {
	STTText        string             `json:"stt_text"`
	BotText        string             `json:"bot_text"`
	STTModeUsed    string             `json:"stt_mode_used"`
	FallbackUsed   bool               `json:"fallback_used"`
	LatencyMs      pipeline.Latencies `json:"latency_ms"`
	AudioWAVBase64 string             `json:"audio_wav_base64,omitempty"`
	TTSError       string             `json:"tts_error,omitempty"`
}

func (s *Server) handleVoiceTurn(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	p, err := s.voice.Pipeline()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Voice pipeline no disponible: "+unavailableReason(s.voice))
		return
	}

	turn, err := s.parseVoiceTurn(w, r)
	if err != nil {
		var br *badRequest
		if errors.As(err, &br) {
			writeError(w, br.status, br.msg)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(turn.audio) == 0 {
		writeError(w, http.StatusBadRequest, "Audio vacío.")
		return
	}

	ctx := r.Context()
	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	res, err := p.RunTurn(ctx, pipeline.TurnRequest{
		Audio:        turn.audio,
		SourceName:   turn.sourceName,
		IncludeAudio: turn.includeAudio,
	}, s.answerFunc(turn.topK, turn.filter))
	if err != nil {
		var de *audio.DecodeError
		if errors.As(err, &de) {
			writeError(w, http.StatusBadRequest, "Audio inválido: "+de.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "Error en pipeline de voz: "+err.Error())
		return
	}

	out := voiceTurnResponse{
		STTText:      res.STTText,
		BotText:      res.AnswerText,
		STTModeUsed:  string(res.Backend),
		FallbackUsed: res.FallbackUsed,
		LatencyMs:    res.Latency,
		TTSError:     res.TTSError,
	}
	if turn.includeAudio && res.Audio != nil {
		out.AudioWAVBase64 = base64.StdEncoding.EncodeToString(res.Audio)
	}
	writeJSON(w, http.StatusOK, out)
}

// answerFunc adapts the answerer to a single voice turn.
func (s *Server) answerFunc(topK int, filter knowledge.Filter) pipeline.AnswerFunc {
	return func(ctx context.Context, text string) (string, error) {
		if s.answerer == nil {
			return "", errNoAnswerer
		}
		a, err := s.answerer.Answer(ctx, answer.Question{Text: text, TopK: topK, Filter: filter})
		if err != nil {
			return "", err
		}
		return a.Text, nil
	}
}

// parseVoiceTurn accepts either a JSON body with base64 audio or a
// multipart form with an "audio" (or "file") part.
func (s *Server) parseVoiceTurn(w http.ResponseWriter, r *http.Request) (voiceTurn, error) {
	turn := voiceTurn{sourceName: defaultSourceName, includeAudio: true}
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit())

	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		var req voiceTurnJSON
		if err := decodeJSON(w, r, s.uploadLimit(), &req); err != nil {
			return turn, invalid("JSON inválido para voz: " + err.Error())
		}
		data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			return turn, invalid("JSON inválido para voz: " + err.Error())
		}
		turn.audio = data
		if req.Filename != "" {
			turn.sourceName = req.Filename
		}
		if req.IncludeAudio != nil {
			turn.includeAudio = *req.IncludeAudio
		}
		turn.topK = req.TopK
		turn.filter = knowledge.Filter(req.Filter)
		return turn, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return turn, &badRequest{status: http.StatusRequestEntityTooLarge, msg: "Audio demasiado grande."}
		}
		return turn, invalid("Debes enviar archivo de audio en multipart/form-data (campo audio).")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		return turn, invalid("Debes enviar archivo de audio en multipart/form-data (campo audio).")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return turn, fmt.Errorf("read audio part: %w", err)
	}
	turn.audio = data
	if header.Filename != "" {
		turn.sourceName = header.Filename
	}

	if v := strings.TrimSpace(r.FormValue("include_audio")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return turn, invalid("include_audio debe ser true o false.")
		}
		turn.includeAudio = b
	}
	if v := strings.TrimSpace(r.FormValue("top_k")); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return turn, invalid("top_k debe ser un número entero.")
		}
		turn.topK = k
	}
	return turn, nil
}

func (s *Server) uploadLimit() int64 {
	if n := s.cfg.Audio.MaxUploadBytes; n > 0 {
		return n
	}
	return 20 << 20
}

type ttsRequest struct {
	Text     string `json:"text"`
	AsBase64 *bool  `json:"as_base64"`
}

type ttsResponse struct {
	AudioWAVBase64 string `json:"audio_wav_base64"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	var req ttsRequest
	if err := decodeJSON(w, r, jsonBodyLimit, &req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido: "+err.Error())
		return
	}
	if n := utf8.RuneCountInString(req.Text); n == 0 || n > maxTTSChars {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("El texto debe tener entre 1 y %d caracteres.", maxTTSChars))
		return
	}

	p, err := s.voice.Pipeline()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Voice pipeline no disponible: "+unavailableReason(s.voice))
		return
	}

	wav, err := p.Synthesize(r.Context(), req.Text)
	if err != nil {
		observe.Logger(r.Context()).Warn("tts request failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "No fue posible sintetizar audio: "+err.Error())
		return
	}

	if req.AsBase64 != nil && !*req.AsBase64 {
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wav)
		return
	}
	writeJSON(w, http.StatusOK, ttsResponse{AudioWAVBase64: base64.StdEncoding.EncodeToString(wav)})
}

func unavailableReason(a *pipeline.Availability) string {
	if err := a.Reason(); err != nil {
		return err.Error()
	}
	return "unknown"
}
