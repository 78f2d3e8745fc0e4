package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/MrWong99/natuvoice/internal/kiosk"
	"github.com/MrWong99/natuvoice/internal/observe"
)

func (s *Server) annotate(r *http.Request, id kiosk.Identity) {
	ctx := r.Context()
	if id.DeviceID != "" {
		observe.SetRequestDevice(ctx, id.DeviceID)
	}
	if id.Known {
		observe.SetRequestKiosk(ctx, id.Info.Name, id.Info.Location)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"message": s.cfg.Answer.BotName + " backend running. See /terms, /config.",
	})
}

type speechInfo struct {
	STTMode         string `json:"stt_mode"`
	TTSMode         string `json:"tts_mode"`
	VADEnabled      bool   `json:"vad_enabled"`
	AudioSampleRate int    `json:"audio_sample_rate"`
}

type kioskInfo struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type configResponse struct {
	OK                    bool       `json:"ok"`
	BotName               string     `json:"bot_name"`
	OfflineMessage        string     `json:"offline_message"`
	MaxMessageChars       int        `json:"max_message_chars"`
	WelcomeMessage        string     `json:"welcome_message"`
	WelcomeMessageVersion string     `json:"welcome_message_version"`
	TermsVersion          string     `json:"terms_version"`
	RateLimitRPM          int        `json:"rate_limit_rpm"`
	RateLimitWindowSec    int        `json:"rate_limit_window_sec"`
	Speech                speechInfo `json:"speech"`
	Kiosk                 *kioskInfo `json:"kiosk,omitempty"`
}

// handleConfig serves the public kiosk configuration. It needs no
// credentials; the device id only selects the kiosk block.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	c := s.cfg
	resp := configResponse{
		OK:                    true,
		BotName:               c.Answer.BotName,
		OfflineMessage:        c.Answer.OfflineMessage,
		MaxMessageChars:       c.Answer.MaxMessageChars,
		WelcomeMessage:        c.Answer.WelcomeMessage,
		WelcomeMessageVersion: c.Answer.WelcomeMessageVersion,
		TermsVersion:          c.Answer.TermsVersion,
		RateLimitRPM:          c.RateLimit.RPM,
		RateLimitWindowSec:    c.RateLimit.WindowSec,
		Speech: speechInfo{
			STTMode:         string(c.STT.Mode),
			TTSMode:         string(c.TTS.Mode),
			VADEnabled:      c.VAD.IsEnabled(),
			AudioSampleRate: c.Audio.SampleRate,
		},
	}

	id := s.auth.Identify(r)
	s.annotate(r, id)
	if id.Known {
		resp.Kiosk = &kioskInfo{DeviceID: id.DeviceID, Name: id.Info.Name, Location: id.Info.Location}
	}
	writeJSON(w, http.StatusOK, resp)
}

type termsResponse struct {
	OK              bool   `json:"ok"`
	Version         string `json:"version"`
	ContentMarkdown string `json:"content_markdown"`
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.Answer.TermsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusInternalServerError, "No se encontró TERMS_FILE: "+path)
			return
		}
		observe.Logger(r.Context()).Error("read terms file", "path", path, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, termsResponse{
		OK:              true,
		Version:         s.cfg.Answer.TermsVersion,
		ContentMarkdown: string(data),
	})
}
