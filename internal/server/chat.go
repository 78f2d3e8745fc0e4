package server

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/MrWong99/natuvoice/internal/answer"
	"github.com/MrWong99/natuvoice/internal/knowledge"
	"github.com/MrWong99/natuvoice/internal/observe"
)

type chatRequest struct {
	Message              string            `json:"message"`
	AcceptedTerms        bool              `json:"accepted_terms"`
	AcceptedTermsVersion string            `json:"accepted_terms_version"`
	SessionID            string            `json:"session_id"`
	TopK                 int               `json:"top_k"`
	Filter               map[string]string `json:"filter"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, jsonBodyLimit, &req); err != nil {
		writeError(w, http.StatusBadRequest, "JSON inválido: "+err.Error())
		return
	}
	if n := utf8.RuneCountInString(req.Message); n == 0 || n > s.cfg.Answer.MaxMessageChars {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("El mensaje debe tener entre 1 y %d caracteres.", s.cfg.Answer.MaxMessageChars))
		return
	}

	if !req.AcceptedTerms {
		writeError(w, http.StatusPreconditionFailed, "Debes aceptar términos y condiciones para continuar.")
		return
	}
	if req.AcceptedTermsVersion != s.cfg.Answer.TermsVersion {
		writeError(w, http.StatusPreconditionFailed, "Debes aceptar la versión actual de términos y condiciones antes de continuar.")
		return
	}

	if s.answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "No fue posible responder en este momento: "+errNoAnswerer.Error())
		return
	}

	ans, err := s.answerer.Answer(r.Context(), answer.Question{
		Text:   req.Message,
		TopK:   req.TopK,
		Filter: knowledge.Filter(req.Filter),
	})
	if err != nil {
		observe.Logger(r.Context()).Warn("chat answer failed", "session_id", req.SessionID, "err", err)
		writeError(w, http.StatusServiceUnavailable, "No fue posible responder en este momento: "+err.Error())
		return
	}
	if ans.Citations == nil {
		ans.Citations = []answer.Citation{}
	}
	writeJSON(w, http.StatusOK, ans)
}
