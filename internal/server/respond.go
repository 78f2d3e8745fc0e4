package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/natuvoice/internal/kiosk"
)

// jsonBodyLimit caps JSON bodies that carry no audio.
const jsonBodyLimit = 1 << 20

type errorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeJSON reads a single JSON value from r, capped at limit bytes.
// Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	return dec.Decode(dst)
}

// authMessage maps an authentication failure to its client message.
func authMessage(err error) string {
	switch {
	case errors.Is(err, kiosk.ErrMissingDevice):
		return "Missing X-Device-Id."
	case errors.Is(err, kiosk.ErrMissingToken):
		return "Missing kiosk token (X-Kiosk-Token or Authorization Bearer)."
	default:
		return "Invalid kiosk credentials."
	}
}

// authenticate checks kiosk credentials and annotates the request log. It
// writes a 401 and returns false on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (kiosk.Identity, bool) {
	id, err := s.auth.Authenticate(r)
	s.annotate(r, id)
	if err != nil {
		writeError(w, http.StatusUnauthorized, authMessage(err))
		return id, false
	}
	return id, true
}
