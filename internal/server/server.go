// Package server exposes the kiosk HTTP API: voice turns, text chat,
// standalone speech synthesis, the public kiosk configuration, the terms of
// use, and the health and metrics endpoints.
//
// Every response body is JSON except raw WAVE output from /api/tts. Errors
// are reported as {"ok": false, "error": "..."} with a message suitable for
// display on the kiosk.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/natuvoice/internal/answer"
	"github.com/MrWong99/natuvoice/internal/config"
	"github.com/MrWong99/natuvoice/internal/health"
	"github.com/MrWong99/natuvoice/internal/kiosk"
	"github.com/MrWong99/natuvoice/internal/observe"
	"github.com/MrWong99/natuvoice/internal/pipeline"
	"github.com/MrWong99/natuvoice/internal/ratelimit"
)

// Answerer answers visitor questions. [*answer.Service] implements it.
type Answerer interface {
	Answer(ctx context.Context, q answer.Question) (*answer.Answer, error)
}

var _ Answerer = (*answer.Service)(nil)

// errNoAnswerer is reported when no answer backend was configured.
var errNoAnswerer = errors.New("answer service is not configured")

// Voice-turn routes. The trailing-slash variants are exact matches.
var voiceTurnPaths = []string{"/api/voice/turn", "/api/voice/turn/", "/voice/turn", "/voice/turn/"}

// Deps are the collaborators of a [Server].
type Deps struct {
	Config *config.Config

	// Voice is the pipeline availability captured at startup.
	Voice *pipeline.Availability

	// Answerer may be nil, in which case /chat and voice turns return 503.
	Answerer Answerer

	Auth *kiosk.Authenticator

	// Limiter may be nil to disable rate limiting.
	Limiter *ratelimit.Limiter

	Metrics *observe.Metrics

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// Checkers are evaluated by the readiness endpoints.
	Checkers []health.Checker
}

// Server is the HTTP API. It is safe for concurrent use.
type Server struct {
	cfg      *config.Config
	voice    *pipeline.Availability
	answerer Answerer
	auth     *kiosk.Authenticator
	limiter  *ratelimit.Limiter
	metrics  *observe.Metrics
	promh    http.Handler
	health   *health.Handler

	turnTimeout time.Duration
}

// New validates d and returns a Server.
func New(d Deps) (*Server, error) {
	var errs []error
	if d.Config == nil {
		errs = append(errs, errors.New("server: config is required"))
	}
	if d.Voice == nil {
		errs = append(errs, errors.New("server: voice availability is required"))
	}
	if d.Auth == nil {
		errs = append(errs, errors.New("server: kiosk authenticator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if d.Metrics == nil {
		d.Metrics = observe.DefaultMetrics()
	}
	return &Server{
		cfg:         d.Config,
		voice:       d.Voice,
		answerer:    d.Answerer,
		auth:        d.Auth,
		limiter:     d.Limiter,
		metrics:     d.Metrics,
		promh:       d.MetricsHandler,
		health:      health.New(d.Checkers...),
		turnTimeout: time.Duration(d.Config.Server.TurnTimeoutSec) * time.Second,
	}, nil
}

// Handler returns the root handler with the observability and rate-limit
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /terms", s.handleTerms)
	mux.HandleFunc("POST /chat", s.handleChat)
	for _, p := range voiceTurnPaths {
		pattern := "POST " + p
		if p[len(p)-1] == '/' {
			pattern += "{$}"
		}
		mux.HandleFunc(pattern, s.handleVoiceTurn)
	}
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("POST /tts", s.handleTTS)

	s.health.Register(mux)
	if s.promh != nil {
		mux.Handle("GET /metrics", s.promh)
	}

	var h http.Handler = mux
	if s.limiter != nil {
		paths := append([]string{"/chat"}, voiceTurnPaths...)
		h = s.limiter.Middleware(paths, rateLimitKey)(h)
	}
	return observe.Middleware(s.metrics)(h)
}

// rateLimitKey keys requests by device id, falling back to the client IP.
func rateLimitKey(r *http.Request) string {
	if id := kiosk.DeviceID(r); id != "" {
		return "device:" + id
	}
	return "ip:" + observe.ClientIP(r)
}
