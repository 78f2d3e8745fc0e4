// Package mock provides scripted test doubles for the vad interfaces.
//
//	sess := &mock.Session{Script: []bool{false, true, true, false}}
//	tr, _ := speech.NewTrimmer(cfg, &mock.Engine{Session: sess})
package mock

import (
	"slices"
	"sync"

	"github.com/MrWong99/natuvoice/pkg/provider/vad"
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine hands out a fixed Session.
type Engine struct {
	// Session is returned by NewSession. When nil a fresh silent Session is
	// returned each time.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, fails every NewSession call.
	NewSessionErr error

	mu      sync.Mutex
	configs []vad.Config
}

// NewSession records cfg and returns Session or NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Configs returns the configuration of every session requested so far.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.configs)
}

// Session classifies frames from a script.
type Session struct {
	// Script is the speech decision for each successive frame.
	Script []bool

	// Default is used once Script is exhausted.
	Default bool

	// Classify, if set, overrides Script and decides from the frame bytes.
	Classify func(frame []byte) bool

	// ProcessFrameErr, if non-nil, fails every ProcessFrame call.
	ProcessFrameErr error

	// CloseErr is returned by Close.
	CloseErr error

	mu     sync.Mutex
	frames [][]byte
	resets int
	closes int
}

// ProcessFrame keeps a copy of frame and returns the next decision.
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.frames)
	s.frames = append(s.frames, slices.Clone(frame))
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}

	speech := s.Default
	switch {
	case s.Classify != nil:
		speech = s.Classify(frame)
	case idx < len(s.Script):
		speech = s.Script[idx]
	}
	return vad.Event{Speech: speech}, nil
}

// Reset counts the call.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

// Close counts the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.CloseErr
}

// Frames returns copies of the frames classified so far.
func (s *Session) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.frames)
}

// Resets returns how often Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closes returns how often Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
