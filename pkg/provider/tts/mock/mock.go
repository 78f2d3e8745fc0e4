// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled WAV payloads and to verify which text and
// voice each call carried. Voices restricts the accepted voice identifiers so
// the voice-rejection path can be exercised.
//
// Example:
//
//	p := &mock.Provider{
//	    WAV:    audio.EncodeWAV(pcm, 22050, 1, 2),
//	    Voices: []string{"alloy", "echo"},
//	}
//	wav, err := p.Synthesize(ctx, "hola", "nova") // *tts.VoiceUnsupportedError
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/natuvoice/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice passed to Synthesize.
	Voice string
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// WAV is returned by every successful Synthesize call.
	WAV []byte

	// Err, if non-nil, is returned by every Synthesize call whose voice is
	// accepted.
	Err error

	// Voices, if non-empty, is the set of accepted voices. Any other voice
	// (including the empty voice) is rejected with *tts.VoiceUnsupportedError.
	Voices []string

	// SynthesizeFunc, if set, overrides all of the above.
	SynthesizeFunc func(ctx context.Context, text, voice string) ([]byte, error)

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	// --- Call records ---

	calls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	fn := p.SynthesizeFunc
	wav, err := p.WAV, p.Err
	voices := slices.Clone(p.Voices)
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if len(voices) > 0 && !slices.Contains(voices, voice) {
		return nil, &tts.VoiceUnsupportedError{Voice: voice, Supported: voices}
	}
	if err != nil {
		return nil, err
	}
	return slices.Clone(wav), nil
}

// ListVoices returns Voices sorted, or ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	out := slices.Clone(p.Voices)
	slices.Sort(out)
	return out, nil
}

// Calls returns a copy of every recorded Synthesize call in order.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// CallCount returns the number of Synthesize calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements the tts interfaces at compile time.
var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)
