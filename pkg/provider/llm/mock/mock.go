// Package mock provides a test double for [llm.Provider].
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "¡Hola!"}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/natuvoice/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider returns canned completions and records every request.
type Provider struct {
	// Reply, if set, computes the response per request and takes precedence
	// over CompleteResponse and CompleteErr.
	Reply func(llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteResponse is returned by Complete; nil yields an empty response.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned instead of a response.
	CompleteErr error

	mu    sync.Mutex
	calls []CompleteCall
}

// Complete records the call and returns the configured reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	reply := p.Reply
	p.mu.Unlock()

	if reply != nil {
		return reply(req)
	}
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if p.CompleteResponse == nil {
		return &llm.CompletionResponse{}, nil
	}
	resp := *p.CompleteResponse
	return &resp, nil
}

// Calls returns a copy of every recorded call.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// LastRequest returns the most recent request, or false when Complete was
// never called.
func (p *Provider) LastRequest() (llm.CompletionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return p.calls[len(p.calls)-1].Req, true
}
