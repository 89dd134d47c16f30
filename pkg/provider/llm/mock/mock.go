// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the chat engine sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. Configure Responses with the scripted sequence of model turns; each
// Complete call consumes the next entry, and the last entry repeats once the
// script is exhausted.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{{Content: "Hello!"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/emporia-ai/clerk/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err to inject an error on every call.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is the scripted sequence of completions, consumed in order.
	// When the script runs out the final entry is returned again. May be nil
	// (Complete returns nil, nil).
	Responses []*llm.CompletionResponse

	// Err, if non-nil, is returned as the error from every Complete call.
	Err error

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// CapabilitiesCallCount is the number of times Capabilities was called.
	CapabilitiesCallCount int

	next int
}

// Ensure Provider implements the llm.Provider interface.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return nil, nil
	}

	resp := p.Responses[p.next]
	if p.next < len(p.Responses)-1 {
		p.next++
	}
	return resp, nil
}

// Capabilities records the call and returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.ModelCapabilities
}
