// Package mock provides a test double for the embeddings.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model and
// to verify that the correct texts and task modes are submitted for embedding.
//
// Example:
//
//	p := &mock.Provider{
//	    EmbedResult:     []float32{0.1, 0.2, 0.3},
//	    DimensionsValue: 3,
//	    ModelIDValue:    "test-embed-v1",
//	}
//	vec, _ := p.Embed(ctx, "wireless headphones", embeddings.TaskQuery)
package mock

import (
	"context"
	"sync"

	"github.com/emporia-ai/clerk/pkg/provider/embeddings"
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Text is the string passed to Embed.
	Text string
	// Task is the task mode passed to Embed.
	Task embeddings.Task
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	// Ctx is the context passed to EmbedBatch.
	Ctx context.Context
	// Texts is a copy of the string slice passed to EmbedBatch.
	Texts []string
	// Task is the task mode passed to EmbedBatch.
	Task embeddings.Task
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// EmbedResult is returned by Embed. If nil, a zero-length slice is returned.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. If nil, a slice of nil
	// slices matching the input length is returned.
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	// EmbedBatchCalls records every call to EmbedBatch in order.
	EmbedBatchCalls []EmbedBatchCall
}

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(ctx context.Context, text string, task embeddings.Task) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text, Task: task})
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, task embeddings.Task) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp, Task: task})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult == nil {
		return make([][]float32, len(texts)), nil
	}
	return p.EmbedBatchResult, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}
