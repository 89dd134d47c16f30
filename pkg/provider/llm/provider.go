// Package llm defines the Provider interface for chat-completion backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, Anthropic
// via any-llm, or a local Ollama instance) and exposes a uniform interface for
// the chat engine to perform tool-calling completions without coupling to any
// specific SDK.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" or "tool" role and drives the response.
	Messages []Message

	// Tools is the set of function definitions offered to the model. The model
	// may choose to call one of them in its response.
	Tools []ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. A value
	// of 0.0 requests greedy (argmax) decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. Providers without a dedicated system channel must
	// prepend it as a "system"-role message.
	SystemPrompt string
}

// CompletionResponse is the model's reply to a single CompletionRequest.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply. Empty when the model
	// responds exclusively with tool calls.
	Content string

	// ToolCalls lists all tool invocations requested by the model. The caller
	// is responsible for executing them and appending the results to the
	// conversation.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must propagate context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports. The result is assumed to be constant for the
	// lifetime of the Provider instance.
	Capabilities() ModelCapabilities
}
