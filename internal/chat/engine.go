// Package chat implements the tool-calling orchestration loop.
//
// An Engine drives one conversation turn: it sends the transcript to the
// language model, dispatches at most one tool call per round through the
// registry, feeds the tool result back to the model, and repeats until the
// model produces a plain assistant message or a handler short-circuits the
// loop with a direct return. Tool-level failures (unknown tool, bad
// arguments, handler errors) are reported into the transcript so the model
// can self-correct; only upstream model failures abort the turn.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emporia-ai/clerk/internal/observe"
	"github.com/emporia-ai/clerk/internal/resilience"
	"github.com/emporia-ai/clerk/internal/thread"
	"github.com/emporia-ai/clerk/internal/tool"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
)

const (
	defaultTemperature   = 0.0
	defaultMaxTokens     = 2048
	defaultMaxToolRounds = 8

	// degradedMessage closes a turn that hit the tool-round cap without the
	// model settling on a final answer.
	degradedMessage = "I'm sorry, I wasn't able to complete your request. Please try rephrasing your question."

	// multiToolCallError is reported per call id when the model requests
	// several tools at once. Batched calls are rejected loudly instead of
	// silently picking one.
	multiToolCallError = "error: multiple simultaneous tool calls are not supported; call one tool at a time"
)

// UpstreamError wraps a model-call failure the loop cannot recover locally.
// It is surfaced to the transport layer, which answers with a generic server
// error.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chat: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Outcome is the result of one completed turn.
type Outcome struct {
	// Message is the final assistant message of the turn.
	Message thread.Message

	// DirectReturn marks a message synthesized by a tool handler rather than
	// the model. The engine has not appended it to the thread; the caller
	// appends it before returning the transcript.
	DirectReturn bool

	// Usage is the summed token accounting across all model rounds.
	Usage llm.Usage

	// Rounds is the number of model calls made during the turn.
	Rounds int
}

// Option configures an Engine.
type Option func(*Engine)

// WithSystemPrompt sets the instruction text injected before the transcript.
func WithSystemPrompt(p string) Option {
	return func(e *Engine) { e.systemPrompt = p }
}

// WithTemperature sets the sampling temperature. Zero requests greedy
// decoding and is the default.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens caps completion length per model call.
func WithMaxTokens(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithMaxToolRounds caps how many tool rounds a single turn may take before
// the engine gives up with a degraded final message.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

// WithBreaker guards model calls with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(e *Engine) { e.breaker = b }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the logger used for turn diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine runs the orchestration loop for one assistant persona.
type Engine struct {
	name          string
	provider      llm.Provider
	registry      *tool.Registry
	systemPrompt  string
	temperature   float64
	maxTokens     int
	maxToolRounds int
	breaker       *resilience.Breaker
	metrics       *observe.Metrics
	log           *slog.Logger
}

// New creates an Engine named for metrics and log attribution.
func New(name string, provider llm.Provider, registry *tool.Registry, opts ...Option) (*Engine, error) {
	if name == "" {
		return nil, errors.New("chat: engine name must not be empty")
	}
	if provider == nil {
		return nil, errors.New("chat: provider must not be nil")
	}
	if registry == nil {
		return nil, errors.New("chat: registry must not be nil")
	}
	e := &Engine{
		name:          name,
		provider:      provider,
		registry:      registry,
		temperature:   defaultTemperature,
		maxTokens:     defaultMaxTokens,
		maxToolRounds: defaultMaxToolRounds,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// RunTurn drives the loop for one turn over t.
//
// On normal termination the final assistant message is appended to t and
// returned in the Outcome. On a direct return the carried message is returned
// without being appended; the caller owns that append. Upstream model
// failures return an *UpstreamError and leave t without a new assistant
// message.
func (e *Engine) RunTurn(ctx context.Context, t *thread.Thread) (Outcome, error) {
	ctx, span := observe.StartSpan(ctx, "chat.turn")
	defer span.End()

	e.metrics.ActiveTurns.Add(ctx, 1)
	defer e.metrics.ActiveTurns.Add(ctx, -1)

	log := e.log.With("assistant", e.name, "thread_id", t.ID)
	messages := toModelMessages(t.Messages)

	var out Outcome
	for {
		resp, err := e.complete(ctx, messages)
		if err != nil {
			e.metrics.RecordModelError(ctx, e.name)
			e.metrics.RecordTurn(ctx, e.name, "upstream_error")
			log.ErrorContext(ctx, "model call failed", "round", out.Rounds, "error", err)
			return Outcome{}, &UpstreamError{Op: "complete", Err: err}
		}
		out.Rounds++
		out.Usage.PromptTokens += resp.Usage.PromptTokens
		out.Usage.CompletionTokens += resp.Usage.CompletionTokens
		out.Usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.ToolCalls) == 0 {
			out.Message = thread.Message{Role: thread.RoleAssistant, Content: resp.Content}
			t.Append(out.Message)
			e.metrics.RecordTurn(ctx, e.name, "final")
			log.InfoContext(ctx, "turn completed", "rounds", out.Rounds)
			return out, nil
		}

		messages = append(messages, llm.Message{
			Role:      string(thread.RoleAssistant),
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) > 1 {
			log.WarnContext(ctx, "model requested multiple simultaneous tool calls",
				"count", len(resp.ToolCalls), "round", out.Rounds)
			for _, call := range resp.ToolCalls {
				e.metrics.RecordToolCall(ctx, call.Name, "rejected_batch")
				messages = append(messages, toolResult(call, multiToolCallError))
			}
		} else {
			call := resp.ToolCalls[0]
			result, direct := e.dispatch(ctx, call)
			if direct != nil {
				out.Message = direct.Message
				out.DirectReturn = true
				e.metrics.RecordTurn(ctx, e.name, "direct_return")
				log.InfoContext(ctx, "turn short-circuited by tool",
					"tool", call.Name, "rounds", out.Rounds)
				return out, nil
			}
			messages = append(messages, toolResult(call, result))
		}

		if out.Rounds >= e.maxToolRounds {
			log.WarnContext(ctx, "tool round cap reached", "rounds", out.Rounds)
			out.Message = thread.Message{Role: thread.RoleAssistant, Content: degradedMessage}
			t.Append(out.Message)
			e.metrics.RecordTurn(ctx, e.name, "round_cap")
			return out, nil
		}
	}
}

// complete performs one guarded model call.
func (e *Engine) complete(ctx context.Context, messages []llm.Message) (*llm.CompletionResponse, error) {
	req := llm.CompletionRequest{
		Messages:     messages,
		Tools:        e.registry.Definitions(),
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
		SystemPrompt: e.systemPrompt,
	}

	start := time.Now()
	var resp *llm.CompletionResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = e.provider.Complete(ctx, req)
		return err
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}

	e.metrics.ModelDuration.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordModelRequest(ctx, e.name, status)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// dispatch runs one tool call. Every handler error becomes the tool-result
// string; a direct return is handed back as a non-nil *tool.DirectReturn.
// Only the model-call path can abort a turn.
func (e *Engine) dispatch(ctx context.Context, call llm.ToolCall) (string, *tool.DirectReturn) {
	ctx, span := observe.StartSpan(ctx, "chat.tool."+call.Name)
	defer span.End()

	start := time.Now()
	result, err := e.registry.Dispatch(ctx, call.Name, call.Arguments)
	e.metrics.ToolDuration.Record(ctx, time.Since(start).Seconds())

	if err == nil {
		e.metrics.RecordToolCall(ctx, call.Name, "ok")
		return result, nil
	}

	var direct *tool.DirectReturn
	if errors.As(err, &direct) {
		e.metrics.RecordToolCall(ctx, call.Name, "direct_return")
		return "", direct
	}

	// Unknown tools, argument failures and handler faults, including
	// infrastructure failures inside a handler, feed back to the model as the
	// tool result.
	status := "handler_error"
	var argErr *tool.ArgumentError
	switch {
	case errors.Is(err, tool.ErrUnknownTool):
		status = "unknown_tool"
	case errors.As(err, &argErr):
		status = "argument_error"
	}
	e.metrics.RecordToolCall(ctx, call.Name, status)
	e.log.WarnContext(ctx, "tool call failed, reporting into transcript",
		"tool", call.Name, "status", status, "error", err)
	return err.Error(), nil
}

// toolResult builds a tool-role message answering a specific call.
func toolResult(call llm.ToolCall, content string) llm.Message {
	return llm.Message{
		Role:       string(thread.RoleTool),
		Content:    content,
		Name:       call.Name,
		ToolCallID: call.ID,
	}
}

// toModelMessages converts the transcript into provider messages.
func toModelMessages(msgs []thread.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		lm := llm.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			lm.ToolCalls = append(lm.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		out = append(out, lm)
	}
	return out
}
