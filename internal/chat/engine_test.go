package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emporia-ai/clerk/internal/resilience"
	"github.com/emporia-ai/clerk/internal/thread"
	"github.com/emporia-ai/clerk/internal/tool"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
	llmmock "github.com/emporia-ai/clerk/pkg/provider/llm/mock"
)

func userThread(t *testing.T, content string) *thread.Thread {
	t.Helper()
	th, err := thread.New([]thread.Message{{Role: thread.RoleUser, Content: content}}, "")
	if err != nil {
		t.Fatalf("thread.New: %v", err)
	}
	return th
}

// newTestRegistry registers a summary tool plus the customer-id clarifier and
// counts handler invocations.
func newTestRegistry(t *testing.T) (*tool.Registry, *int) {
	t.Helper()
	r := tool.New()
	calls := new(int)

	err := r.Register(llm.ToolDefinition{
		Name:        "get_shipping_cost_summary",
		Description: "Summary statistics of shipping costs.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(context.Context, string) (string, error) {
		*calls++
		return `{"average_shipping_cost":9.41,"minimum_shipping_cost":1.03,"maximum_shipping_cost":14.3}`, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = r.Register(llm.ToolDefinition{
		Name:        "get_customer_id",
		Description: "Ask the user for their Customer ID.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(context.Context, string) (string, error) {
		return "", &tool.DirectReturn{Message: thread.Message{
			Role:    thread.RoleAssistant,
			Content: "Please provide your Customer ID",
		}}
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r, calls
}

func newTestEngine(t *testing.T, p llm.Provider, r *tool.Registry, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithSystemPrompt(OrderSystemPrompt)}, opts...)
	e, err := New("order", p, r, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunTurnPlainResponse(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{Content: "Hello! How can I help you today?"},
	}}
	r, _ := newTestRegistry(t)
	e := newTestEngine(t, p, r)

	th := userThread(t, "Hi")
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.DirectReturn {
		t.Fatal("plain response must not be a direct return")
	}
	if out.Rounds != 1 {
		t.Fatalf("want 1 round, got %d", out.Rounds)
	}
	if got := th.Last(); got.Role != thread.RoleAssistant || got.Content != "Hello! How can I help you today?" {
		t.Fatalf("final message not appended, last = %+v", got)
	}
}

func TestRunTurnToolRoundTrip(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_shipping_cost_summary", Arguments: "{}"}}},
		{Content: "The average shipping cost is 9.41."},
	}}
	r, calls := newTestRegistry(t)
	e := newTestEngine(t, p, r)

	th := userThread(t, "What does shipping cost on average?")
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("want 1 handler call, got %d", *calls)
	}
	if out.Rounds != 2 {
		t.Fatalf("want 2 rounds, got %d", out.Rounds)
	}

	// The second model call must see the assistant tool-call message plus the
	// tool result keyed by call id.
	second := p.CompleteCalls[1].Req.Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" || last.Name != "get_shipping_cost_summary" {
		t.Fatalf("tool result not fed back to model, last = %+v", last)
	}
	prev := second[len(second)-2]
	if prev.Role != "assistant" || len(prev.ToolCalls) != 1 {
		t.Fatalf("assistant tool-call message missing, got %+v", prev)
	}
	if th.Last().Content != "The average shipping cost is 9.41." {
		t.Fatalf("final message not appended, last = %+v", th.Last())
	}
}

func TestRunTurnDirectReturn(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_customer_id", Arguments: "{}"}}},
	}}
	r, calls := newTestRegistry(t)
	e := newTestEngine(t, p, r)

	th := userThread(t, "Show me my orders")
	before := len(th.Messages)
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.DirectReturn {
		t.Fatal("want direct return outcome")
	}
	if out.Message.Content != "Please provide your Customer ID" {
		t.Fatalf("unexpected message %q", out.Message.Content)
	}
	if *calls != 0 {
		t.Fatalf("dataset handler must not run, got %d calls", *calls)
	}
	if len(p.CompleteCalls) != 1 {
		t.Fatalf("want exactly 1 model call, got %d", len(p.CompleteCalls))
	}
	if len(th.Messages) != before {
		t.Fatal("direct-return message must not be appended by the engine")
	}
}

func TestRunTurnUnknownToolRecovered(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: "{}"}}},
		{Content: "Sorry, I took a wrong turn there."},
	}}
	r, _ := newTestRegistry(t)
	e := newTestEngine(t, p, r)

	th := userThread(t, "What's the weather?")
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("unknown tool must be recovered, got %v", err)
	}
	if out.Rounds != 2 {
		t.Fatalf("want 2 rounds, got %d", out.Rounds)
	}

	second := p.CompleteCalls[1].Req.Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Fatalf("error report not fed back, last = %+v", last)
	}
	if last.Content == "" {
		t.Fatal("error report must carry the failure text")
	}
}

func TestRunTurnHandlerErrorRecovered(t *testing.T) {
	t.Parallel()

	r := tool.New()
	if err := r.Register(llm.ToolDefinition{
		Name:       "get_customer_data",
		Parameters: map[string]any{"type": "object"},
	}, func(context.Context, string) (string, error) {
		return "", errors.New("customer 37077 not found")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_customer_data", Arguments: `{"customer_id":37077}`}}},
		{Content: "I couldn't find that customer."},
	}}
	e := newTestEngine(t, p, r)

	th := userThread(t, "Orders for customer 37077")
	if _, err := e.RunTurn(context.Background(), th); err != nil {
		t.Fatalf("handler error must be recovered, got %v", err)
	}

	second := p.CompleteCalls[1].Req.Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.Content == "" {
		t.Fatalf("handler error text not fed back, last = %+v", last)
	}
}

func TestRunTurnMultipleToolCallsRejected(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "get_shipping_cost_summary", Arguments: "{}"},
			{ID: "call_2", Name: "get_customer_id", Arguments: "{}"},
		}},
		{Content: "Let me take that one step at a time."},
	}}
	r, calls := newTestRegistry(t)
	e := newTestEngine(t, p, r)

	th := userThread(t, "Do everything at once")
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.DirectReturn {
		t.Fatal("batched calls must never dispatch, even get_customer_id")
	}
	if *calls != 0 {
		t.Fatalf("no handler may run for a batched request, got %d calls", *calls)
	}

	// Each call id gets its own rejection message.
	second := p.CompleteCalls[1].Req.Messages
	n := len(second)
	for i, wantID := range []string{"call_1", "call_2"} {
		m := second[n-2+i]
		if m.Role != "tool" || m.ToolCallID != wantID || m.Content != multiToolCallError {
			t.Fatalf("rejection %d = %+v", i, m)
		}
	}
}

func TestRunTurnRoundCap(t *testing.T) {
	t.Parallel()

	// The single scripted response repeats, so the model loops forever.
	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_shipping_cost_summary", Arguments: "{}"}}},
	}}
	r, _ := newTestRegistry(t)
	e := newTestEngine(t, p, r, WithMaxToolRounds(3))

	th := userThread(t, "Loop forever")
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("round cap must terminate, not fail: %v", err)
	}
	if out.Rounds != 3 {
		t.Fatalf("want 3 rounds, got %d", out.Rounds)
	}
	if out.Message.Content != degradedMessage {
		t.Fatalf("want degraded message, got %q", out.Message.Content)
	}
	if th.Last().Content != degradedMessage {
		t.Fatal("degraded message must be appended to the thread")
	}
}

func TestRunTurnUpstreamError(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Err: errors.New("model endpoint 503")}
	r, _ := newTestRegistry(t)
	e := newTestEngine(t, p, r)

	th := userThread(t, "Hi")
	before := len(th.Messages)
	_, err := e.RunTurn(context.Background(), th)

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("want *UpstreamError, got %v", err)
	}
	if len(th.Messages) != before {
		t.Fatal("failed turn must not mutate the thread")
	}
}

func TestRunTurnToolInfrastructureErrorRecovered(t *testing.T) {
	t.Parallel()

	// A database or embedding failure inside a tool handler is an ordinary
	// handler error: it feeds back into the transcript so the model can
	// rephrase, and the turn still reaches a final answer.
	r := tool.New()
	if err := r.Register(llm.ToolDefinition{
		Name:       "query_product_database",
		Parameters: map[string]any{"type": "object"},
	}, func(context.Context, string) (string, error) {
		return "", errors.New("query_product_database: connection refused")
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "query_product_database", Arguments: `{"sql_query":"SELECT 1"}`}}},
		{Content: "I couldn't reach the product catalog just now."},
	}}
	e := newTestEngine(t, p, r)

	th := userThread(t, "q")
	out, err := e.RunTurn(context.Background(), th)
	if err != nil {
		t.Fatalf("infrastructure failure in a tool must not abort the turn, got %v", err)
	}

	second := p.CompleteCalls[1].Req.Messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" || !strings.Contains(last.Content, "connection refused") {
		t.Fatalf("failure text not fed back to model, last = %+v", last)
	}
	if out.Message.Content != "I couldn't reach the product catalog just now." {
		t.Fatalf("turn must end with the model's recovery answer, got %q", out.Message.Content)
	}
	if th.Last().Content != out.Message.Content {
		t.Fatal("final message must be appended to the thread")
	}
}

func TestRunTurnBreakerOpenIsUpstream(t *testing.T) {
	t.Parallel()

	b := resilience.NewBreaker(resilience.Config{MaxFailures: 1})
	p := &llmmock.Provider{Err: errors.New("model endpoint down")}
	r, _ := newTestRegistry(t)
	e := newTestEngine(t, p, r, WithBreaker(b))

	// First turn trips the breaker.
	if _, err := e.RunTurn(context.Background(), userThread(t, "a")); err == nil {
		t.Fatal("want error from failing provider")
	}
	// Second turn fails fast without reaching the provider.
	callsBefore := len(p.CompleteCalls)
	_, err := e.RunTurn(context.Background(), userThread(t, "b"))
	if !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("want ErrOpen in chain, got %v", err)
	}
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("want *UpstreamError wrapper, got %v", err)
	}
	if len(p.CompleteCalls) != callsBefore {
		t.Fatal("open breaker must not call the provider")
	}
}

func TestRunTurnRequestShape(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []*llm.CompletionResponse{{Content: "ok"}}}
	r, _ := newTestRegistry(t)
	e := newTestEngine(t, p, r, WithTemperature(0), WithMaxTokens(2048))

	if _, err := e.RunTurn(context.Background(), userThread(t, "Hi")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != OrderSystemPrompt {
		t.Fatal("system prompt not forwarded")
	}
	if req.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", req.Temperature)
	}
	if req.MaxTokens != 2048 {
		t.Fatalf("max tokens = %d, want 2048", req.MaxTokens)
	}
	if len(req.Tools) != 2 {
		t.Fatalf("want 2 tool definitions, got %d", len(req.Tools))
	}
}
