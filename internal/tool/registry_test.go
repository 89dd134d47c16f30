package tool

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/emporia-ai/clerk/internal/thread"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
)

func echoHandler(_ context.Context, args string) (string, error) {
	return args, nil
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := New()
	def := llm.ToolDefinition{Name: "echo", Description: "echoes arguments"}

	if err := r.Register(def, echoHandler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("duplicate name rejected", func(t *testing.T) {
		if err := r.Register(def, echoHandler); err == nil {
			t.Fatal("expected error for duplicate registration")
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		if err := r.Register(llm.ToolDefinition{}, echoHandler); err == nil {
			t.Fatal("expected error for empty name")
		}
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		if err := r.Register(llm.ToolDefinition{Name: "broken"}, nil); err == nil {
			t.Fatal("expected error for nil handler")
		}
	})
}

func TestDefinitionsStayInSyncWithHandlers(t *testing.T) {
	t.Parallel()

	r := New()
	names := []string{"alpha", "beta", "gamma"}
	for _, n := range names {
		if err := r.Register(llm.ToolDefinition{Name: n}, echoHandler); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}

	defs := r.Definitions()
	if len(defs) != r.Len() {
		t.Fatalf("definitions (%d) and handlers (%d) out of sync", len(defs), r.Len())
	}
	for i, n := range names {
		if defs[i].Name != n {
			t.Fatalf("want %s at index %d, got %s", n, i, defs[i].Name)
		}
		if _, err := r.Dispatch(context.Background(), n, "{}"); err != nil {
			t.Fatalf("dispatch %s: %v", n, err)
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.Dispatch(context.Background(), "no_such_tool", "{}")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("want ErrUnknownTool, got %v", err)
	}
}

func TestDispatchDirectReturnPassesThrough(t *testing.T) {
	t.Parallel()

	r := New()
	want := thread.Message{Role: thread.RoleAssistant, Content: "Please provide your Customer ID"}
	err := r.Register(llm.ToolDefinition{Name: "get_customer_id"}, func(context.Context, string) (string, error) {
		return "", &DirectReturn{Message: want}
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = r.Dispatch(context.Background(), "get_customer_id", "{}")
	var dr *DirectReturn
	if !errors.As(err, &dr) {
		t.Fatalf("want *DirectReturn, got %v", err)
	}
	if !reflect.DeepEqual(dr.Message, want) {
		t.Fatalf("want %+v, got %+v", want, dr.Message)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	r := New()
	err := r.Register(llm.ToolDefinition{Name: "faulty"}, func(context.Context, string) (string, error) {
		panic("index out of range")
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Dispatch(context.Background(), "faulty", "{}")
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}
	if result != "" {
		t.Fatalf("want empty result, got %q", result)
	}
	if !strings.Contains(err.Error(), "index out of range") {
		t.Fatalf("want panic value in error, got %v", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	type args struct {
		CustomerID int `json:"customer_id"`
	}

	t.Run("valid payload", func(t *testing.T) {
		t.Parallel()
		var a args
		if err := DecodeArgs("get_customer_data", `{"customer_id": 37077}`, &a); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.CustomerID != 37077 {
			t.Fatalf("want 37077, got %d", a.CustomerID)
		}
	})

	t.Run("empty payload decodes as empty object", func(t *testing.T) {
		t.Parallel()
		var a args
		if err := DecodeArgs("get_all_data", "", &a); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("type mismatch yields ArgumentError", func(t *testing.T) {
		t.Parallel()
		var a args
		err := DecodeArgs("get_customer_data", `{"customer_id": "not-a-number"}`, &a)
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("want *ArgumentError, got %v", err)
		}
		if argErr.Tool != "get_customer_data" {
			t.Fatalf("want tool name in error, got %q", argErr.Tool)
		}
	})

	t.Run("malformed JSON yields ArgumentError", func(t *testing.T) {
		t.Parallel()
		var a args
		err := DecodeArgs("get_customer_data", `{"customer_id":`, &a)
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("want *ArgumentError, got %v", err)
		}
	})
}
