package thread

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		messages []Message
		wantErr  bool
	}{
		{
			name:    "empty message list",
			wantErr: true,
		},
		{
			name:     "single user message",
			messages: []Message{{Role: RoleUser, Content: "hi"}},
		},
		{
			name: "alternating roles",
			messages: []Message{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleAssistant, Content: "hello"},
				{Role: RoleUser, Content: "show me my orders"},
			},
		},
		{
			name:     "first message from assistant",
			messages: []Message{{Role: RoleAssistant, Content: "hello"}},
			wantErr:  true,
		},
		{
			name: "two consecutive user messages",
			messages: []Message{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleUser, Content: "hi again"},
			},
			wantErr: true,
		},
		{
			name: "two consecutive assistant messages",
			messages: []Message{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleAssistant, Content: "hello"},
				{Role: RoleAssistant, Content: "hello again"},
			},
			wantErr: true,
		},
		{
			name: "tool role at the boundary",
			messages: []Message{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleTool, Content: "{}"},
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			th := &Thread{Messages: tc.messages}
			err := th.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected *ValidationError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if th.ID == "" {
				t.Fatal("Validate should assign an ID when missing")
			}
		})
	}
}

func TestValidateKeepsProvidedID(t *testing.T) {
	t.Parallel()

	th := &Thread{
		ID:       "thread-42",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}
	if err := th.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.ID != "thread-42" {
		t.Fatalf("ID changed to %q", th.ID)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	th, err := New([]Message{{Role: RoleUser, Content: "hi"}}, "user-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.ID == "" {
		t.Fatal("New should generate an ID")
	}
	if th.UserID != "user-7" {
		t.Fatalf("want user-7, got %q", th.UserID)
	}

	if _, err := New(nil, ""); err == nil {
		t.Fatal("expected error for empty messages")
	}
}

func TestAppendAndLast(t *testing.T) {
	t.Parallel()

	th := &Thread{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	th.Append(Message{Role: RoleAssistant, Content: "hello"})

	if got := len(th.Messages); got != 2 {
		t.Fatalf("want 2 messages, got %d", got)
	}
	if th.Last().Content != "hello" {
		t.Fatalf("Last returned %q", th.Last().Content)
	}
}
