// Package thread defines the conversation data model shared by the chat
// transport and the orchestration engine.
//
// A Thread is the full message history of one conversation. It is owned by the
// caller for the duration of a single engine turn: the engine appends messages
// in place and the same instance is returned to the caller. Threads are not
// safe for concurrent mutation and must not be shared across concurrent turns.
package thread

import (
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a model-issued request to invoke a named tool with JSON
// arguments. It appears on assistant messages only.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single entry in a conversation transcript. Messages are
// immutable once appended; ordering is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that request a tool invocation.
	// It is an internal extension of the transcript and never arrives from
	// the API boundary.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID tags a tool-role message with the originating call.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool-role messages.
	Name string `json:"name,omitempty"`
}

// Thread is a conversation's ordered message history plus identifiers.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	UserID   string    `json:"user_id,omitempty"`
}

// ValidationError reports a malformed inbound Thread. It is returned before
// any model call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "thread: " + e.Reason
}

// New builds a validated Thread from the given messages, generating an ID.
func New(messages []Message, userID string) (*Thread, error) {
	t := &Thread{
		ID:       uuid.NewString(),
		Messages: messages,
		UserID:   userID,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate enforces the API-boundary transcript invariant: messages are
// non-empty, start with a user message, and alternate user/assistant roles.
//
// The alternation rule applies only to inbound threads. Tool messages and
// assistant tool-call messages appended mid-turn by the engine are internal
// extensions of the transcript and are not re-checked. When the ID is empty a
// fresh one is generated.
func (t *Thread) Validate() error {
	if len(t.Messages) == 0 {
		return &ValidationError{Reason: "the list of messages cannot be empty"}
	}
	if t.Messages[0].Role != RoleUser {
		return &ValidationError{Reason: "the first message must have the role 'user'"}
	}
	for i := 1; i < len(t.Messages); i++ {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if t.Messages[i].Role != want {
			return &ValidationError{
				Reason: fmt.Sprintf("message at index %d must have the role %q", i, want),
			}
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Append adds a message to the end of the transcript.
func (t *Thread) Append(m Message) {
	t.Messages = append(t.Messages, m)
}

// Last returns the final message of the transcript. It must not be called on
// an empty thread.
func (t *Thread) Last() Message {
	return t.Messages[len(t.Messages)-1]
}
