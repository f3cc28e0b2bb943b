// Package session persists conversations as append-only action logs in
// PostgreSQL, with optional per-action embeddings for similarity search.
//
// Every event in a conversation is an Action: a message, a tool call, a
// tool result, or a thinking trace. Actions carry per-session sequence
// numbers assigned at insert time under a session row lock, so a single
// writer observes monotonic, gap-free ordering.
package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a persisted action.
type Kind string

const (
	KindMessage    Kind = "message"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindThinking   Kind = "thinking"
)

// Message roles recognized when replaying history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session represents one conversation.
type Session struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Action is a single persisted event in a session's log.
type Action struct {
	ID         uuid.UUID
	SessionID  uuid.UUID
	Seq        int32
	Kind       Kind
	Role       string          // set for KindMessage
	Content    string          // message text, tool result text, or thinking trace
	ToolName   string          // set for tool actions
	ToolArgs   json.RawMessage // set for KindToolCall
	ToolCallID string          // correlates a tool_result with its tool_call
	IsError    bool            // set on KindToolResult when the call failed
	CreatedAt  time.Time
}

// Message is the model-facing view of a message action, produced by History.
type Message struct {
	Role    string
	Content string
}

// SearchResult pairs an action with its cosine similarity to a query vector.
type SearchResult struct {
	Action Action
	Score  float64
}
