// Package model defines the thin client boundary to the language model. The
// agent engine depends only on the Client interface; the Gemini
// implementation lives in gemini.go.
package model

import (
	"context"
	"encoding/json"

	"github.com/ternlab/tern/internal/tools"
)

// Message roles as sent to the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall is a model request to execute one tool.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResult carries one tool's outcome back to the model.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// Message is one conversation entry. An assistant message may carry tool
// calls alongside its text; a user message may carry tool results.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ChatRequest is one model invocation. Tools are attached to the request
// only when the slice is non-empty.
type ChatRequest struct {
	System   string
	Messages []Message
	Tools    []tools.Definition
}

// Reply is the model's response to a ChatRequest. Thinking holds the
// model's reasoning summary when thinking is enabled.
type Reply struct {
	Text      string
	Thinking  string
	ToolCalls []ToolCall
}

// Client is the model boundary. Implementations must be safe for
// concurrent use.
type Client interface {
	// Chat sends a conversation and returns the model's reply.
	Chat(ctx context.Context, req ChatRequest) (*Reply, error)

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
