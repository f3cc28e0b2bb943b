package model

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/ternlab/tern/internal/tools"
)

func TestToContents_UserAndAssistant(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}

	contents, err := toContents(messages)
	if err != nil {
		t.Fatalf("toContents() error: %v", err)
	}
	if len(contents) != 2 {
		t.Fatalf("toContents() returned %d contents, want 2", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Errorf("contents[0].Role = %q, want %q", contents[0].Role, genai.RoleUser)
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("contents[1].Role = %q, want %q", contents[1].Role, genai.RoleModel)
	}
	if got := contents[1].Parts[0].Text; got != "hi there" {
		t.Errorf("assistant text = %q, want %q", got, "hi there")
	}
}

func TestToContents_ToolCalls(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "call-1", Name: "read_file", Args: json.RawMessage(`{"path":"a.txt"}`)},
		}},
	}

	contents, err := toContents(messages)
	if err != nil {
		t.Fatalf("toContents() error: %v", err)
	}

	fc := contents[0].Parts[0].FunctionCall
	if fc == nil {
		t.Fatal("expected a function call part")
	}
	if fc.ID != "call-1" || fc.Name != "read_file" {
		t.Errorf("FunctionCall = {ID: %q, Name: %q}, want {call-1, read_file}", fc.ID, fc.Name)
	}
	if got := fc.Args["path"]; got != "a.txt" {
		t.Errorf("Args[path] = %v, want %q", got, "a.txt")
	}
}

func TestToContents_ToolResults(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, ToolResults: []ToolResult{
			{ID: "call-1", Name: "read_file", Content: "file contents"},
			{ID: "call-2", Name: "list_dir", Content: "permission denied", IsError: true},
		}},
	}

	contents, err := toContents(messages)
	if err != nil {
		t.Fatalf("toContents() error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("toContents() returned %d contents, want 1", len(contents))
	}
	if len(contents[0].Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(contents[0].Parts))
	}

	ok := contents[0].Parts[0].FunctionResponse
	if ok == nil || ok.ID != "call-1" {
		t.Fatalf("parts[0] = %+v, want function response with ID call-1", ok)
	}
	if got := ok.Response["output"]; got != "file contents" {
		t.Errorf("success response = %v, want output field", got)
	}

	failed := contents[0].Parts[1].FunctionResponse
	if failed == nil {
		t.Fatal("parts[1] should be a function response")
	}
	if got := failed.Response["error"]; got != "permission denied" {
		t.Errorf("error response = %v, want error field", got)
	}
}

func TestToContents_EmptyAssistantGetsPlaceholder(t *testing.T) {
	contents, err := toContents([]Message{{Role: RoleAssistant}})
	if err != nil {
		t.Fatalf("toContents() error: %v", err)
	}
	if len(contents[0].Parts) != 1 || contents[0].Parts[0].Text != " " {
		t.Errorf("empty assistant turn = %+v, want single whitespace part", contents[0].Parts)
	}
}

func TestToContents_UnknownRole(t *testing.T) {
	if _, err := toContents([]Message{{Role: "narrator", Content: "x"}}); err == nil {
		t.Error("toContents() should reject unknown roles")
	}
}

func TestToDeclarations(t *testing.T) {
	defs := []tools.Definition{
		{Name: "read_file", Description: "Read a file."},
		{Name: "current_time", Description: "Get the time."},
	}

	decls := toDeclarations(defs)
	if len(decls) != 2 {
		t.Fatalf("toDeclarations() returned %d, want 2", len(decls))
	}
	if decls[0].Name != "read_file" || decls[1].Name != "current_time" {
		t.Errorf("declaration order = [%s %s], want [read_file current_time]", decls[0].Name, decls[1].Name)
	}
}

func TestParseReply(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "planning the read", Thought: true},
					{Text: "Let me check that file."},
					{FunctionCall: &genai.FunctionCall{
						ID:   "call-1",
						Name: "read_file",
						Args: map[string]any{"path": "a.txt"},
					}},
				},
			},
		}},
	}

	reply, err := parseReply(resp)
	if err != nil {
		t.Fatalf("parseReply() error: %v", err)
	}
	if reply.Thinking != "planning the read" {
		t.Errorf("Thinking = %q, want %q", reply.Thinking, "planning the read")
	}
	if reply.Text != "Let me check that file." {
		t.Errorf("Text = %q, want model text without thoughts", reply.Text)
	}
	if len(reply.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(reply.ToolCalls))
	}

	var args map[string]string
	if err := json.Unmarshal(reply.ToolCalls[0].Args, &args); err != nil {
		t.Fatalf("unmarshaling args: %v", err)
	}
	if args["path"] != "a.txt" {
		t.Errorf("args = %v, want path a.txt", args)
	}
}

func TestParseReply_Empty(t *testing.T) {
	if _, err := parseReply(&genai.GenerateContentResponse{}); err == nil {
		t.Error("parseReply() should fail on a response without candidates")
	}
}
