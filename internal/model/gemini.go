package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/ternlab/tern/internal/config"
	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/tools"
)

// Gemini implements Client on the Gemini API.
type Gemini struct {
	client         *genai.Client
	modelName      string
	embedderModel  string
	temperature    float32
	maxTokens      int
	thinkingBudget int32
	vectorDim      int32
	logger         log.Logger
}

// NewGemini creates a Gemini-backed client. The API key comes from the
// GEMINI_API_KEY environment variable; construction fails without it.
func NewGemini(ctx context.Context, cfg *config.Config, logger log.Logger) (*Gemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &Gemini{
		client:         client,
		modelName:      cfg.ModelName,
		embedderModel:  cfg.EmbedderModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		thinkingBudget: cfg.ThinkingBudget,
		vectorDim:      int32(cfg.VectorDim), // #nosec G115 -- validated range 1..4096
		logger:         logger,
	}, nil
}

// Chat sends the conversation to Gemini and parses the reply.
func (g *Gemini) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	contents, err := toContents(req.Messages)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxTokens), // #nosec G115 -- validated range
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if g.thinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(g.thinkingBudget),
		}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	reply, err := parseReply(resp)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("model reply",
		"text_len", len(reply.Text),
		"tool_calls", len(reply.ToolCalls),
		"has_thinking", reply.Thinking != "")
	return reply, nil
}

// Embed returns the embedding vector for text, truncated server-side to the
// configured dimensionality.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embedderModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(g.vectorDim)},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}

// toContents converts conversation messages to the wire format. Tool results
// travel as function response parts on a user turn; assistant tool calls as
// function call parts on a model turn.
func toContents(messages []Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			if len(m.ToolResults) > 0 {
				parts := make([]*genai.Part, len(m.ToolResults))
				for i, tr := range m.ToolResults {
					parts[i] = genai.NewPartFromFunctionResponse(tr.Name, toolResultResponse(tr))
					parts[i].FunctionResponse.ID = tr.ID
				}
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
				continue
			}
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))

		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if len(tc.Args) > 0 {
					if err := json.Unmarshal(tc.Args, &args); err != nil {
						return nil, fmt.Errorf("decoding arguments of tool call %s: %w", tc.Name, err)
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
			if len(parts) == 0 {
				// The API rejects empty turns.
				parts = append(parts, genai.NewPartFromText(" "))
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})

		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return contents, nil
}

// toolResultResponse shapes a tool result for the function response part.
func toolResultResponse(tr ToolResult) map[string]any {
	if tr.IsError {
		return map[string]any{"error": tr.Content}
	}
	return map[string]any{"output": tr.Content}
}

// toDeclarations converts tool definitions to function declarations. The
// derived JSON schema is passed through without re-reflection.
func toDeclarations(defs []tools.Definition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(defs))
	for i, d := range defs {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 d.Name,
			Description:          d.Description,
			ParametersJsonSchema: d.InputSchema,
		}
	}
	return decls
}

// parseReply extracts text, thinking, and tool calls from the response.
func parseReply(resp *genai.GenerateContentResponse) (*Reply, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("empty model response")
	}

	reply := &Reply{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("encoding arguments of tool call %s: %w", part.FunctionCall.Name, err)
			}
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: args,
			})
		case part.Thought:
			reply.Thinking += part.Text
		default:
			reply.Text += part.Text
		}
	}
	return reply, nil
}
