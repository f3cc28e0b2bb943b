package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/tools"
)

// Hosted adapts the in-process server to the tool source interface. It
// connects a client to the server over an in-memory transport pair, so
// hosted tools go through the full MCP protocol round trip.
type Hosted struct {
	session *mcp.ClientSession
	defs    []tools.Definition
	names   map[string]bool
	logger  log.Logger
}

// NewHosted connects to the hosted server and caches its tool list. The
// returned Hosted owns the client side of the connection; Close releases it.
func NewHosted(ctx context.Context, server *Server, logger log.Logger) (*Hosted, error) {
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	if _, err := server.Connect(ctx, serverTransport); err != nil {
		return nil, fmt.Errorf("connecting hosted server: %w", err)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "tern",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting hosted client: %w", err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("listing hosted tools: %w", err)
	}

	h := &Hosted{
		session: session,
		defs:    toolsToDefinitions(listed.Tools),
		names:   make(map[string]bool, len(listed.Tools)),
		logger:  logger,
	}
	for _, t := range listed.Tools {
		h.names[t.Name] = true
	}

	logger.Debug("hosted tools connected", "count", len(h.defs))
	return h, nil
}

// Definitions returns the hosted tool definitions in listing order.
func (h *Hosted) Definitions() []tools.Definition {
	return h.defs
}

// Owns reports whether the hosted server provides the named tool.
func (h *Hosted) Owns(name string) bool {
	return h.names[name]
}

// Call invokes a hosted tool. Error results from the tool come back as Go
// errors carrying the result text.
func (h *Hosted) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if !h.names[name] {
		return "", fmt.Errorf("tool %q not found on hosted server", name)
	}

	arguments, err := decodeArgs(args)
	if err != nil {
		return "", fmt.Errorf("decoding arguments for %s: %w", name, err)
	}

	result, err := h.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("calling hosted tool %s: %w", name, err)
	}

	text := extractText(result)
	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// Close shuts down the client session.
func (h *Hosted) Close() error {
	return h.session.Close()
}

// toolsToDefinitions converts listed MCP tools to source definitions.
func toolsToDefinitions(ts []*mcp.Tool) []tools.Definition {
	defs := make([]tools.Definition, len(ts))
	for i, t := range ts {
		defs[i] = tools.Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaFromAny(t.InputSchema),
		}
	}
	return defs
}

// schemaFromAny converts a tool input schema that arrived JSON-decoded over
// the transport into its typed form. A schema that cannot be converted comes
// back nil; the tool is still advertised.
func schemaFromAny(v any) *jsonschema.Schema {
	if v == nil {
		return nil
	}
	if s, ok := v.(*jsonschema.Schema); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}

// decodeArgs unmarshals raw JSON arguments into the map form the protocol
// expects. Empty input means no arguments.
func decodeArgs(args json.RawMessage) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// extractText concatenates the text content of a tool result.
func extractText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
