package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/tools"
)

// ServerSpec describes one external MCP server to spawn over stdio.
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// serverConn holds the session and cached tool list for one external server.
type serverConn struct {
	name    string
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// Manager owns the external MCP server connections. Tool name lookups route
// to the server that registered the name first; later servers do not shadow
// earlier ones. Concurrent Call and Owns are safe after setup; AddServer is
// not safe to run concurrently with calls.
type Manager struct {
	mu      sync.RWMutex
	conns   []*serverConn
	toolMap map[string]*serverConn
	logger  log.Logger
}

// NewManager creates an empty manager. Servers are added one at a time so a
// single misconfigured server fails fast with its own error.
func NewManager(logger log.Logger) *Manager {
	return &Manager{
		toolMap: make(map[string]*serverConn),
		logger:  logger,
	}
}

// AddServer spawns the server subprocess, performs the MCP handshake, and
// caches its tool list. Failures propagate to the caller; there is no retry
// or respawn.
func (m *Manager) AddServer(ctx context.Context, spec ServerSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if spec.Command == "" {
		return fmt.Errorf("server %q: command is required", spec.Name)
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...) // #nosec G204 -- command comes from the user's own config file
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "tern",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("connecting to server %q: %w", spec.Name, err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("listing tools of server %q: %w", spec.Name, err)
	}

	conn := &serverConn{name: spec.Name, session: session, tools: listed.Tools}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns = append(m.conns, conn)
	for _, t := range listed.Tools {
		if prev, taken := m.toolMap[t.Name]; taken {
			m.logger.Warn("external tool name already registered",
				"tool", t.Name, "server", spec.Name, "kept_server", prev.name)
			continue
		}
		m.toolMap[t.Name] = conn
	}

	m.logger.Info("external MCP server connected",
		"server", spec.Name, "tools", len(listed.Tools))
	return nil
}

// Definitions returns all external tool definitions, grouped by server in
// connection order. Shadowed duplicates are omitted.
func (m *Manager) Definitions() []tools.Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var defs []tools.Definition
	for _, conn := range m.conns {
		for _, t := range conn.tools {
			if m.toolMap[t.Name] != conn {
				continue
			}
			defs = append(defs, tools.Definition{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaFromAny(t.InputSchema),
			})
		}
	}
	return defs
}

// Owns reports whether any connected server provides the named tool.
func (m *Manager) Owns(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.toolMap[name]
	return ok
}

// Find returns the name of the server owning a tool, for diagnostics.
func (m *Manager) Find(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.toolMap[name]
	if !ok {
		return "", false
	}
	return conn.name, true
}

// Servers returns the connected server names with their tool counts.
func (m *Manager) Servers() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int, len(m.conns))
	for _, conn := range m.conns {
		out[conn.name] = len(conn.tools)
	}
	return out
}

// Call routes a tool call to its owning server. Error results come back as
// Go errors carrying the result text.
func (m *Manager) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	m.mu.RLock()
	conn, ok := m.toolMap[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("tool %q not found on any external server", name)
	}

	arguments, err := decodeArgs(args)
	if err != nil {
		return "", fmt.Errorf("decoding arguments for %s: %w", name, err)
	}

	result, err := conn.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %s on server %s: %w", name, conn.name, err)
	}

	text := extractText(result)
	if result.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

// Close shuts down all server sessions, terminating their subprocesses.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conn := range m.conns {
		if err := conn.session.Close(); err != nil {
			m.logger.Warn("closing external server session", "server", conn.name, "error", err)
		}
	}
	m.conns = nil
	m.toolMap = make(map[string]*serverConn)
}
