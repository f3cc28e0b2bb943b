// Package mcp provides the two MCP-backed tool sources: an in-process hosted
// server exposing web tools over an in-memory transport, and a manager for
// external servers spawned as stdio subprocesses.
package mcp

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ternlab/tern/internal/log"
)

// ServerName identifies the hosted server in MCP handshakes.
const ServerName = "tern-web"

// ServerConfig configures the hosted web tools server.
type ServerConfig struct {
	Version string
	// SearXNGURL is the base URL of the SearXNG instance used by web_search.
	SearXNGURL string
}

// Server is the in-process MCP server hosting the web tools. It speaks the
// same protocol as an external server but never leaves the process.
type Server struct {
	mcpServer *mcp.Server
	search    *searxngClient
	fetcher   *pageFetcher
	logger    log.Logger
}

// NewServer creates the hosted server. A missing SearXNG URL is a
// construction error so misconfiguration surfaces at startup, not on the
// first search mid-conversation.
func NewServer(cfg ServerConfig, logger log.Logger) (*Server, error) {
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.SearXNGURL == "" {
		return nil, fmt.Errorf("searxng base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: cfg.Version,
		}, nil),
		search:  newSearXNGClient(cfg.SearXNGURL),
		fetcher: newPageFetcher(),
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering web tools: %w", err)
	}
	return s, nil
}

// Run starts the server on the given transport and blocks until the context
// is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// Connect attaches the server to a transport without blocking.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, transport, nil)
}

// WebSearchInput defines the input schema for the web_search tool.
type WebSearchInput struct {
	Query      string `json:"query" jsonschema:"the search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, defaults to 5"`
}

// FetchPageInput defines the input schema for the fetch_page tool.
type FetchPageInput struct {
	URL string `json:"url" jsonschema:"the http or https URL to fetch"`
}

func (s *Server) registerTools() error {
	searchSchema, err := jsonschema.For[WebSearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for web_search: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "web_search",
		Description: "Search the web. Returns result titles, URLs, and content snippets.",
		InputSchema: searchSchema,
	}, s.handleWebSearch)

	fetchSchema, err := jsonschema.For[FetchPageInput](nil)
	if err != nil {
		return fmt.Errorf("schema for fetch_page: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "fetch_page",
		Description: "Fetch a web page and extract its readable text content.",
		InputSchema: fetchSchema,
	}, s.handleFetchPage)

	return nil
}

// handleWebSearch serves the web_search tool. Failures the model should see
// come back as error results, not protocol errors.
func (s *Server) handleWebSearch(ctx context.Context, _ *mcp.CallToolRequest, in WebSearchInput) (*mcp.CallToolResult, any, error) {
	s.logger.Debug("web_search called", "query", in.Query, "max_results", in.MaxResults)

	if in.Query == "" {
		return errorResult("query is required"), nil, nil
	}

	results, err := s.search.Search(ctx, in.Query, in.MaxResults)
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil, nil
	}
	if len(results) == 0 {
		return textResult("No results found."), nil, nil
	}
	return textResult(formatSearchResults(results)), nil, nil
}

// handleFetchPage serves the fetch_page tool.
func (s *Server) handleFetchPage(ctx context.Context, _ *mcp.CallToolRequest, in FetchPageInput) (*mcp.CallToolResult, any, error) {
	s.logger.Debug("fetch_page called", "url", in.URL)

	if in.URL == "" {
		return errorResult("url is required"), nil, nil
	}

	page, err := s.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		return errorResult(fmt.Sprintf("fetch failed: %v", err)), nil, nil
	}
	return textResult(page), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
