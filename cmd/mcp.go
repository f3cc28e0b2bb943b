package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/ternlab/tern/internal/app"
	"github.com/ternlab/tern/internal/config"
	"github.com/ternlab/tern/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the built-in web tools as an MCP server on stdio",
	Long: `Runs the built-in web tools (web_search, fetch_page) as a standalone
MCP server over stdio, so other MCP clients can use them.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// runMCP needs only the SearXNG config; no database or model client.
func runMCP(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadWebOnly()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	server, err := mcp.NewServer(mcp.ServerConfig{
		Version:    app.Version,
		SearXNGURL: cfg.SearXNG.BaseURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP server ready", "name", mcp.ServerName, "transport", "stdio")
	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
