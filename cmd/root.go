// Package cmd defines the tern command-line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternlab/tern/internal/log"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "tern",
	Short: "tern - a tool-using AI assistant in your terminal",
	Long: `tern is a terminal AI assistant with persistent, searchable sessions.
It answers with the help of local file tools, built-in web tools, and any
MCP servers you configure.

Running tern without a subcommand starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// newLogger builds the CLI logger. Logs go to stderr so they never mix with
// assistant output on stdout.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if debugFlag {
		level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, log.Config{Level: level})
}
