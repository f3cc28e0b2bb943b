package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternlab/tern/internal/agent"
	"github.com/ternlab/tern/internal/app"
)

var (
	sessionsLimitFlag int32
	searchLimitFlag   int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE:  runSessionsList,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search past messages by meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsSearch,
}

func init() {
	sessionsListCmd.Flags().Int32Var(&sessionsLimitFlag, "limit", 20, "maximum sessions to list")
	sessionsSearchCmd.Flags().IntVar(&searchLimitFlag, "limit", 5, "maximum results to return")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, newLogger(), agent.Hooks{})
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Store.ListSessions(ctx, sessionsLimitFlag, 0)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %s\n", s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), title)
	}
	return nil
}

// runSessionsSearch embeds the query and ranks stored messages by cosine
// similarity.
func runSessionsSearch(_ *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, newLogger(), agent.Hooks{})
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	vec, err := a.Model.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	results, err := a.Store.SearchSimilar(ctx, vec, searchLimitFlag)
	if err != nil {
		return fmt.Errorf("searching sessions: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for _, r := range results {
		fmt.Printf("[%.3f] session %s #%d (%s)\n", r.Score, r.Action.SessionID, r.Action.Seq, r.Action.CreatedAt.Format("2006-01-02"))
		fmt.Printf("    %s\n", firstLine(r.Action.Content, 120))
	}
	return nil
}

// firstLine returns the first line of text, shortened to max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
