package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternlab/tern/internal/app"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(_ *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, newLogger(), displayHooks())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Store.CreateSession(ctx, "")
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	answer, err := a.Engine.Turn(ctx, sess.ID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}
