package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ternlab/tern/internal/agent"
	"github.com/ternlab/tern/internal/app"
)

var chatSessionFlag string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionFlag, "session", "", "resume an existing session by ID")
	rootCmd.AddCommand(chatCmd)
}

// displayHooks print turn progress so the user sees what the assistant is
// doing between answers.
func displayHooks() agent.Hooks {
	return agent.Hooks{
		OnThinking: func(text string) {
			fmt.Fprintf(os.Stderr, "\n[thinking] %s\n", text)
		},
		OnToolCall: func(name string, args json.RawMessage) {
			fmt.Fprintf(os.Stderr, "[tool] %s %s\n", name, string(args))
		},
		OnToolResult: func(name, result string, isError bool) {
			if isError {
				fmt.Fprintf(os.Stderr, "[tool] %s failed: %s\n", name, result)
			}
		},
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, newLogger(), displayHooks())
	if err != nil {
		return err
	}
	defer a.Close()

	sessionID, err := resolveSession(ctx, a)
	if err != nil {
		return err
	}

	fmt.Printf("tern %s | session %s | type 'exit' to quit\n", app.Version, sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		answer, err := a.Engine.Turn(ctx, sessionID, input)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Printf("\n%s\n\n", answer)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// resolveSession resumes the session named by --session or creates a fresh
// untitled one.
func resolveSession(ctx context.Context, a *app.App) (uuid.UUID, error) {
	if chatSessionFlag == "" {
		sess, err := a.Store.CreateSession(ctx, "")
		if err != nil {
			return uuid.Nil, fmt.Errorf("creating session: %w", err)
		}
		return sess.ID, nil
	}

	id, err := uuid.Parse(chatSessionFlag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session ID %q: %w", chatSessionFlag, err)
	}
	if _, err := a.Store.GetSession(ctx, id); err != nil {
		return uuid.Nil, fmt.Errorf("resuming session %s: %w", id, err)
	}
	return id, nil
}
