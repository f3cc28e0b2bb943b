// Package agent implements the chat engine: the turn loop that drives the
// model, executes requested tools through the registry, and records every
// step in the session store.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/model"
	"github.com/ternlab/tern/internal/session"
	"github.com/ternlab/tern/internal/tools"
)

// DefaultMaxRounds caps tool-call rounds within one turn.
const DefaultMaxRounds = 8

// autoTitleThreshold is the message count at which an untitled session gets
// a title derived from its first user message.
const autoTitleThreshold = 4

// maxTitleLen bounds auto-generated session titles.
const maxTitleLen = 60

// ErrRoundLimit is returned when a turn keeps requesting tools past the
// round cap instead of producing a final answer.
var ErrRoundLimit = errors.New("tool-call round limit exceeded")

// turnState tracks where the engine is within a turn. Used in logs only.
type turnState int

const (
	stateIdle turnState = iota
	stateAwaitingModel
	stateExecutingTools
	stateDone
)

func (s turnState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingModel:
		return "awaiting_model"
	case stateExecutingTools:
		return "executing_tools"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Store is the engine's view of session persistence.
type Store interface {
	AddMessage(ctx context.Context, sessionID uuid.UUID, role, content string) (uuid.UUID, error)
	AddToolCall(ctx context.Context, sessionID uuid.UUID, callID, name string, args json.RawMessage) (uuid.UUID, error)
	AddToolResult(ctx context.Context, sessionID uuid.UUID, callID, name, result string, isError bool) (uuid.UUID, error)
	AddThinking(ctx context.Context, sessionID uuid.UUID, content string) (uuid.UUID, error)
	AddEmbedding(ctx context.Context, actionID uuid.UUID, vec []float32) error
	History(ctx context.Context, sessionID uuid.UUID, limit int32) ([]session.Message, error)
	MessageCount(ctx context.Context, sessionID uuid.UUID) (int, error)
	FirstUserMessage(ctx context.Context, sessionID uuid.UUID) (string, error)
	GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error)
	SetTitle(ctx context.Context, id uuid.UUID, title string) error
}

// Runner is the engine's view of the tool registry.
type Runner interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Hooks receive turn events for display. All fields are optional.
type Hooks struct {
	OnThinking   func(text string)
	OnToolCall   func(name string, args json.RawMessage)
	OnToolResult func(name, result string, isError bool)
}

// Config holds the engine dependencies and tuning knobs.
type Config struct {
	Model     model.Client
	Tools     Runner
	Store     Store
	Logger    log.Logger
	Hooks     Hooks
	System    string
	MaxRounds int
	// MaxHistory caps how many messages are replayed into the model per
	// turn. Zero means no cap.
	MaxHistory int32
	// RateLimiter throttles model calls. Nil installs the default of
	// 10 req/s with a burst of 30.
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Model == nil {
		return errors.New("model client is required")
	}
	if cfg.Tools == nil {
		return errors.New("tool runner is required")
	}
	if cfg.Store == nil {
		return errors.New("session store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Engine drives chat turns. All configuration is captured immutably at
// construction; an Engine processes at most one turn per session at a time.
type Engine struct {
	model     model.Client
	tools     Runner
	store     Store
	logger    log.Logger
	hooks     Hooks
	system    string
	maxRounds int
	maxHist   int32
	limiter   *rate.Limiter
}

// New creates an engine from the config, applying defaults for the optional
// knobs.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	e := &Engine{
		model:     cfg.Model,
		tools:     cfg.Tools,
		store:     cfg.Store,
		logger:    cfg.Logger,
		hooks:     cfg.Hooks,
		system:    cfg.System,
		maxRounds: maxRounds,
		maxHist:   cfg.MaxHistory,
		limiter:   limiter,
	}

	e.logger.Info("chat engine initialized",
		"tools", len(cfg.Tools.Definitions()),
		"max_rounds", maxRounds)
	return e, nil
}

// Turn runs one full turn: persist the user input, loop through model calls
// and tool executions until the model answers without tool requests, and
// return the final text.
//
// Error policy: model call failures and store write failures abort the turn;
// tool execution failures become error tool results fed back to the model;
// embedding failures are logged and ignored.
func (e *Engine) Turn(ctx context.Context, sessionID uuid.UUID, input string) (string, error) {
	userMsgID, err := e.store.AddMessage(ctx, sessionID, session.RoleUser, input)
	if err != nil {
		return "", fmt.Errorf("persisting user message: %w", err)
	}
	e.embedBestEffort(ctx, userMsgID, input)

	history, err := e.store.History(ctx, sessionID, e.maxHist)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}
	messages := toModelMessages(history)

	defs := e.tools.Definitions()

	for round := 0; round < e.maxRounds; round++ {
		e.logger.Debug("turn state",
			"state", stateAwaitingModel, "session_id", sessionID, "round", round)

		if err := e.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		reply, err := e.model.Chat(ctx, model.ChatRequest{
			System:   e.system,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}

		if reply.Thinking != "" {
			if _, err := e.store.AddThinking(ctx, sessionID, reply.Thinking); err != nil {
				return "", fmt.Errorf("persisting thinking: %w", err)
			}
			if e.hooks.OnThinking != nil {
				e.hooks.OnThinking(reply.Thinking)
			}
		}

		if len(reply.ToolCalls) == 0 {
			msgID, err := e.store.AddMessage(ctx, sessionID, session.RoleAssistant, reply.Text)
			if err != nil {
				return "", fmt.Errorf("persisting assistant message: %w", err)
			}
			e.embedBestEffort(ctx, msgID, reply.Text)
			e.maybeAutoTitle(ctx, sessionID)

			e.logger.Debug("turn state", "state", stateDone, "session_id", sessionID)
			return reply.Text, nil
		}

		messages, err = e.executeRound(ctx, sessionID, reply, messages)
		if err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%w: %d rounds without a final answer", ErrRoundLimit, e.maxRounds)
}

// executeRound persists the assistant turn that requested tools, runs each
// requested tool in order, and extends the in-memory history with the
// results.
func (e *Engine) executeRound(ctx context.Context, sessionID uuid.UUID, reply *model.Reply, messages []model.Message) ([]model.Message, error) {
	e.logger.Debug("turn state",
		"state", stateExecutingTools, "session_id", sessionID, "calls", len(reply.ToolCalls))

	// Downstream consumers never see an empty content field.
	placeholder := reply.Text
	if placeholder == "" {
		placeholder = " "
	}
	if _, err := e.store.AddMessage(ctx, sessionID, session.RoleAssistant, placeholder); err != nil {
		return nil, fmt.Errorf("persisting assistant tool-call message: %w", err)
	}

	messages = append(messages, model.Message{
		Role:      model.RoleAssistant,
		Content:   reply.Text,
		ToolCalls: reply.ToolCalls,
	})

	// Sequential by design: later calls may depend on side effects of
	// earlier ones.
	results := make([]model.ToolResult, 0, len(reply.ToolCalls))
	for _, call := range reply.ToolCalls {
		if _, err := e.store.AddToolCall(ctx, sessionID, call.ID, call.Name, call.Args); err != nil {
			return nil, fmt.Errorf("persisting tool call %s: %w", call.Name, err)
		}
		if e.hooks.OnToolCall != nil {
			e.hooks.OnToolCall(call.Name, call.Args)
		}

		output, execErr := e.tools.Execute(ctx, call.Name, call.Args)
		isError := execErr != nil
		if isError {
			output = execErr.Error()
			e.logger.Warn("tool execution failed",
				"tool", call.Name, "session_id", sessionID, "error", execErr)
		}

		if _, err := e.store.AddToolResult(ctx, sessionID, call.ID, call.Name, output, isError); err != nil {
			return nil, fmt.Errorf("persisting tool result %s: %w", call.Name, err)
		}
		if e.hooks.OnToolResult != nil {
			e.hooks.OnToolResult(call.Name, output, isError)
		}

		results = append(results, model.ToolResult{
			ID:      call.ID,
			Name:    call.Name,
			Content: output,
			IsError: isError,
		})
	}

	return append(messages, model.Message{Role: model.RoleUser, ToolResults: results}), nil
}

// embedBestEffort generates and stores an embedding for a persisted message.
// Failure never aborts the turn.
func (e *Engine) embedBestEffort(ctx context.Context, actionID uuid.UUID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	vec, err := e.model.Embed(ctx, text)
	if err != nil {
		e.logger.Warn("embedding generation failed", "action_id", actionID, "error", err)
		return
	}
	if err := e.store.AddEmbedding(ctx, actionID, vec); err != nil {
		e.logger.Warn("embedding persistence failed", "action_id", actionID, "error", err)
	}
}

// maybeAutoTitle titles an untitled session from its first user message once
// the conversation has enough substance. Best effort only.
func (e *Engine) maybeAutoTitle(ctx context.Context, sessionID uuid.UUID) {
	count, err := e.store.MessageCount(ctx, sessionID)
	if err != nil || count < autoTitleThreshold {
		return
	}

	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil || sess.Title != "" {
		return
	}

	first, err := e.store.FirstUserMessage(ctx, sessionID)
	if err != nil || first == "" {
		return
	}

	if err := e.store.SetTitle(ctx, sessionID, truncateTitle(first)); err != nil {
		e.logger.Warn("auto-title failed", "session_id", sessionID, "error", err)
	}
}

// toModelMessages maps replayed history to model messages, dropping roles
// the model boundary does not speak.
func toModelMessages(history []session.Message) []model.Message {
	messages := make([]model.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case session.RoleUser:
			messages = append(messages, model.Message{Role: model.RoleUser, Content: m.Content})
		case session.RoleAssistant:
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: m.Content})
		}
	}
	return messages
}

// truncateTitle shortens text to a single-line title.
func truncateTitle(text string) string {
	title := strings.Join(strings.Fields(text), " ")
	runes := []rune(title)
	if len(runes) <= maxTitleLen {
		return title
	}
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "..."
}
