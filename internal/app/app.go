// Package app wires the application together: configuration, database,
// session store, model client, the three tool sources, registry, and engine.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ternlab/tern/db"
	"github.com/ternlab/tern/internal/agent"
	"github.com/ternlab/tern/internal/config"
	"github.com/ternlab/tern/internal/database"
	"github.com/ternlab/tern/internal/log"
	"github.com/ternlab/tern/internal/mcp"
	"github.com/ternlab/tern/internal/model"
	"github.com/ternlab/tern/internal/registry"
	"github.com/ternlab/tern/internal/security"
	"github.com/ternlab/tern/internal/session"
	"github.com/ternlab/tern/internal/tools"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// systemPrompt frames the assistant for every chat turn.
const systemPrompt = `You are tern, a capable assistant running in the user's terminal.
Use the available tools when they help answer the question. Prefer reading
files and searching the web over guessing. Be concise.`

// App holds the wired application. Construct with New, release with Close.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Pool     *pgxpool.Pool
	Store    *session.Store
	Model    model.Client
	Registry *registry.Registry
	Engine   *agent.Engine

	hosted   *mcp.Hosted
	external *mcp.Manager
}

// New loads configuration and wires the full application.
func New(ctx context.Context, logger log.Logger, hooks agent.Hooks) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return NewWithConfig(ctx, cfg, logger, hooks)
}

// NewWithConfig wires the application from an already-validated config.
// Any failure here is a startup error; nothing is left running.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger log.Logger, hooks agent.Hooks) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	store, err := session.NewStore(pool, cfg.VectorDim, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session store: %w", err)
	}
	a.Store = store

	gemini, err := model.NewGemini(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating model client: %w", err)
	}
	a.Model = gemini

	local, err := buildLocalTools(logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	hosted, err := buildHostedTools(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.hosted = hosted

	external, err := buildExternalTools(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.external = external

	// Interface conversion keeps unconfigured sources out of the registry.
	var hostedSrc, externalSrc registry.Source
	if hosted != nil {
		hostedSrc = hosted
	}
	if external != nil {
		externalSrc = external
	}
	a.Registry = registry.New(local, hostedSrc, externalSrc, logger)

	engine, err := agent.New(agent.Config{
		Model:      a.Model,
		Tools:      a.Registry,
		Store:      store,
		Logger:     logger,
		Hooks:      hooks,
		System:     systemPrompt,
		MaxRounds:  cfg.MaxRounds,
		MaxHistory: config.NormalizeMaxHistoryMessages(cfg.MaxHistoryMessages),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating chat engine: %w", err)
	}
	a.Engine = engine

	logger.Info("application ready",
		"model", cfg.ModelName, "tools", len(a.Registry.Definitions()))
	return a, nil
}

// Close releases everything in reverse construction order: external
// subprocesses, the hosted session, then the pool.
func (a *App) Close() {
	if a.external != nil {
		a.external.Close()
	}
	if a.hosted != nil {
		if err := a.hosted.Close(); err != nil {
			a.Logger.Warn("closing hosted tools", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func buildLocalTools(logger log.Logger) (*tools.Set, error) {
	pathVal, err := security.NewPathValidator(nil)
	if err != nil {
		return nil, fmt.Errorf("creating path validator: %w", err)
	}

	fileTools, err := tools.NewFileTools(pathVal, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file tools: %w", err)
	}

	all, err := tools.DefaultTools(fileTools)
	if err != nil {
		return nil, fmt.Errorf("building local tools: %w", err)
	}

	set, err := tools.NewSet(all...)
	if err != nil {
		return nil, fmt.Errorf("building local tool set: %w", err)
	}
	return set, nil
}

// buildHostedTools starts the in-process web tool server. An unset SearXNG
// URL disables the hosted source; a set but broken one fails startup.
func buildHostedTools(ctx context.Context, cfg *config.Config, logger log.Logger) (*mcp.Hosted, error) {
	if cfg.SearXNG.BaseURL == "" {
		logger.Debug("searxng not configured, hosted tools disabled")
		return nil, nil
	}

	server, err := mcp.NewServer(mcp.ServerConfig{
		Version:    Version,
		SearXNGURL: cfg.SearXNG.BaseURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating hosted tool server: %w", err)
	}

	hosted, err := mcp.NewHosted(ctx, server, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting hosted tools: %w", err)
	}
	return hosted, nil
}

// buildExternalTools spawns the configured external MCP servers. Any server
// failing to start fails startup; there is no partial connect.
func buildExternalTools(ctx context.Context, cfg *config.Config, logger log.Logger) (*mcp.Manager, error) {
	specs := mcp.LoadServerSpecs(cfg, logger)
	if len(specs) == 0 {
		return nil, nil
	}

	manager := mcp.NewManager(logger)
	for _, spec := range specs {
		if err := manager.AddServer(ctx, spec); err != nil {
			manager.Close()
			return nil, fmt.Errorf("starting external tool server: %w", err)
		}
	}
	return manager, nil
}
