// Command nodeloom runs the agent workflow engine as an MCP server over
// stdio. Configuration comes from ~/.nodeloom/settings.json and environment
// variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/internal/inference"
	"github.com/nodeloom/nodeloom/internal/logging"
	"github.com/nodeloom/nodeloom/internal/nodes"
	"github.com/nodeloom/nodeloom/internal/scheduler"
	"github.com/nodeloom/nodeloom/internal/script"
	"github.com/nodeloom/nodeloom/internal/store"
	"github.com/nodeloom/nodeloom/internal/streaming"
	"github.com/nodeloom/nodeloom/internal/tools"
	"github.com/nodeloom/nodeloom/internal/validation"
	"github.com/nodeloom/nodeloom/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "nodeloom:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	// Tools.
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.HTTPConfig{}); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}

	// Inference.
	provider := inference.NewQueue(
		inference.NewOpenAIProvider(inference.OpenAIConfig{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			DefaultModel: cfg.DefaultModel,
		}),
		cfg.ModelConcurrency,
		logger,
	)

	// Expression engines and the script sandbox.
	celEngine, err := expressions.NewCELEngine()
	if err != nil {
		return fmt.Errorf("build cel engine: %w", err)
	}
	deps := nodes.Deps{
		Provider: provider,
		Tools:    registry,
		Sandbox:  script.NewSandbox(script.DefaultTimeout),
		Interp:   expressions.NewInterpolator(),
		Expr:     expressions.NewExprEngine(),
		CEL:      celEngine,
		JQ:       expressions.NewGoJQEngine(),
		Logger:   logger,
	}

	// Engine.
	hub := streaming.NewMemoryHub()
	runner := engine.NewRunner(engine.NewRunRegistry(), nodes.NewExecutors(deps), engine.RunnerOptions{
		MaxSteps:  cfg.MaxSteps,
		Publisher: hub,
		Recorder:  store.NewRecorder(st),
		Logger:    logger,
	})

	validator, err := validation.NewAgentValidator()
	if err != nil {
		return fmt.Errorf("build validator: %w", err)
	}

	// Scheduler.
	if cfg.Scheduler {
		sched := scheduler.NewScheduler(st, runner, logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	// MCP server over stdio.
	srv := mcp.NewLoomServer(mcp.LoomServerDeps{
		Runner:    runner,
		Store:     st,
		Validator: validator,
		Hub:       hub,
		Logger:    logger,
	})
	notifier := mcp.NewLogNotifier(srv.MCPServer(), srv.Sessions(), hub, logger)
	if err := notifier.Start(ctx); err != nil {
		return fmt.Errorf("start log notifier: %w", err)
	}

	logger.Info("nodeloom started",
		slog.String("db", cfg.DBPath),
		slog.String("model", cfg.DefaultModel),
		slog.Bool("scheduler", cfg.Scheduler),
	)
	return srv.Serve(ctx)
}

// newLogger builds the process logger. Output goes to stderr so it never
// collides with the stdio MCP transport. Run, agent, and node IDs flow in
// from context on every record.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(handler))
	slog.SetDefault(logger)
	return logger
}
