// Command cronhub runs the task automation service: a cron scheduler, an
// MCP tool endpoint for task management and an AI subagent dispatcher.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cronhub/internal/config"
	"cronhub/internal/executor"
	"cronhub/internal/llm"
	"cronhub/internal/logging"
	"cronhub/internal/metrics"
	"cronhub/internal/notify"
	"cronhub/internal/registry"
	"cronhub/internal/scheduler"
	"cronhub/internal/server"
	"cronhub/internal/store"
	"cronhub/internal/subagent"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:     "cronhub",
		Short:   "Cron-driven task automation with AI subagents",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file path")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile)
		},
	}
	root.AddCommand(serve)
	return root
}

// unavailableModel stands in when no API key is configured. Subagent tasks
// in mcp mode fail with a clear message instead of the process refusing to
// start; shell and cli tasks keep working.
type unavailableModel struct{}

func (unavailableModel) CreateMessage(context.Context, *llm.MessagesRequest) (*llm.MessagesResponse, error) {
	return nil, errors.New("ANTHROPIC_API_KEY is not configured")
}

func runServe(configFile string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("cronhub")

	db, err := store.Open(cfg.DBPath, logging.NewComponentLogger("store"))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	reg := registry.New(db, logging.NewComponentLogger("registry"))
	if err := reg.Bootstrap(context.Background(), cfg.ToolServerConfig); err != nil {
		return err
	}

	var model subagent.ModelClient = unavailableModel{}
	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewClient(llm.Config{APIKey: cfg.AnthropicAPIKey}, logging.NewComponentLogger("llm"))
		if err != nil {
			return err
		}
		model = client
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, mcp-mode subagent tasks will fail")
	}

	m := metrics.New()
	mcpExec := subagent.NewMCPExecutor(model, reg, nil, logging.NewComponentLogger("subagent.mcp"))
	cliExec := subagent.NewCLIExecutor(cfg.CLIPath, logging.NewComponentLogger("subagent.cli"))
	dispatcher := subagent.NewDispatcher(mcpExec, cliExec, cliExec, subagent.Defaults{
		Mode:     cfg.SubagentDefaultMode,
		Timeout:  cfg.SubagentTimeout,
		MaxTurns: cfg.SubagentMaxTurns,
		Model:    cfg.Model,
	}, logging.NewComponentLogger("subagent"), subagent.WithObserver(m))

	notifier := notify.New(reg, nil, logging.NewComponentLogger("notify"))
	exec := executor.New(db, dispatcher, notifier, logging.NewComponentLogger("executor"))
	sched := scheduler.New(db, exec, logging.NewComponentLogger("scheduler"), scheduler.Options{
		Interval:      cfg.TickInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		Metrics:       m,
	})

	srv := server.New(server.Deps{
		Store:     db,
		Registry:  reg,
		Runner:    exec,
		Scheduler: sched,
		Metrics:   m.Handler(),
		Logger:    logging.NewComponentLogger("server"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg.CheckHealth(ctx)
	sched.Start(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("cronhub %s listening on %s (db=%s)", version, httpServer.Addr, cfg.DBPath)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown: %v", err)
	}
	return nil
}
