package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/memory"
	"github.com/parley-chat/parley/internal/server"
	"github.com/parley-chat/parley/internal/session"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if debug {
				cfg.Debug = true
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := telemetry.NewLogger(os.Stdout, level,
		os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("OPENAI_API_KEY"))

	backing, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	client, model := llm.NewClientForModel(cfg.Model)

	registry := session.NewRegistry(backing, client, session.Config{
		Model:        model,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	},
		session.WithLogger(logger),
		session.WithPolicy(policyFor(cfg, client, model)),
		session.WithTracer(telemetry.NewTracer(telemetry.LogExporter(logger))),
	)

	srv := server.New(registry, cfg.AllowedOrigins,
		server.WithLogger(logger),
		server.WithTurnTimeout(cfg.TurnTimeout),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", cfg.Addr),
			slog.String("model", model),
			slog.String("store", string(cfg.Store.Backend)))
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	// Stop accepting requests first, then wait for in-flight turns to
	// finish their durable writes.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := registry.Drain(shutdownCtx); err != nil {
		logger.Error("session drain", "error", err)
		return err
	}
	return nil
}

func openStore(cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case config.BackendFile:
		s, err := store.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return s, nil, nil
	case config.BackendMemory:
		return store.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func policyFor(cfg *config.Config, client llm.Client, model string) memory.Policy {
	switch memory.Strategy(cfg.Memory.Policy) {
	case memory.StrategySlidingWindow:
		return memory.NewSlidingWindow(cfg.Memory.WindowTurns)
	case memory.StrategySummary:
		return memory.NewSummary(cfg.Memory.SummaryThreshold, client, model)
	default:
		return memory.SendAll{}
	}
}
