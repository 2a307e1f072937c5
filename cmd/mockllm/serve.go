package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/llm-lab/mockllm/internal/config"
	"github.com/llm-lab/mockllm/internal/interactive"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/observability"
	"github.com/llm-lab/mockllm/internal/server"
)

type serveOptions struct {
	ConfigDir string
	Listen    string
	Watch     bool
	Debug     bool
}

func runServe(ctx context.Context, opts serveOptions) error {
	if opts.Debug {
		slog.SetDefault(observability.NewLogger(os.Stderr, slog.LevelDebug))
	}

	slog.Info("starting mockllm gateway",
		"version", version,
		"config_dir", opts.ConfigDir,
		"watch", opts.Watch,
	)

	if err := config.Scaffold(opts.ConfigDir); err != nil {
		return fmt.Errorf("failed to scaffold config dir: %w", err)
	}

	metrics := observability.NewMetrics()
	handle, err := kernel.Open(opts.ConfigDir, metrics)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer handle.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.Watch {
		go func() {
			if err := handle.Watch(ctx); err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		}()
	}

	srv := server.New(server.Options{
		Handle:  handle,
		Hub:     interactive.NewHub(),
		Metrics: metrics,
		Logger:  slog.Default(),
		Version: version,
	})

	addr := handle.Snapshot().Config.Server.Listen
	if opts.Listen != "" {
		addr = opts.Listen
	}
	if err := srv.Start(addr); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
