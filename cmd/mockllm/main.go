// Package main provides the CLI entry point for the mockllm gateway.
//
// mockllm serves an OpenAI-compatible chat API backed by configured mock
// models: rule-based canned replies, JavaScript handlers, and an
// interactive queue a human answers live from the dashboard.
//
// # Basic Usage
//
// Start the server with the default config directory:
//
//	mockllm serve
//
// Point at another config tree and follow edits:
//
//	mockllm serve --config-dir ./config --watch
//
// A missing config directory is scaffolded with a working example setup
// on first start.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/llm-lab/mockllm/internal/observability"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.2.0"
var version = "dev"

func main() {
	slog.SetDefault(observability.NewLogger(os.Stderr, slog.LevelInfo))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var opts serveOptions

	rootCmd := &cobra.Command{
		Use:   "mockllm",
		Short: "mockllm - OpenAI-compatible mock LLM gateway",
		Long: `mockllm serves a configurable mock of the OpenAI chat API.

Models are defined in yaml under a config directory: static models answer
from match rules, script models run a JavaScript handler, and interactive
models park the request until a human replies from the dashboard at /.

Running mockllm with no subcommand starts the server.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigDir, "config-dir", "c", "./config",
		"Path to the config directory")
	rootCmd.PersistentFlags().StringVar(&opts.Listen, "listen", "",
		"Override server.listen from config.yaml")
	rootCmd.PersistentFlags().BoolVar(&opts.Watch, "watch", false,
		"Reload automatically when config files change")
	rootCmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mockllm gateway server",
		Example: `  # Start with the default ./config directory
  mockllm serve

  # Follow config edits without restarting
  mockllm serve --config-dir /etc/mockllm --watch`,
		RunE: rootCmd.RunE,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the mockllm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)
	return rootCmd
}
