// Package main provides the CLI entry point for coda, a terminal-resident
// coding assistant: one conversation engine loop wired to a registry of
// built-in tools, a lifecycle hook gate, and a token accountant/compactor
// pair, fronted by Anthropic or OpenAI as the model provider.
//
// # Basic usage
//
// Start an interactive run in the current directory:
//
//	coda run
//
// Inspect the resolved, defaulted configuration:
//
//	coda config show
//
// List the tools a run would have available:
//
//	coda tools list
//
// # Environment variables
//
//   - CODA_CONFIG: path to the project config file (default: coda.yaml)
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: model provider credentials
//
// A .env file in the working directory, if present, is loaded before any
// of the above are read.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "coda: warning: failed to load .env: %v\n", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
