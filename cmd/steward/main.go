// Package main provides the CLI entry point for the steward chat service.
//
// Steward is a conversational task assistant: it fronts a task management
// backend with an LLM-driven chat API, letting users create, query, and
// update their tasks in natural language.
//
// # Basic Usage
//
// Start the server:
//
//	steward serve --config steward.yaml
//
// Manage database migrations (PostgreSQL only; SQLite self-initializes):
//
//	steward migrate up
//	steward migrate status
//
// Check configuration and dependencies:
//
//	steward status
//
// # Environment Variables
//
// Config files may reference environment variables with ${VAR} syntax, so
// secrets like ${STEWARD_JWT_SECRET} and ${ANTHROPIC_API_KEY} never live in
// the file itself. STEWARD_CONFIG sets the default config path.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigName = "steward.yaml"

func main() {
	// JSON logs by default; serve replaces this with the configured logger.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "steward",
		Short: "Steward - conversational task assistant",
		Long: `Steward fronts a task management service with an LLM-driven chat API.

Users talk to it over HTTP (single response or streamed events); the agent
loop plans tool calls against the task backend and answers in natural
language. Conversations persist in PostgreSQL or SQLite.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildStatusCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}

// resolveConfigPath picks the config file: the explicit flag wins, then
// STEWARD_CONFIG, then steward.yaml in the working directory.
func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("STEWARD_CONFIG")); env != "" {
		return env
	}
	return defaultConfigName
}
