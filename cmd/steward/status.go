package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/steward/internal/config"
	"github.com/haasonsaas/steward/internal/taskapi"
)

func buildStatusCmd() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check configuration and dependencies",
		Long: `Validate the configuration and probe the service's dependencies.

Checks performed:
- Configuration file parses and validates
- Conversation store is reachable
- Task service answers its health endpoint
- LLM provider credentials are configured`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "steward %s (commit: %s, built: %s)\n\n", version, commit, date)

			cfg, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(out, "Config: FAIL\n")
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Fprintf(out, "Config: OK (%s)\n", configPath)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			failures := 0

			store, err := openStore(cfg)
			if err != nil {
				failures++
				fmt.Fprintf(out, "Database (%s): FAIL (%v)\n", cfg.Database.Driver, err)
			} else {
				if err := store.Ping(ctx); err != nil {
					failures++
					fmt.Fprintf(out, "Database (%s): FAIL (%v)\n", cfg.Database.Driver, err)
				} else {
					fmt.Fprintf(out, "Database (%s): OK\n", cfg.Database.Driver)
				}
				_ = store.Close()
			}

			client, err := taskapi.NewClient(taskapi.Config{
				BaseURL: cfg.Tasks.BaseURL,
				Timeout: cfg.Tasks.Timeout,
			})
			if err != nil {
				failures++
				fmt.Fprintf(out, "Task service: FAIL (%v)\n", err)
			} else if err := client.Ping(ctx); err != nil {
				failures++
				fmt.Fprintf(out, "Task service: FAIL (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Task service: OK (%s)\n", cfg.Tasks.BaseURL)
			}

			// Credential presence only; the key itself is never printed.
			provider := cfg.LLM.DefaultProvider
			if provider == "bedrock" {
				fmt.Fprintf(out, "LLM provider: OK (bedrock, region %s)\n", cfg.LLM.Providers[provider].Region)
			} else {
				fmt.Fprintf(out, "LLM provider: OK (%s, api key set)\n", provider)
			}

			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			fmt.Fprintln(out, "\nAll checks passed.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")

	return cmd
}
