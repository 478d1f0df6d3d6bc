package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgehand/forgehand/internal/backend"
	"github.com/forgehand/forgehand/internal/config"
	"github.com/forgehand/forgehand/internal/gitops"
	"github.com/forgehand/forgehand/internal/job"
	"github.com/forgehand/forgehand/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that accepts code-change requests.

Endpoints:
  POST /webhook  {"repo": "...", "prompt": "..."} - run a code-change job
  GET  /health   - liveness and uptime

Required environment:
  GITHUB_USERNAME    owner namespace for target repositories
  GITHUB_TOKEN       git push credential
  ANTHROPIC_API_KEY  generative backend credential`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)

		// Fail fast on missing credentials rather than on the first job.
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		git, err := gitops.NewGit(ctx)
		if err != nil {
			return err
		}
		generator, err := backend.NewClaude(cfg.AnthropicAPIKey, cfg.Model, cfg.BackendTimeout)
		if err != nil {
			return err
		}

		runner := job.NewRunner(cfg, git, generator)
		srv := server.New(cfg.Port, runner)

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s forgehand listening on port %d (workspace: %s)\n",
			green("✓"), cfg.Port, cfg.WorkspaceDir)

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
