// forgehand is a webhook-driven coding agent: it receives a repository
// name and a task, asks a generative backend for whole-file changes,
// applies them to a local working copy, and commits and pushes the result.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "forgehand",
	Short: "Webhook-driven automated code-change agent",
	Long: `forgehand listens for webhook requests naming a target repository and a
natural-language task. For each request it clones or updates the
repository, sends its full content to a generative backend, applies the
proposed file operations, and commits and pushes any resulting changes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "forgehand.yaml",
		"path to an optional YAML config file (env vars take precedence)")
}

// setupLogging configures the global zerolog logger.
func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
