// Package commands defines all Cobra CLI commands for the agrai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/agrai/agrai-go/internal/audit"
	"github.com/agrai/agrai-go/internal/config"
	"github.com/agrai/agrai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agrai",
		Short: "Agrai — a farming assistant that remembers your conversations",
		Long: `Agrai is an AI assistant for farmers with per-user semantic memory.

Every answered question is embedded and stored, so later questions are
grounded in what each farmer has asked before. Ask one-shot questions from
the terminal or run the HTTP server for API access.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.agrai/config.yaml).
See 'agrai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.agrai/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewMigrateCmd(),
		NewMemoryCmd(),
		NewVersionCmd(),
	)

	return root
}
