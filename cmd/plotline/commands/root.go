// Package commands defines all Cobra CLI commands for the plotline binary.
package commands

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/plotline-go/internal/audit"
	"github.com/54b3r/plotline-go/internal/config"
	"github.com/54b3r/plotline-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plotline",
		Short: "Plotline: retrieval and planning context for collaborative book writing",
		Long: `Plotline indexes a book's planning data and manuscript for semantic search,
assembles the bounded planning context handed to the writing assistant, and
serves both to the book editor over HTTP.

Configuration comes from environment variables, a .env file in the working
directory, and an optional YAML file (~/.plotline/config.yaml). Environment
variables always win.
See 'plotline --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// .env is optional; a malformed one is an error.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.plotline/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewReindexCmd(),
		NewSearchCmd(),
		NewContextCmd(),
		NewSuggestCmd(),
		NewImportCmd(),
		NewVersionCmd(),
	)

	return root
}
