package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"notary/internal/app/bootstrap"
	"notary/internal/platform/config"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Format     string // "json" | "text"

	// Open builds the runtime the commands act on. Tests swap it for an
	// in-memory runtime.
	Open func(ctx context.Context, logger *slog.Logger) (*bootstrap.Runtime, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for notaryctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: openConfiguredRuntime})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notaryctl",
		Short: "Operate the notary record anchoring store",
		Long:  "Create, inspect and list records anchored on the ledger, and migrate the record store schema.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.ConfigFile != "" {
				return os.Setenv(config.ConfigFileEnv, opts.ConfigFile)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML config file (overrides "+config.ConfigFileEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

func openConfiguredRuntime(ctx context.Context, logger *slog.Logger) (*bootstrap.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return bootstrap.BuildRuntime(ctx, cfg, logger.With("service", cfg.ServiceName, "process", "notaryctl"))
}

func commandLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
