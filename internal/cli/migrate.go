package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the record and outbox tables",
		Long: `Run schema migration against the configured SQL store (postgres or sqlite).

Examples:
  STORE_DRIVER=postgres POSTGRES_DSN=postgres://... notaryctl migrate
  notaryctl migrate --config ./notary.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := rootOpts.Open(ctx, commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open runtime", err)
			}
			defer rt.Close()

			if rt.Repository == nil {
				return WrapExitError(ExitCommandError, "migrate needs a SQL store", errors.New("STORE_DRIVER is memory"))
			}
			if err := rt.Repository.Migrate(ctx); err != nil {
				return WrapExitError(ExitCommandError, "migration failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrated anchoring_records, anchoring_outbox")
			return nil
		},
	}
}
