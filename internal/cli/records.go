package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	httpadapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/http"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	httptransport "notary/contexts/ledger-anchoring/record-anchoring-service/transport/http"

	"github.com/spf13/cobra"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Status string
	Limit  int
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "create [file]",
		Short: "Store a JSON record for anchoring",
		Long: `Store a JSON record as pending. The worker anchors it in the background.

Content comes from --data, a file argument, or stdin when the argument is "-".

Examples:
  notaryctl create --data '{"invoice":"A-17","total":"19.99"}'
  notaryctl create ./record.json
  cat record.json | notaryctl create -`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), data, args)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read record content", err)
			}

			ctx := cmd.Context()
			rt, err := rootOpts.Open(ctx, commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open runtime", err)
			}
			defer rt.Close()

			record, err := rt.Module.CreateRecord(ctx, content)
			if err != nil {
				return recordError("create record", err)
			}
			return writeRecord(cmd.OutOrStdout(), rootOpts.Format, httpadapter.MapRecord(record))
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "inline JSON content")
	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <record-id>",
		Short:         "Show one record and its anchoring status",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := rootOpts.Open(ctx, commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open runtime", err)
			}
			defer rt.Close()

			record, err := rt.Module.GetRecord(ctx, args[0])
			if err != nil {
				return recordError("get record", err)
			}
			return writeRecord(cmd.OutOrStdout(), rootOpts.Format, httpadapter.MapRecord(record))
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, oldest first",
		Long: `List records, oldest first, optionally filtered by anchoring status.

Examples:
  notaryctl list --status failed
  notaryctl list --status submitted --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := opts.Open(ctx, commandLogger(cmd.ErrOrStderr()))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open runtime", err)
			}
			defer rt.Close()

			records, err := rt.Module.ListRecords(ctx, opts.Status, opts.Limit)
			if err != nil {
				return recordError("list records", err)
			}
			items := make([]httptransport.RecordDTO, 0, len(records))
			for _, record := range records {
				items = append(items, httpadapter.MapRecord(record))
			}
			return writeRecords(cmd.OutOrStdout(), opts.Format, items)
		},
	}

	cmd.Flags().StringVarP(&opts.Status, "status", "s", "", "filter by status (pending, pending_submission, submitted, confirmed, failed)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum records (max 500)")
	return cmd
}

func readContent(stdin io.Reader, inline string, args []string) ([]byte, error) {
	if strings.TrimSpace(inline) != "" {
		if len(args) > 0 {
			return nil, errors.New("use either --data or a file argument, not both")
		}
		return []byte(inline), nil
	}
	if len(args) == 0 {
		return nil, errors.New("record content is required (--data, file or -)")
	}
	if args[0] == "-" {
		return io.ReadAll(io.LimitReader(stdin, 1<<20))
	}
	return os.ReadFile(args[0])
}

func recordError(operation string, err error) error {
	switch {
	case errors.Is(err, domainerrors.ErrInvalidRecordContent),
		errors.Is(err, domainerrors.ErrInvalidListFilter),
		errors.Is(err, domainerrors.ErrRecordNotFound):
		return WrapExitError(ExitFailure, operation+" rejected", err)
	default:
		return WrapExitError(ExitCommandError, operation+" failed", err)
	}
}
