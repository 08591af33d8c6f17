package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	httptransport "notary/contexts/ledger-anchoring/record-anchoring-service/transport/http"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // request rejected (bad content, unknown record)
	ExitCommandError = 2 // configuration or store could not be reached
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func writeRecords(w io.Writer, format string, records []httptransport.RecordDTO) error {
	if format == "json" {
		return writeJSON(w, records)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD_ID\tSTATUS\tRETRIES\tLEDGER_SIGNATURE\tCREATED_AT")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			record.RecordID,
			record.AnchoringStatus,
			record.RetryCount,
			dashIfEmpty(record.LedgerSignature),
			record.CreatedAt,
		)
	}
	return tw.Flush()
}

func writeRecord(w io.Writer, format string, record httptransport.RecordDTO) error {
	if format == "json" {
		return writeJSON(w, record)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "record_id:\t%s\n", record.RecordID)
	fmt.Fprintf(tw, "status:\t%s\n", record.AnchoringStatus)
	fmt.Fprintf(tw, "digest:\t%s\n", record.Digest)
	fmt.Fprintf(tw, "ledger_signature:\t%s\n", dashIfEmpty(record.LedgerSignature))
	fmt.Fprintf(tw, "retry_count:\t%d\n", record.RetryCount)
	fmt.Fprintf(tw, "next_eligible_at:\t%s\n", dashIfEmpty(record.NextEligibleAt))
	fmt.Fprintf(tw, "last_error:\t%s\n", dashIfEmpty(record.LastError))
	fmt.Fprintf(tw, "created_at:\t%s\n", record.CreatedAt)
	fmt.Fprintf(tw, "updated_at:\t%s\n", record.UpdatedAt)
	return tw.Flush()
}

func writeJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func dashIfEmpty(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
