package errors

import "errors"

var (
	ErrRecordNotFound           = errors.New("record not found")
	ErrInvalidRecordContent     = errors.New("invalid record content")
	ErrInvalidListFilter        = errors.New("invalid list filter")
	ErrInvalidTransition        = errors.New("invalid anchoring status transition")
	ErrRepositoryInvariantBroke = errors.New("repository invariant violated")

	// ErrStoreUnavailable aborts a worker cycle without mutating any record.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrClaimConflict means another worker holds the record; callers skip it.
	ErrClaimConflict = errors.New("record already claimed")

	ErrLedgerRetryable = errors.New("ledger retryable failure")
	ErrLedgerFatal     = errors.New("ledger fatal failure")
	ErrSignerFailure   = errors.New("signer failure")

	// ErrSignerUnavailable is a transient signer outage; the attempt is retried.
	ErrSignerUnavailable = errors.New("signer unavailable")
)
