package services

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
)

type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeRetryable OutcomeKind = "retryable"
	OutcomeFatal     OutcomeKind = "fatal"
)

// SubmissionOutcome is the classified result of one ledger submission attempt.
type SubmissionOutcome struct {
	Kind        OutcomeKind
	SignatureID string
	Err         error
}

// ConfirmationState is what the ledger reports about a previously accepted submission.
type ConfirmationState string

const (
	ConfirmationConfirmed ConfirmationState = "confirmed"
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationUnknown   ConfirmationState = "unknown"
)

var transitions = map[entities.AnchoringStatus][]entities.AnchoringStatus{
	entities.AnchoringStatusPending: {
		entities.AnchoringStatusPendingSubmission,
		entities.AnchoringStatusSubmitted,
		entities.AnchoringStatusFailed,
	},
	entities.AnchoringStatusPendingSubmission: {
		entities.AnchoringStatusPendingSubmission,
		entities.AnchoringStatusSubmitted,
		entities.AnchoringStatusFailed,
	},
	entities.AnchoringStatusSubmitted: {
		entities.AnchoringStatusSubmitted,
		entities.AnchoringStatusConfirmed,
	},
}

// CanTransition reports whether the status table allows from -> to.
func CanTransition(from entities.AnchoringStatus, to entities.AnchoringStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ClassifySubmission maps a ledger/signer result onto an outcome. Signer failures
// and ledger-fatal errors cannot be fixed by resubmitting identical content;
// anything else (network, timeout, rate limit, unknown) is retried.
func ClassifySubmission(signatureID string, err error) SubmissionOutcome {
	if err == nil {
		if strings.TrimSpace(signatureID) == "" {
			return SubmissionOutcome{
				Kind: OutcomeRetryable,
				Err:  errors.Join(domainerrors.ErrLedgerRetryable, errors.New("ledger returned empty signature")),
			}
		}
		return SubmissionOutcome{Kind: OutcomeSucceeded, SignatureID: signatureID}
	}
	if errors.Is(err, domainerrors.ErrLedgerFatal) || errors.Is(err, domainerrors.ErrSignerFailure) {
		return SubmissionOutcome{Kind: OutcomeFatal, Err: err}
	}
	return SubmissionOutcome{Kind: OutcomeRetryable, Err: err}
}

// ApplySubmissionOutcome advances a submittable record after one attempt.
// Every attempt counts against retry_count, successful or not.
func ApplySubmissionOutcome(
	record entities.Record,
	outcome SubmissionOutcome,
	policy RetryPolicy,
	now time.Time,
) (entities.Record, error) {
	if !record.Status.Submittable() {
		return record, domainerrors.ErrInvalidTransition
	}
	policy = policy.Normalized()
	now = now.UTC()

	next := record
	next.RetryCount = record.RetryCount + 1
	next.UpdatedAt = now
	next.LeaseOwner = ""
	next.LeaseExpiresAt = nil

	switch outcome.Kind {
	case OutcomeSucceeded:
		if strings.TrimSpace(outcome.SignatureID) == "" {
			return record, domainerrors.ErrInvalidTransition
		}
		next.Status = entities.AnchoringStatusSubmitted
		next.LedgerSignature = outcome.SignatureID
		next.LastError = ""
		next.NextEligibleAt = nil
	case OutcomeRetryable:
		next.LastError = errorText(outcome.Err)
		if next.RetryCount >= policy.MaxRetries {
			next.Status = entities.AnchoringStatusFailed
			next.NextEligibleAt = nil
			break
		}
		eligibleAt := policy.NextEligibleAt(now, next.RetryCount)
		next.Status = entities.AnchoringStatusPendingSubmission
		next.NextEligibleAt = &eligibleAt
	case OutcomeFatal:
		next.Status = entities.AnchoringStatusFailed
		next.LastError = errorText(outcome.Err)
		next.NextEligibleAt = nil
	default:
		return record, domainerrors.ErrInvalidTransition
	}

	if !CanTransition(record.Status, next.Status) {
		return record, domainerrors.ErrInvalidTransition
	}
	return next, nil
}

// ApplyConfirmation advances a submitted record once the ledger reports finality.
// Pending and unknown states leave the record untouched so it is polled again.
func ApplyConfirmation(
	record entities.Record,
	state ConfirmationState,
	now time.Time,
) (entities.Record, bool, error) {
	if record.Status != entities.AnchoringStatusSubmitted {
		return record, false, domainerrors.ErrInvalidTransition
	}
	if state != ConfirmationConfirmed {
		return record, false, nil
	}
	next := record
	next.Status = entities.AnchoringStatusConfirmed
	next.UpdatedAt = now.UTC()
	next.LeaseOwner = ""
	next.LeaseExpiresAt = nil
	return next, true, nil
}

const maxLastErrorBytes = 1024

func errorText(err error) string {
	if err == nil {
		return "unknown submission failure"
	}
	text := strings.ToValidUTF8(strings.TrimSpace(err.Error()), "?")
	if len(text) <= maxLastErrorBytes {
		return text
	}
	// Cut on a rune boundary; text columns reject split UTF-8 sequences.
	cut := maxLastErrorBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
