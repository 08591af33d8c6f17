package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize      = 100
	defaultConcurrency    = 4
	defaultLeaseTTL       = 2 * time.Minute
	defaultAttemptTimeout = 30 * time.Second
	persistTimeout        = 10 * time.Second
	// LeaseSlack is the margin a claim lease must keep beyond the attempt
	// timeout. It covers the outcome write (persistTimeout) plus clock skew.
	LeaseSlack            = persistTimeout + 5*time.Second
)

// SubmissionWorker drains records pending anchoring and drives each through one
// ledger submission attempt per cycle.
type SubmissionWorker struct {
	Queue          ports.SubmissionQueue
	Ledger         ports.LedgerClient
	Signer         ports.Signer
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	WorkerID       string
	Policy         services.RetryPolicy
	BatchSize      int
	Concurrency    int
	LeaseTTL       time.Duration
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

// SubmissionReport summarizes one polling cycle.
type SubmissionReport struct {
	Selected  int
	Claimed   int
	Skipped   int
	Submitted int
	Retrying  int
	Failed    int
	Abandoned int
	Errored   int
}

type submissionTally struct {
	mu     sync.Mutex
	report SubmissionReport
}

func (t *submissionTally) add(apply func(*SubmissionReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	apply(&t.report)
}

// RunOnce selects at most BatchSize eligible records, oldest first, and attempts
// each one. Attempts start in created_at order but may finish out of order.
// A selection failure aborts the cycle before any record is touched; per-record
// failures are isolated and never abort the rest of the batch.
func (w SubmissionWorker) RunOnce(ctx context.Context) (SubmissionReport, error) {
	logger := application.ResolveLogger(w.Logger)
	limit := w.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}

	records, err := w.Queue.FindEligibleForSubmission(ctx, w.now(), limit)
	if err != nil {
		logger.Error("submission selection failed",
			"event", "anchoring_submission_select_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"worker_id", w.WorkerID,
			"error", err.Error(),
		)
		return SubmissionReport{}, err
	}
	if len(records) == 0 {
		logger.Debug("submission cycle found no eligible records",
			"event", "anchoring_submission_noop",
			"module", application.ModuleName,
			"layer", "worker",
			"worker_id", w.WorkerID,
		)
		return SubmissionReport{}, nil
	}

	tally := &submissionTally{report: SubmissionReport{Selected: len(records)}}
	group := new(errgroup.Group)
	group.SetLimit(w.concurrency())
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		record := record
		group.Go(func() error {
			w.attempt(ctx, record, tally)
			return nil
		})
	}
	_ = group.Wait()

	report := tally.report
	logger.Info("submission cycle completed",
		"event", "anchoring_submission_cycle_completed",
		"module", application.ModuleName,
		"layer", "worker",
		"worker_id", w.WorkerID,
		"selected", report.Selected,
		"claimed", report.Claimed,
		"skipped", report.Skipped,
		"submitted", report.Submitted,
		"retrying", report.Retrying,
		"failed", report.Failed,
		"abandoned", report.Abandoned,
		"errored", report.Errored,
	)
	return report, nil
}

func (w SubmissionWorker) attempt(ctx context.Context, candidate entities.Record, tally *submissionTally) {
	logger := application.ResolveLogger(w.Logger)

	owner, err := w.leaseOwner(ctx)
	if err != nil {
		tally.add(func(r *SubmissionReport) { r.Errored++ })
		logger.Error("submission lease token generation failed",
			"event", "anchoring_submission_lease_token_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", candidate.RecordID,
			"error", err.Error(),
		)
		return
	}

	claimedAt := w.now()
	lease := ports.Lease{Owner: owner, ExpiresAt: claimedAt.Add(w.leaseTTL())}
	record, claimed, err := w.Queue.ClaimForSubmission(ctx, candidate.RecordID, lease, claimedAt)
	if err != nil {
		tally.add(func(r *SubmissionReport) { r.Errored++ })
		logger.Error("submission claim failed",
			"event", "anchoring_submission_claim_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", candidate.RecordID,
			"error", err.Error(),
		)
		return
	}
	if !claimed {
		tally.add(func(r *SubmissionReport) { r.Skipped++ })
		logger.Debug("submission claim lost to another worker",
			"event", "anchoring_submission_claim_conflict",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", candidate.RecordID,
		)
		return
	}
	tally.add(func(r *SubmissionReport) { r.Claimed++ })

	attemptCtx, cancel := context.WithTimeout(ctx, w.attemptTimeout())
	signatureID, submitErr := w.submit(attemptCtx, record)
	cancel()

	if submitErr != nil && ctx.Err() != nil {
		// Shutdown cut the attempt short. Durable state is untouched; hand the
		// record back so the next start retries it.
		tally.add(func(r *SubmissionReport) { r.Abandoned++ })
		w.release(ctx, record.RecordID, owner)
		logger.Warn("submission attempt abandoned on shutdown",
			"event", "anchoring_submission_abandoned",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", record.RecordID,
			"error", submitErr.Error(),
		)
		return
	}

	outcome := services.ClassifySubmission(signatureID, submitErr)
	next, err := services.ApplySubmissionOutcome(record, outcome, w.Policy, w.now())
	if err != nil {
		tally.add(func(r *SubmissionReport) { r.Errored++ })
		w.release(ctx, record.RecordID, owner)
		logger.Error("submission transition rejected",
			"event", "anchoring_submission_transition_invalid",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", record.RecordID,
			"status", record.Status,
			"outcome", outcome.Kind,
			"error", err.Error(),
		)
		return
	}

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	err = w.Queue.UpdateAfterAttempt(persistCtx, ports.TransitionUpdate{
		LeaseOwner:     owner,
		PreviousStatus: record.Status,
		Record:         next,
		Event:          anchoringEventFor(next),
	})
	if err != nil {
		tally.add(func(r *SubmissionReport) { r.Errored++ })
		// The lease expires on its own; the record is then retried (at-least-once).
		logger.Error("submission outcome persistence failed",
			"event", "anchoring_submission_persist_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", record.RecordID,
			"outcome", outcome.Kind,
			"claim_conflict", errors.Is(err, domainerrors.ErrClaimConflict),
			"error", err.Error(),
		)
		return
	}

	switch next.Status {
	case entities.AnchoringStatusSubmitted:
		tally.add(func(r *SubmissionReport) { r.Submitted++ })
		logger.Info("record submitted to ledger",
			"event", "anchoring_record_submitted",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", next.RecordID,
			"ledger_signature", next.LedgerSignature,
			"retry_count", next.RetryCount,
		)
	case entities.AnchoringStatusFailed:
		tally.add(func(r *SubmissionReport) { r.Failed++ })
		logger.Warn("record anchoring failed",
			"event", "anchoring_record_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", next.RecordID,
			"outcome", outcome.Kind,
			"retry_count", next.RetryCount,
			"last_error", next.LastError,
		)
	default:
		tally.add(func(r *SubmissionReport) { r.Retrying++ })
		logger.Warn("record submission will be retried",
			"event", "anchoring_record_retry_scheduled",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", next.RecordID,
			"retry_count", next.RetryCount,
			"next_eligible_at", formatTime(next.NextEligibleAt),
			"last_error", next.LastError,
		)
	}
}

// submit signs the digest and hands it to the ledger. Signer errors are
// fatal (ErrSignerFailure) unless the signer reports itself unavailable.
func (w SubmissionWorker) submit(ctx context.Context, record entities.Record) (string, error) {
	digest, err := record.DigestBytes()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainerrors.ErrLedgerFatal, err)
	}
	signature, err := w.Signer.Sign(ctx, digest)
	if err != nil {
		if ctx.Err() != nil ||
			errors.Is(err, domainerrors.ErrSignerUnavailable) ||
			errors.Is(err, domainerrors.ErrSignerFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domainerrors.ErrSignerFailure, err)
	}
	return w.Ledger.Submit(ctx, ports.SubmitRequest{
		RecordID:       record.RecordID,
		Digest:         digest,
		Signature:      signature,
		PublicIdentity: w.Signer.PublicIdentity(),
	})
}

func (w SubmissionWorker) release(ctx context.Context, recordID string, owner string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := w.Queue.ReleaseClaim(releaseCtx, recordID, owner, w.now()); err != nil {
		application.ResolveLogger(w.Logger).Warn("submission claim release failed",
			"event", "anchoring_submission_release_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", recordID,
			"error", err.Error(),
		)
	}
}

func (w SubmissionWorker) leaseOwner(ctx context.Context) (string, error) {
	return newLeaseOwner(ctx, w.WorkerID, w.IDGenerator)
}

func (w SubmissionWorker) now() time.Time {
	if w.Clock == nil {
		return time.Now().UTC()
	}
	return w.Clock.Now().UTC()
}

func (w SubmissionWorker) concurrency() int {
	if w.Concurrency <= 0 {
		return defaultConcurrency
	}
	return w.Concurrency
}

func (w SubmissionWorker) leaseTTL() time.Duration {
	return EffectiveLeaseTTL(w.LeaseTTL, w.attemptTimeout())
}

// EffectiveLeaseTTL returns the lease a claim actually takes. A lease shorter
// than the attempt plus LeaseSlack could expire mid-submission and let a
// second worker claim the same record, so it is raised to that floor.
func EffectiveLeaseTTL(configured time.Duration, attemptTimeout time.Duration) time.Duration {
	if configured <= 0 {
		configured = defaultLeaseTTL
	}
	if floor := attemptTimeout + LeaseSlack; configured < floor {
		return floor
	}
	return configured
}

func (w SubmissionWorker) attemptTimeout() time.Duration {
	if w.AttemptTimeout <= 0 {
		return defaultAttemptTimeout
	}
	return w.AttemptTimeout
}
