package workers

import (
	"context"
	"log/slog"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

// ConfirmationSweeper polls the ledger for submitted records and advances the
// finalized ones to confirmed.
type ConfirmationSweeper struct {
	Queue          ports.ConfirmationQueue
	Ledger         ports.LedgerClient
	Clock          ports.Clock
	IDGenerator    ports.IDGenerator
	WorkerID       string
	BatchSize      int
	LeaseTTL       time.Duration
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

type ConfirmationReport struct {
	Selected  int
	Claimed   int
	Skipped   int
	Confirmed int
	Pending   int
	Errored   int
}

func (s ConfirmationSweeper) RunOnce(ctx context.Context) (ConfirmationReport, error) {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}

	records, err := s.Queue.FindEligibleForConfirmation(ctx, s.now(), limit)
	if err != nil {
		logger.Error("confirmation selection failed",
			"event", "anchoring_confirmation_select_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"worker_id", s.WorkerID,
			"error", err.Error(),
		)
		return ConfirmationReport{}, err
	}

	report := ConfirmationReport{Selected: len(records)}
	for _, candidate := range records {
		if ctx.Err() != nil {
			break
		}
		s.check(ctx, candidate, &report)
	}

	if report.Selected > 0 {
		logger.Info("confirmation sweep completed",
			"event", "anchoring_confirmation_cycle_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"worker_id", s.WorkerID,
			"selected", report.Selected,
			"confirmed", report.Confirmed,
			"pending", report.Pending,
			"skipped", report.Skipped,
			"errored", report.Errored,
		)
	}
	return report, nil
}

func (s ConfirmationSweeper) check(ctx context.Context, candidate entities.Record, report *ConfirmationReport) {
	logger := application.ResolveLogger(s.Logger)

	owner, err := newLeaseOwner(ctx, s.WorkerID, s.IDGenerator)
	if err != nil {
		report.Errored++
		return
	}
	claimedAt := s.now()
	lease := ports.Lease{Owner: owner, ExpiresAt: claimedAt.Add(s.leaseTTL())}
	record, claimed, err := s.Queue.ClaimForConfirmation(ctx, candidate.RecordID, lease, claimedAt)
	if err != nil {
		report.Errored++
		logger.Error("confirmation claim failed",
			"event", "anchoring_confirmation_claim_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", candidate.RecordID,
			"error", err.Error(),
		)
		return
	}
	if !claimed {
		report.Skipped++
		return
	}
	report.Claimed++

	checkCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout())
	state, err := s.Ledger.CheckConfirmation(checkCtx, record.LedgerSignature)
	cancel()
	if err != nil {
		report.Errored++
		s.release(ctx, record.RecordID, owner)
		logger.Warn("confirmation lookup failed",
			"event", "anchoring_confirmation_lookup_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", record.RecordID,
			"ledger_signature", record.LedgerSignature,
			"error", err.Error(),
		)
		return
	}

	next, changed, err := services.ApplyConfirmation(record, state, s.now())
	if err != nil || !changed {
		if err != nil {
			report.Errored++
		} else {
			report.Pending++
		}
		s.release(ctx, record.RecordID, owner)
		return
	}

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	if err := s.Queue.UpdateConfirmation(persistCtx, ports.TransitionUpdate{
		LeaseOwner:     owner,
		PreviousStatus: record.Status,
		Record:         next,
		Event:          anchoringEventFor(next),
	}); err != nil {
		report.Errored++
		logger.Error("confirmation persistence failed",
			"event", "anchoring_confirmation_persist_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", record.RecordID,
			"error", err.Error(),
		)
		return
	}

	report.Confirmed++
	logger.Info("record anchoring confirmed",
		"event", "anchoring_record_confirmed",
		"module", application.ModuleName,
		"layer", "worker",
		"record_id", next.RecordID,
		"ledger_signature", next.LedgerSignature,
	)
}

func (s ConfirmationSweeper) release(ctx context.Context, recordID string, owner string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.Queue.ReleaseClaim(releaseCtx, recordID, owner, s.now()); err != nil {
		application.ResolveLogger(s.Logger).Warn("confirmation claim release failed",
			"event", "anchoring_confirmation_release_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"record_id", recordID,
			"error", err.Error(),
		)
	}
}

func (s ConfirmationSweeper) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s ConfirmationSweeper) leaseTTL() time.Duration {
	return EffectiveLeaseTTL(s.LeaseTTL, s.attemptTimeout())
}

func (s ConfirmationSweeper) attemptTimeout() time.Duration {
	if s.AttemptTimeout <= 0 {
		return defaultAttemptTimeout
	}
	return s.AttemptTimeout
}
