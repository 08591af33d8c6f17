package commands

import (
	"context"
	"log/slog"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

type CreateRecordCommand struct {
	Content []byte
}

type CreateRecordResult struct {
	Record entities.Record
}

type CreateRecordUseCase struct {
	Records     ports.RecordRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

// Execute persists the record as pending and returns immediately. The pending
// status is the enqueue: the submission worker picks it up on a later poll, so
// ledger availability never affects this path.
func (u CreateRecordUseCase) Execute(ctx context.Context, cmd CreateRecordCommand) (CreateRecordResult, error) {
	logger := application.ResolveLogger(u.Logger)

	recordID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		logger.Error("record id generation failed",
			"event", "create_record_id_generation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return CreateRecordResult{}, err
	}

	record, err := entities.NewRecord(recordID, cmd.Content, u.now())
	if err != nil {
		logger.Warn("record content rejected",
			"event", "create_record_invalid_content",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return CreateRecordResult{}, err
	}

	created, err := u.Records.CreateRecord(ctx, record)
	if err != nil {
		logger.Error("record persistence failed",
			"event", "create_record_persist_failed",
			"module", application.ModuleName,
			"layer", "application",
			"record_id", record.RecordID,
			"error", err.Error(),
		)
		return CreateRecordResult{}, err
	}

	logger.Info("record created pending anchoring",
		"event", "create_record_completed",
		"module", application.ModuleName,
		"layer", "application",
		"record_id", created.RecordID,
		"digest", created.Digest,
	)
	return CreateRecordResult{Record: created}, nil
}

func (u CreateRecordUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
