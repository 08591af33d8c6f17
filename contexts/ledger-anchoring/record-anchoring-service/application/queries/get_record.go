package queries

import (
	"context"
	"log/slog"
	"strings"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

type GetRecordQuery struct {
	RecordID string
}

type GetRecordResult struct {
	Record entities.Record
}

type GetRecordUseCase struct {
	Records ports.RecordRepository
	Logger  *slog.Logger
}

func (u GetRecordUseCase) Execute(ctx context.Context, query GetRecordQuery) (GetRecordResult, error) {
	logger := application.ResolveLogger(u.Logger)
	recordID := strings.TrimSpace(query.RecordID)
	if recordID == "" {
		return GetRecordResult{}, domainerrors.ErrRecordNotFound
	}

	record, err := u.Records.GetRecord(ctx, recordID)
	if err != nil {
		logger.Error("get record failed",
			"event", "get_record_failed",
			"module", application.ModuleName,
			"layer", "application",
			"record_id", recordID,
			"error", err.Error(),
		)
		return GetRecordResult{}, err
	}

	logger.Debug("get record completed",
		"event", "get_record_completed",
		"module", application.ModuleName,
		"layer", "application",
		"record_id", recordID,
		"status", record.Status,
	)
	return GetRecordResult{Record: record}, nil
}
