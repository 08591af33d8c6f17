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

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type ListRecordsQuery struct {
	Status string
	Limit  int
}

type ListRecordsResult struct {
	Items []entities.Record
}

type ListRecordsUseCase struct {
	Records ports.RecordRepository
	Logger  *slog.Logger
}

func (u ListRecordsUseCase) Execute(ctx context.Context, query ListRecordsQuery) (ListRecordsResult, error) {
	logger := application.ResolveLogger(u.Logger)

	filter := ports.RecordListFilter{Limit: query.Limit}
	if status := strings.TrimSpace(query.Status); status != "" {
		filter.Status = entities.AnchoringStatus(strings.ToLower(status))
		if !filter.Status.Valid() {
			return ListRecordsResult{}, domainerrors.ErrInvalidListFilter
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	items, err := u.Records.ListRecords(ctx, filter)
	if err != nil {
		logger.Error("list records failed",
			"event", "list_records_failed",
			"module", application.ModuleName,
			"layer", "application",
			"status", filter.Status,
			"error", err.Error(),
		)
		return ListRecordsResult{}, err
	}
	return ListRecordsResult{Items: items}, nil
}
