package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/commands"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/queries"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	httptransport "notary/contexts/ledger-anchoring/record-anchoring-service/transport/http"
)

type Handler struct {
	CreateRecord commands.CreateRecordUseCase
	GetRecord    queries.GetRecordUseCase
	ListRecords  queries.ListRecordsUseCase
	Logger       *slog.Logger
}

// CreateRecordHandler godoc
// @Summary Create a record
// @Description Persists a JSON record as pending and returns immediately; ledger anchoring happens in the background.
// @Tags record-anchoring
// @Accept json
// @Produce json
// @Param X-Request-Id header string false "Request correlation id"
// @Param request body httptransport.CreateRecordRequest true "Record payload"
// @Success 201 {object} httptransport.CreateRecordResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 503 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/records [post]
func (h Handler) CreateRecordHandler(
	ctx context.Context,
	req httptransport.CreateRecordRequest,
) (httptransport.CreateRecordResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create record request received",
		"event", "http_create_record_received",
		"module", application.ModuleName,
		"layer", "transport",
	)

	result, err := h.CreateRecord.Execute(ctx, commands.CreateRecordCommand{Content: req.Content})
	if err != nil {
		logger.Error("create record request failed",
			"event", "http_create_record_failed",
			"module", application.ModuleName,
			"layer", "transport",
			"error", err.Error(),
		)
		return httptransport.CreateRecordResponse{}, err
	}
	return httptransport.CreateRecordResponse{Item: MapRecord(result.Record)}, nil
}

// GetRecordHandler godoc
// @Summary Get record anchoring status
// @Tags record-anchoring
// @Produce json
// @Param X-Request-Id header string false "Request correlation id"
// @Param record_id path string true "Record id"
// @Success 200 {object} httptransport.GetRecordResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/records/{record_id} [get]
func (h Handler) GetRecordHandler(ctx context.Context, recordID string) (httptransport.GetRecordResponse, error) {
	result, err := h.GetRecord.Execute(ctx, queries.GetRecordQuery{RecordID: recordID})
	if err != nil {
		return httptransport.GetRecordResponse{}, err
	}
	return httptransport.GetRecordResponse{Item: MapRecord(result.Record)}, nil
}

// ListRecordsHandler godoc
// @Summary List records
// @Description Lists records oldest first, optionally filtered by anchoring status.
// @Tags record-anchoring
// @Produce json
// @Param X-Request-Id header string false "Request correlation id"
// @Param status query string false "pending, pending_submission, submitted, confirmed or failed"
// @Param limit query int false "Page size (max 500)"
// @Success 200 {object} httptransport.ListRecordsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/records [get]
func (h Handler) ListRecordsHandler(
	ctx context.Context,
	req httptransport.ListRecordsRequest,
) (httptransport.ListRecordsResponse, error) {
	result, err := h.ListRecords.Execute(ctx, queries.ListRecordsQuery{
		Status: req.Status,
		Limit:  req.Limit,
	})
	if err != nil {
		return httptransport.ListRecordsResponse{}, err
	}
	items := make([]httptransport.RecordDTO, 0, len(result.Items))
	for _, record := range result.Items {
		items = append(items, MapRecord(record))
	}
	return httptransport.ListRecordsResponse{Items: items}, nil
}

func MapRecord(record entities.Record) httptransport.RecordDTO {
	dto := httptransport.RecordDTO{
		RecordID:        record.RecordID,
		Content:         append([]byte(nil), record.Content...),
		Digest:          record.Digest,
		AnchoringStatus: string(record.Status),
		LedgerSignature: record.LedgerSignature,
		LastError:       record.LastError,
		RetryCount:      record.RetryCount,
		CreatedAt:       record.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:       record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.NextEligibleAt != nil {
		dto.NextEligibleAt = record.NextEligibleAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}
