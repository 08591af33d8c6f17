package httptransport

import "encoding/json"

type CreateRecordRequest struct {
	Content json.RawMessage `json:"content" swaggertype:"object"`
}

type RecordDTO struct {
	RecordID        string          `json:"record_id"`
	Content         json.RawMessage `json:"content" swaggertype:"object"`
	Digest          string          `json:"digest"`
	AnchoringStatus string          `json:"anchoring_status"`
	LedgerSignature string          `json:"ledger_signature,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	RetryCount      int             `json:"retry_count"`
	NextEligibleAt  string          `json:"next_eligible_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

type CreateRecordResponse struct {
	Item RecordDTO `json:"item"`
}

type GetRecordResponse struct {
	Item RecordDTO `json:"item"`
}

type ListRecordsRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ListRecordsResponse struct {
	Items []RecordDTO `json:"items"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
