package events

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event envelope published by notary.
// Keep it backward compatible: consumers outside this repository decode it.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id,omitempty"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

const (
	AnchoringRecordSubmitted = "anchoring.record_submitted"
	AnchoringRecordConfirmed = "anchoring.record_confirmed"
	AnchoringRecordFailed    = "anchoring.record_failed"
)

// AnchoringPayload is the Data body of every anchoring.* event.
type AnchoringPayload struct {
	RecordID        string `json:"record_id"`
	Digest          string `json:"digest"`
	Status          string `json:"status"`
	LedgerSignature string `json:"ledger_signature,omitempty"`
	LastError       string `json:"last_error,omitempty"`
	RetryCount      int    `json:"retry_count"`
}
