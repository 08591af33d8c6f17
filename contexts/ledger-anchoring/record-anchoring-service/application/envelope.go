package application

import (
	"encoding/json"

	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
	"notary/internal/shared/events"
)

// BuildAnchoringEnvelope renders an outbox event into the canonical envelope.
// Both store adapters persist the marshalled envelope as the outbox payload.
func BuildAnchoringEnvelope(event ports.AnchoringEvent) (ports.EventEnvelope, error) {
	data, err := json.Marshal(events.AnchoringPayload{
		RecordID:        event.RecordID,
		Digest:          event.Digest,
		Status:          string(event.Status),
		LedgerSignature: event.LedgerSignature,
		LastError:       event.LastError,
		RetryCount:      event.RetryCount,
	})
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          event.EventID,
		EventType:        event.EventType,
		OccurredAt:       event.OccurredAt.UTC(),
		SourceService:    sourceName,
		SchemaVersion:    1,
		PartitionKeyPath: "record_id",
		PartitionKey:     event.RecordID,
		Data:             data,
	}, nil
}
