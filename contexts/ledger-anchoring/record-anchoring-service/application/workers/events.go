package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
	"notary/internal/shared/events"

	"github.com/google/uuid"
)

var anchoringEventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("notary/anchoring-events"))

// anchoringEventFor returns the outbox event for a transition worth announcing.
// Event ids derive from (record, status, retry_count) so a replayed transition
// produces the same id and consumers can dedupe on it.
func anchoringEventFor(record entities.Record) *ports.AnchoringEvent {
	var eventType string
	switch record.Status {
	case entities.AnchoringStatusSubmitted:
		eventType = events.AnchoringRecordSubmitted
	case entities.AnchoringStatusConfirmed:
		eventType = events.AnchoringRecordConfirmed
	case entities.AnchoringStatusFailed:
		eventType = events.AnchoringRecordFailed
	default:
		return nil
	}
	name := fmt.Sprintf("%s|%s|%d", record.RecordID, record.Status, record.RetryCount)
	return &ports.AnchoringEvent{
		EventID:         uuid.NewSHA1(anchoringEventNamespace, []byte(name)).String(),
		EventType:       eventType,
		RecordID:        record.RecordID,
		Digest:          record.Digest,
		Status:          record.Status,
		LedgerSignature: record.LedgerSignature,
		LastError:       record.LastError,
		RetryCount:      record.RetryCount,
		OccurredAt:      record.UpdatedAt.UTC(),
	}
}

// newLeaseOwner builds a per-claim token so two claims by the same worker
// process are still distinguishable in the store.
func newLeaseOwner(ctx context.Context, workerID string, ids ports.IDGenerator) (string, error) {
	token := ""
	if ids != nil {
		id, err := ids.NewID(ctx)
		if err != nil {
			return "", err
		}
		token = id
	} else {
		token = uuid.NewString()
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		workerID = "worker"
	}
	return workerID + "/" + token, nil
}

func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339Nano)
}
