package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
	"notary/internal/shared/events"
)

const auditConsumerGroup = "anchoring-audit"

// LifecycleAudit consumes anchoring lifecycle events from the bus and writes
// one structured log line per event. Failed records log at warn level with
// their last error.
type LifecycleAudit struct {
	// Topics defaults to every anchoring.record_* event type.
	Topics []string
	Logger *slog.Logger
}

func (a LifecycleAudit) Subscribe(ctx context.Context, subscriber ports.EventSubscriber) error {
	for _, topic := range a.topics() {
		if err := subscriber.Subscribe(ctx, topic, auditConsumerGroup, a.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (a LifecycleAudit) Handle(_ context.Context, event ports.EventEnvelope) error {
	var payload events.AnchoringPayload
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.EventType, err)
	}

	attrs := []any{
		"event", "anchoring_lifecycle_observed",
		"module", application.ModuleName,
		"layer", "worker",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"record_id", payload.RecordID,
		"digest", payload.Digest,
		"status", payload.Status,
		"retry_count", payload.RetryCount,
		"occurred_at", event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if payload.LedgerSignature != "" {
		attrs = append(attrs, "ledger_signature", payload.LedgerSignature)
	}

	logger := application.ResolveLogger(a.Logger)
	if event.EventType == events.AnchoringRecordFailed {
		logger.Warn("anchoring lifecycle event", append(attrs, "last_error", payload.LastError)...)
		return nil
	}
	logger.Info("anchoring lifecycle event", attrs...)
	return nil
}

func (a LifecycleAudit) topics() []string {
	if len(a.Topics) == 0 {
		return []string{
			events.AnchoringRecordSubmitted,
			events.AnchoringRecordConfirmed,
			events.AnchoringRecordFailed,
		}
	}
	return a.Topics
}
