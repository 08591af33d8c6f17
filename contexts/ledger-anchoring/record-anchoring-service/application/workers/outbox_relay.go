package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

// OutboxRelay publishes anchoring lifecycle events persisted by the store.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Topic     string
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows and marks each row
// sent only after the publish succeeds. It stops on the first failure so the
// next cycle reprocesses the remaining rows.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("outbox list pending failed",
			"event", "anchoring_outbox_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}

	for _, message := range pending {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(message.Payload, &envelope); err != nil {
			logger.Error("outbox payload decode failed",
				"event", "anchoring_outbox_decode_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return err
		}

		topic := r.Topic
		if topic == "" {
			topic = envelope.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, envelope); err != nil {
			logger.Error("outbox publish failed",
				"event", "anchoring_outbox_publish_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"event_type", envelope.EventType,
				"error", err.Error(),
			)
			return err
		}
		if err := r.Outbox.MarkOutboxSent(ctx, message.OutboxID, now); err != nil {
			logger.Error("outbox mark sent failed",
				"event", "anchoring_outbox_mark_sent_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", message.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	if len(pending) > 0 {
		logger.Info("outbox relay cycle completed",
			"event", "anchoring_outbox_relay_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"sent_count", len(pending),
		)
	}
	return nil
}
