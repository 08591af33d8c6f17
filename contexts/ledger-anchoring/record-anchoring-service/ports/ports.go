package ports

import (
	"context"
	"time"

	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/internal/shared/events"
)

// RecordListFilter defines read-side filtering for status queries.
type RecordListFilter struct {
	Status entities.AnchoringStatus
	Limit  int
}

// RecordRepository owns record creation and read access.
type RecordRepository interface {
	CreateRecord(ctx context.Context, record entities.Record) (entities.Record, error)
	GetRecord(ctx context.Context, recordID string) (entities.Record, error)
	ListRecords(ctx context.Context, filter RecordListFilter) ([]entities.Record, error)
}

// Lease is a time-bounded single-flight claim held by one worker on one record.
type Lease struct {
	Owner     string
	ExpiresAt time.Time
}

// AnchoringEvent is the outbound integration payload persisted to outbox
// together with the status change that produced it.
type AnchoringEvent struct {
	EventID         string
	EventType       string
	RecordID        string
	Digest          string
	Status          entities.AnchoringStatus
	LedgerSignature string
	LastError       string
	RetryCount      int
	OccurredAt      time.Time
}

// TransitionUpdate persists one state machine step. The write only applies while
// LeaseOwner still holds the record and its status is still PreviousStatus.
type TransitionUpdate struct {
	LeaseOwner     string
	PreviousStatus entities.AnchoringStatus
	Record         entities.Record
	Event          *AnchoringEvent
}

// SubmissionQueue is the store surface the submission worker depends on.
type SubmissionQueue interface {
	// FindEligibleForSubmission returns pending/pending_submission records whose
	// backoff elapsed and whose lease is free, oldest created_at first.
	FindEligibleForSubmission(ctx context.Context, now time.Time, limit int) ([]entities.Record, error)
	// ClaimForSubmission must be atomic: at most one concurrent caller gets true.
	// The returned record is re-read under the new lease so callers never act on
	// a snapshot that another worker advanced in the meantime.
	ClaimForSubmission(ctx context.Context, recordID string, lease Lease, now time.Time) (entities.Record, bool, error)
	UpdateAfterAttempt(ctx context.Context, update TransitionUpdate) error
	// ReleaseClaim drops the lease without touching status, keeping the release
	// time so sweeps can rotate through long-pending records.
	ReleaseClaim(ctx context.Context, recordID string, leaseOwner string, releasedAt time.Time) error
}

// ConfirmationQueue is the store surface the confirmation sweeper depends on.
type ConfirmationQueue interface {
	// FindEligibleForConfirmation returns submitted records with a free lease,
	// least recently checked first.
	FindEligibleForConfirmation(ctx context.Context, now time.Time, limit int) ([]entities.Record, error)
	ClaimForConfirmation(ctx context.Context, recordID string, lease Lease, now time.Time) (entities.Record, bool, error)
	UpdateConfirmation(ctx context.Context, update TransitionUpdate) error
	ReleaseClaim(ctx context.Context, recordID string, leaseOwner string, releasedAt time.Time) error
}

// SubmitRequest carries everything the ledger needs to anchor one digest.
type SubmitRequest struct {
	RecordID       string
	Digest         []byte
	Signature      []byte
	PublicIdentity string
}

// LedgerClient is the external append-only network. Submit errors wrapping
// ErrLedgerFatal are never retried; all other errors are.
type LedgerClient interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	CheckConfirmation(ctx context.Context, signatureID string) (services.ConfirmationState, error)
}

// Signer signs digests without exposing how or where the secret is held.
type Signer interface {
	Sign(ctx context.Context, payload []byte) ([]byte, error)
	PublicIdentity() string
}

// Clock allows deterministic testing of backoff and lease rules.
type Clock interface {
	Now() time.Time
}

// IDGenerator abstracts record/event identifier generation.
type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventEnvelope reuses the canonical envelope contract.
type EventEnvelope = events.Envelope

// EventPublisher publishes canonical envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

// EventSubscriber delivers envelopes published on topic to handler until ctx ends.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, consumerGroup string, handler func(context.Context, EventEnvelope) error) error
}
