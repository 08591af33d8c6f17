package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"

	"github.com/google/uuid"
)

// Store is an in-memory adapter implementing the record anchoring ports for
// local runtime and tests. It is not intended as production persistence.
type Store struct {
	mu          sync.Mutex
	records     map[string]entities.Record
	outbox      map[string]ports.OutboxMessage
	outboxOrder []string
	outboxSent  map[string]time.Time
	now         func() time.Time
	logger      *slog.Logger
}

// NewStore seeds records as-is; seeded rows bypass creation rules so tests can
// start from any lifecycle state.
func NewStore(seed []entities.Record, logger *slog.Logger) *Store {
	records := make(map[string]entities.Record, len(seed))
	for _, record := range seed {
		records[record.RecordID] = cloneRecord(record)
	}
	return &Store{
		records:    records,
		outbox:     make(map[string]ports.OutboxMessage),
		outboxSent: make(map[string]time.Time),
		now:        func() time.Time { return time.Now().UTC() },
		logger:     application.ResolveLogger(logger),
	}
}

// SetNow overrides the store clock used by Now.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) CreateRecord(_ context.Context, record entities.Record) (entities.Record, error) {
	if err := record.Validate(); err != nil {
		return entities.Record{}, err
	}
	if record.Status != entities.AnchoringStatusPending {
		return entities.Record{}, domainerrors.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.RecordID]; exists {
		return entities.Record{}, domainerrors.ErrRepositoryInvariantBroke
	}
	s.records[record.RecordID] = cloneRecord(record)
	return cloneRecord(record), nil
}

func (s *Store) GetRecord(_ context.Context, recordID string) (entities.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return entities.Record{}, domainerrors.ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

func (s *Store) ListRecords(_ context.Context, filter ports.RecordListFilter) ([]entities.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entities.Record, 0)
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		items = append(items, cloneRecord(record))
	}
	sortByCreatedAt(items)
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) FindEligibleForSubmission(_ context.Context, now time.Time, limit int) ([]entities.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entities.Record, 0)
	for _, record := range s.records {
		if record.EligibleForSubmission(now) {
			items = append(items, cloneRecord(record))
		}
	}
	sortByCreatedAt(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) ClaimForSubmission(
	_ context.Context,
	recordID string,
	lease ports.Lease,
	now time.Time,
) (entities.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return entities.Record{}, false, domainerrors.ErrRecordNotFound
	}
	if !record.EligibleForSubmission(now) {
		return entities.Record{}, false, nil
	}
	return s.applyLease(record, lease), true, nil
}

func (s *Store) UpdateAfterAttempt(_ context.Context, update ports.TransitionUpdate) error {
	return s.applyTransition(update)
}

func (s *Store) FindEligibleForConfirmation(_ context.Context, now time.Time, limit int) ([]entities.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entities.Record, 0)
	for _, record := range s.records {
		if record.EligibleForConfirmation(now) {
			items = append(items, cloneRecord(record))
		}
	}
	// Never-checked records first, then least recently released.
	sort.Slice(items, func(i, j int) bool {
		left, right := items[i].LeaseExpiresAt, items[j].LeaseExpiresAt
		switch {
		case left == nil && right == nil:
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		case left == nil:
			return true
		case right == nil:
			return false
		case left.Equal(*right):
			return items[i].RecordID < items[j].RecordID
		default:
			return left.Before(*right)
		}
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) ClaimForConfirmation(
	_ context.Context,
	recordID string,
	lease ports.Lease,
	now time.Time,
) (entities.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return entities.Record{}, false, domainerrors.ErrRecordNotFound
	}
	if !record.EligibleForConfirmation(now) {
		return entities.Record{}, false, nil
	}
	return s.applyLease(record, lease), true, nil
}

func (s *Store) UpdateConfirmation(_ context.Context, update ports.TransitionUpdate) error {
	return s.applyTransition(update)
}

func (s *Store) ReleaseClaim(_ context.Context, recordID string, leaseOwner string, releasedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return domainerrors.ErrRecordNotFound
	}
	if record.LeaseOwner != leaseOwner {
		return domainerrors.ErrClaimConflict
	}
	released := releasedAt.UTC()
	record.LeaseOwner = ""
	record.LeaseExpiresAt = &released
	s.records[recordID] = record
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

// OutboxEvents returns every outbox envelope in insertion order, sent or not.
func (s *Store) OutboxEvents() []ports.EventEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]ports.EventEnvelope, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		var envelope ports.EventEnvelope
		if err := json.Unmarshal(s.outbox[id].Payload, &envelope); err == nil {
			items = append(items, envelope)
		}
	}
	return items
}

func (s *Store) applyLease(record entities.Record, lease ports.Lease) entities.Record {
	expiresAt := lease.ExpiresAt.UTC()
	record.LeaseOwner = lease.Owner
	record.LeaseExpiresAt = &expiresAt
	s.records[record.RecordID] = record
	return cloneRecord(record)
}

// applyTransition is the single critical section standing in for the SQL
// transaction: status write and outbox append succeed or fail together.
func (s *Store) applyTransition(update ports.TransitionUpdate) error {
	next := update.Record
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[next.RecordID]
	if !ok {
		return domainerrors.ErrRecordNotFound
	}
	if current.LeaseOwner == "" || current.LeaseOwner != update.LeaseOwner || current.Status != update.PreviousStatus {
		return domainerrors.ErrClaimConflict
	}
	if !services.CanTransition(current.Status, next.Status) {
		return domainerrors.ErrInvalidTransition
	}
	if next.RetryCount < current.RetryCount || next.Digest != current.Digest {
		return domainerrors.ErrRepositoryInvariantBroke
	}

	if update.Event != nil {
		envelope, err := application.BuildAnchoringEnvelope(*update.Event)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		if _, exists := s.outbox[update.Event.EventID]; !exists {
			s.outbox[update.Event.EventID] = ports.OutboxMessage{
				OutboxID:     update.Event.EventID,
				EventType:    update.Event.EventType,
				PartitionKey: update.Event.RecordID,
				Payload:      payload,
				CreatedAt:    update.Event.OccurredAt.UTC(),
			}
			s.outboxOrder = append(s.outboxOrder, update.Event.EventID)
		}
	}

	next.Content = current.Content
	next.CreatedAt = current.CreatedAt
	next.LeaseOwner = ""
	next.LeaseExpiresAt = nil
	s.records[next.RecordID] = cloneRecord(next)

	s.logger.Debug("record transition persisted in memory store",
		"event", "memory_record_transition",
		"module", application.ModuleName,
		"layer", "adapter",
		"record_id", next.RecordID,
		"from_status", current.Status,
		"to_status", next.Status,
		"retry_count", next.RetryCount,
	)
	return nil
}

func sortByCreatedAt(items []entities.Record) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].RecordID < items[j].RecordID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func cloneRecord(record entities.Record) entities.Record {
	out := record
	out.Content = append([]byte(nil), record.Content...)
	if record.NextEligibleAt != nil {
		value := *record.NextEligibleAt
		out.NextEligibleAt = &value
	}
	if record.LeaseExpiresAt != nil {
		value := *record.LeaseExpiresAt
		out.LeaseExpiresAt = &value
	}
	return out
}
