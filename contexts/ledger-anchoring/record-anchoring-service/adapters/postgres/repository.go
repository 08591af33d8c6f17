package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
	"notary/internal/shared/outbox"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists records and their outbox with gorm. Every statement is
// portable between the postgres and sqlite dialects; single-flight claims rely
// on one conditional UPDATE per claim rather than dialect-specific locking.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the record and outbox tables.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&recordModel{}, &outboxModel{}); err != nil {
		return fmt.Errorf("migrate anchoring tables: %w", err)
	}
	r.logger.Info("anchoring tables migrated",
		"event", "anchoring_tables_migrated",
		"module", application.ModuleName,
		"layer", "adapter",
	)
	return nil
}

func (r *Repository) CreateRecord(ctx context.Context, record entities.Record) (entities.Record, error) {
	if err := record.Validate(); err != nil {
		return entities.Record{}, err
	}
	if record.Status != entities.AnchoringStatusPending {
		return entities.Record{}, domainerrors.ErrInvalidTransition
	}

	row := recordModelFromEntity(record)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return entities.Record{}, domainerrors.ErrRepositoryInvariantBroke
		}
		return entities.Record{}, storeFailure("create record", err)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetRecord(ctx context.Context, recordID string) (entities.Record, error) {
	var row recordModel
	err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Record{}, domainerrors.ErrRecordNotFound
		}
		return entities.Record{}, storeFailure("get record", err)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListRecords(ctx context.Context, filter ports.RecordListFilter) ([]entities.Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	tx := r.db.WithContext(ctx).Model(&recordModel{})
	if filter.Status != "" {
		tx = tx.Where("anchoring_status = ?", string(filter.Status))
	}

	var rows []recordModel
	if err := tx.
		Order("created_at ASC").
		Order("record_id ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, storeFailure("list records", err)
	}
	return toEntities(rows), nil
}

func (r *Repository) FindEligibleForSubmission(ctx context.Context, now time.Time, limit int) ([]entities.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()

	var rows []recordModel
	if err := r.db.WithContext(ctx).
		Where("anchoring_status IN ?", submittableStatuses()).
		Where("(next_eligible_at IS NULL OR next_eligible_at <= ?)", now).
		Where("(lease_owner = '' OR lease_expires_at IS NULL OR lease_expires_at <= ?)", now).
		Order("created_at ASC").
		Order("record_id ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, storeFailure("find eligible for submission", err)
	}
	return toEntities(rows), nil
}

func (r *Repository) ClaimForSubmission(
	ctx context.Context,
	recordID string,
	lease ports.Lease,
	now time.Time,
) (entities.Record, bool, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&recordModel{}).
		Where("record_id = ?", recordID).
		Where("anchoring_status IN ?", submittableStatuses()).
		Where("(next_eligible_at IS NULL OR next_eligible_at <= ?)", now).
		Where("(lease_owner = '' OR lease_expires_at IS NULL OR lease_expires_at <= ?)", now).
		Updates(map[string]any{
			"lease_owner":      lease.Owner,
			"lease_expires_at": lease.ExpiresAt.UTC(),
		})
	if result.Error != nil {
		return entities.Record{}, false, storeFailure("claim for submission", result.Error)
	}
	if result.RowsAffected == 0 {
		return entities.Record{}, false, nil
	}
	return r.loadClaimed(ctx, recordID, lease.Owner)
}

func (r *Repository) UpdateAfterAttempt(ctx context.Context, update ports.TransitionUpdate) error {
	if !update.PreviousStatus.Submittable() {
		return domainerrors.ErrInvalidTransition
	}
	return r.applyTransition(ctx, update)
}

func (r *Repository) FindEligibleForConfirmation(ctx context.Context, now time.Time, limit int) ([]entities.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	now = now.UTC()

	var rows []recordModel
	if err := r.db.WithContext(ctx).
		Where("anchoring_status = ?", string(entities.AnchoringStatusSubmitted)).
		Where("(lease_owner = '' OR lease_expires_at IS NULL OR lease_expires_at <= ?)", now).
		Order("lease_expires_at IS NOT NULL").
		Order("lease_expires_at ASC").
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, storeFailure("find eligible for confirmation", err)
	}
	return toEntities(rows), nil
}

func (r *Repository) ClaimForConfirmation(
	ctx context.Context,
	recordID string,
	lease ports.Lease,
	now time.Time,
) (entities.Record, bool, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&recordModel{}).
		Where("record_id = ? AND anchoring_status = ?", recordID, string(entities.AnchoringStatusSubmitted)).
		Where("(lease_owner = '' OR lease_expires_at IS NULL OR lease_expires_at <= ?)", now).
		Updates(map[string]any{
			"lease_owner":      lease.Owner,
			"lease_expires_at": lease.ExpiresAt.UTC(),
		})
	if result.Error != nil {
		return entities.Record{}, false, storeFailure("claim for confirmation", result.Error)
	}
	if result.RowsAffected == 0 {
		return entities.Record{}, false, nil
	}
	return r.loadClaimed(ctx, recordID, lease.Owner)
}

func (r *Repository) UpdateConfirmation(ctx context.Context, update ports.TransitionUpdate) error {
	if update.PreviousStatus != entities.AnchoringStatusSubmitted {
		return domainerrors.ErrInvalidTransition
	}
	return r.applyTransition(ctx, update)
}

func (r *Repository) ReleaseClaim(ctx context.Context, recordID string, leaseOwner string, releasedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&recordModel{}).
		Where("record_id = ? AND lease_owner = ?", recordID, leaseOwner).
		Updates(map[string]any{
			"lease_owner":      "",
			"lease_expires_at": releasedAt.UTC(),
		})
	if result.Error != nil {
		return storeFailure("release claim", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrClaimConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, storeFailure("list pending outbox", err)
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outbox.StatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return storeFailure("mark outbox sent", result.Error)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

func (r *Repository) loadClaimed(ctx context.Context, recordID string, owner string) (entities.Record, bool, error) {
	var row recordModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ? AND lease_owner = ?", recordID, owner).
		First(&row).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Lease expired and was taken between the update and this read.
			return entities.Record{}, false, nil
		}
		return entities.Record{}, false, storeFailure("load claimed record", err)
	}
	return row.toEntity(), true, nil
}

// applyTransition writes the new lifecycle state and its outbox row in one
// transaction, guarded by lease owner, previous status and retry_count monotonicity.
func (r *Repository) applyTransition(ctx context.Context, update ports.TransitionUpdate) error {
	next := update.Record
	if err := next.Validate(); err != nil {
		return err
	}
	if !services.CanTransition(update.PreviousStatus, next.Status) {
		return domainerrors.ErrInvalidTransition
	}

	var outboxRow *outboxModel
	if update.Event != nil {
		envelope, err := application.BuildAnchoringEnvelope(*update.Event)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		outboxRow = &outboxModel{
			OutboxID:     update.Event.EventID,
			EventType:    update.Event.EventType,
			PartitionKey: update.Event.RecordID,
			Payload:      payload,
			Status:       outbox.StatusPending,
			CreatedAt:    update.Event.OccurredAt.UTC(),
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&recordModel{}).
			Where("record_id = ? AND lease_owner = ? AND anchoring_status = ?",
				next.RecordID, update.LeaseOwner, string(update.PreviousStatus)).
			Where("retry_count <= ?", next.RetryCount).
			Updates(map[string]any{
				"anchoring_status": string(next.Status),
				"ledger_signature": next.LedgerSignature,
				"last_error":       next.LastError,
				"retry_count":      next.RetryCount,
				"next_eligible_at": nullableTime(next.NextEligibleAt),
				"lease_owner":      "",
				"lease_expires_at": gorm.Expr("NULL"),
				"updated_at":       next.UpdatedAt.UTC(),
			})
		if result.Error != nil {
			return storeFailure("apply transition", result.Error)
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrClaimConflict
		}

		if outboxRow == nil {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "outbox_id"}},
			DoNothing: true,
		}).Create(outboxRow).Error; err != nil {
			return storeFailure("append outbox", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("record transition persisted",
		"event", "anchoring_record_transition_persisted",
		"module", application.ModuleName,
		"layer", "adapter",
		"record_id", next.RecordID,
		"from_status", update.PreviousStatus,
		"to_status", next.Status,
		"retry_count", next.RetryCount,
	)
	return nil
}

type recordModel struct {
	RecordID        string     `gorm:"column:record_id;primaryKey"`
	Content         []byte     `gorm:"column:content;not null"`
	Digest          string     `gorm:"column:digest;not null;index"`
	AnchoringStatus string     `gorm:"column:anchoring_status;not null;index:idx_anchoring_records_status_created,priority:1"`
	LedgerSignature string     `gorm:"column:ledger_signature;not null;default:''"`
	LastError       string     `gorm:"column:last_error;not null;default:''"`
	RetryCount      int        `gorm:"column:retry_count;not null;default:0"`
	NextEligibleAt  *time.Time `gorm:"column:next_eligible_at"`
	LeaseOwner      string     `gorm:"column:lease_owner;not null;default:''"`
	LeaseExpiresAt  *time.Time `gorm:"column:lease_expires_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_anchoring_records_status_created,priority:2"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

func (recordModel) TableName() string {
	return "anchoring_records"
}

func recordModelFromEntity(record entities.Record) recordModel {
	return recordModel{
		RecordID:        record.RecordID,
		Content:         append([]byte(nil), record.Content...),
		Digest:          record.Digest,
		AnchoringStatus: string(record.Status),
		LedgerSignature: record.LedgerSignature,
		LastError:       record.LastError,
		RetryCount:      record.RetryCount,
		NextEligibleAt:  utcPtr(record.NextEligibleAt),
		LeaseOwner:      record.LeaseOwner,
		LeaseExpiresAt:  utcPtr(record.LeaseExpiresAt),
		CreatedAt:       record.CreatedAt.UTC(),
		UpdatedAt:       record.UpdatedAt.UTC(),
	}
}

func (m recordModel) toEntity() entities.Record {
	return entities.Record{
		RecordID:        m.RecordID,
		Content:         append([]byte(nil), m.Content...),
		Digest:          m.Digest,
		Status:          entities.AnchoringStatus(m.AnchoringStatus),
		LedgerSignature: m.LedgerSignature,
		LastError:       m.LastError,
		RetryCount:      m.RetryCount,
		NextEligibleAt:  utcPtr(m.NextEligibleAt),
		LeaseOwner:      m.LeaseOwner,
		LeaseExpiresAt:  utcPtr(m.LeaseExpiresAt),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type;not null"`
	PartitionKey string     `gorm:"column:partition_key;not null"`
	Payload      []byte     `gorm:"column:payload;not null"`
	Status       string     `gorm:"column:status;not null;index"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;autoCreateTime:false"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "anchoring_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

func toEntities(rows []recordModel) []entities.Record {
	items := make([]entities.Record, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func submittableStatuses() []string {
	statuses := entities.SubmittableStatuses()
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return values
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return gorm.Expr("NULL")
	}
	return value.UTC()
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := value.UTC()
	return &out
}

// storeFailure tags infrastructure errors so workers abort the cycle instead of
// touching record state. Caller cancellation passes through untouched.
func storeFailure(operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", operation, domainerrors.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
