package entities

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
)

type AnchoringStatus string

const (
	AnchoringStatusPending           AnchoringStatus = "pending"
	AnchoringStatusPendingSubmission AnchoringStatus = "pending_submission"
	AnchoringStatusSubmitted         AnchoringStatus = "submitted"
	AnchoringStatusConfirmed         AnchoringStatus = "confirmed"
	AnchoringStatusFailed            AnchoringStatus = "failed"
)

const digestPrefix = "sha256:"

func (s AnchoringStatus) Valid() bool {
	switch s {
	case AnchoringStatusPending,
		AnchoringStatusPendingSubmission,
		AnchoringStatusSubmitted,
		AnchoringStatusConfirmed,
		AnchoringStatusFailed:
		return true
	default:
		return false
	}
}

// Submittable reports whether the worker may select the record for a ledger submission.
func (s AnchoringStatus) Submittable() bool {
	return s == AnchoringStatusPending || s == AnchoringStatusPendingSubmission
}

func (s AnchoringStatus) Terminal() bool {
	return s == AnchoringStatusConfirmed || s == AnchoringStatusFailed
}

// SignatureExpected reports whether a record in this status must carry a ledger signature.
func (s AnchoringStatus) SignatureExpected() bool {
	return s == AnchoringStatusSubmitted || s == AnchoringStatusConfirmed
}

// SubmittableStatuses lists the statuses the submission worker polls for.
func SubmittableStatuses() []AnchoringStatus {
	return []AnchoringStatus{AnchoringStatusPending, AnchoringStatusPendingSubmission}
}

type Record struct {
	RecordID        string
	Content         json.RawMessage
	Digest          string
	Status          AnchoringStatus
	LedgerSignature string
	LastError       string
	RetryCount      int
	NextEligibleAt  *time.Time
	LeaseOwner      string
	LeaseExpiresAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRecord canonicalizes content, computes its digest once and returns a pending record.
func NewRecord(recordID string, content []byte, createdAt time.Time) (Record, error) {
	if strings.TrimSpace(recordID) == "" {
		return Record{}, domainerrors.ErrInvalidRecordContent
	}
	canonical, err := CanonicalContent(content)
	if err != nil {
		return Record{}, err
	}
	return Record{
		RecordID:  recordID,
		Content:   canonical,
		Digest:    ComputeDigest(canonical),
		Status:    AnchoringStatusPending,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: createdAt.UTC(),
	}, nil
}

// CanonicalContent re-encodes a JSON document with sorted object keys and no
// insignificant whitespace so equal documents share a digest.
func CanonicalContent(content []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return nil, domainerrors.ErrInvalidRecordContent
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, domainerrors.ErrInvalidRecordContent
	}
	if decoder.More() {
		return nil, domainerrors.ErrInvalidRecordContent
	}
	if value == nil {
		return nil, domainerrors.ErrInvalidRecordContent
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, domainerrors.ErrInvalidRecordContent
	}
	return canonical, nil
}

func ComputeDigest(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return digestPrefix + hex.EncodeToString(sum[:])
}

// DigestBytes decodes the raw 32-byte hash carried in Digest.
func (r Record) DigestBytes() ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(r.Digest, digestPrefix))
	if err != nil || len(raw) != sha256.Size {
		return nil, domainerrors.ErrRepositoryInvariantBroke
	}
	return raw, nil
}

// Validate checks the invariants every persisted record must satisfy.
func (r Record) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" || !strings.HasPrefix(r.Digest, digestPrefix) {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if !r.Status.Valid() || r.RetryCount < 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if r.Status.SignatureExpected() != (r.LedgerSignature != "") {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

// EligibleForSubmission applies the worker selection contract at now.
func (r Record) EligibleForSubmission(now time.Time) bool {
	if !r.Status.Submittable() {
		return false
	}
	if r.NextEligibleAt != nil && r.NextEligibleAt.After(now) {
		return false
	}
	return !r.Leased(now)
}

func (r Record) EligibleForConfirmation(now time.Time) bool {
	return r.Status == AnchoringStatusSubmitted && !r.Leased(now)
}

// Leased reports whether a worker still holds an unexpired claim on the record.
func (r Record) Leased(now time.Time) bool {
	return r.LeaseOwner != "" && r.LeaseExpiresAt != nil && r.LeaseExpiresAt.After(now)
}
