package entities

import (
	"testing"
	"time"

	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordCanonicalizesContent(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := NewRecord("rec-1", []byte(`{ "b": 2, "a": {"y": true, "x": [1, 2.50]} }`), createdAt)
	require.NoError(t, err)
	second, err := NewRecord("rec-2", []byte(`{"a":{"x":[1,2.50],"y":true},"b":2}`), createdAt)
	require.NoError(t, err)

	assert.Equal(t, `{"a":{"x":[1,2.50],"y":true},"b":2}`, string(first.Content))
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, AnchoringStatusPending, first.Status)
	assert.Zero(t, first.RetryCount)
	assert.Empty(t, first.LedgerSignature)
	assert.Nil(t, first.NextEligibleAt)

	raw, err := first.DigestBytes()
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, ComputeDigest(first.Content), first.Digest)
}

func TestNewRecordRejectsInvalidContent(t *testing.T) {
	createdAt := time.Now().UTC()
	cases := map[string]string{
		"empty":          "",
		"whitespace":     "   \n",
		"null":           "null",
		"malformed":      `{"a":`,
		"trailing value": `{"a":1} {"b":2}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRecord("rec-1", []byte(content), createdAt)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidRecordContent)
		})
	}

	_, err := NewRecord(" ", []byte(`{"a":1}`), createdAt)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRecordContent)
}

func TestValidateEnforcesSignaturePresence(t *testing.T) {
	record, err := NewRecord("rec-1", []byte(`{"a":1}`), time.Now())
	require.NoError(t, err)
	require.NoError(t, record.Validate())

	record.LedgerSignature = "sig"
	assert.ErrorIs(t, record.Validate(), domainerrors.ErrRepositoryInvariantBroke)

	record.Status = AnchoringStatusSubmitted
	assert.NoError(t, record.Validate())

	record.Status = AnchoringStatusConfirmed
	record.LedgerSignature = ""
	assert.ErrorIs(t, record.Validate(), domainerrors.ErrRepositoryInvariantBroke)

	record.Status = AnchoringStatus("archived")
	assert.ErrorIs(t, record.Validate(), domainerrors.ErrRepositoryInvariantBroke)
}

func TestEligibilityHonorsBackoffAndLease(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record, err := NewRecord("rec-1", []byte(`{"a":1}`), now)
	require.NoError(t, err)
	assert.True(t, record.EligibleForSubmission(now))

	later := now.Add(time.Minute)
	record.NextEligibleAt = &later
	assert.False(t, record.EligibleForSubmission(now))
	assert.True(t, record.EligibleForSubmission(later))

	record.NextEligibleAt = nil
	expires := now.Add(30 * time.Second)
	record.LeaseOwner = "worker-1/abc"
	record.LeaseExpiresAt = &expires
	assert.True(t, record.Leased(now))
	assert.False(t, record.EligibleForSubmission(now))
	assert.True(t, record.EligibleForSubmission(expires))

	record.Status = AnchoringStatusFailed
	record.LeaseOwner = ""
	assert.False(t, record.EligibleForSubmission(later))
	assert.False(t, record.EligibleForConfirmation(later))
}
