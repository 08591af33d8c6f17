package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"notary/contexts/ledger-anchoring/record-anchoring-service/adapters/memory"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	domainerrors "notary/contexts/ledger-anchoring/record-anchoring-service/domain/errors"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingIDs struct{}

func (failingIDs) NewID(context.Context) (string, error) { return "", errors.New("entropy exhausted") }

func TestCreateRecordPersistsPending(t *testing.T) {
	store := memory.NewStore(nil, nil)
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	uc := CreateRecordUseCase{Records: store, Clock: fixedClock{now: now}, IDGenerator: store}

	result, err := uc.Execute(context.Background(), CreateRecordCommand{Content: []byte(`{"b":1,"a":2}`)})
	require.NoError(t, err)

	record := result.Record
	assert.NotEmpty(t, record.RecordID)
	assert.Equal(t, entities.AnchoringStatusPending, record.Status)
	assert.Equal(t, `{"a":2,"b":1}`, string(record.Content))
	assert.Equal(t, now, record.CreatedAt)
	assert.Equal(t, now, record.UpdatedAt)

	stored, err := store.GetRecord(context.Background(), record.RecordID)
	require.NoError(t, err)
	assert.Equal(t, record.Digest, stored.Digest)
}

func TestCreateRecordRejectsInvalidContent(t *testing.T) {
	store := memory.NewStore(nil, nil)
	uc := CreateRecordUseCase{Records: store, IDGenerator: store}

	_, err := uc.Execute(context.Background(), CreateRecordCommand{Content: []byte(`not json`)})
	require.ErrorIs(t, err, domainerrors.ErrInvalidRecordContent)

	items, err := store.ListRecords(context.Background(), ports.RecordListFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateRecordSurfacesIDFailure(t *testing.T) {
	uc := CreateRecordUseCase{Records: memory.NewStore(nil, nil), IDGenerator: failingIDs{}}
	_, err := uc.Execute(context.Background(), CreateRecordCommand{Content: []byte(`{}`)})
	assert.EqualError(t, err, "entropy exhausted")
}
