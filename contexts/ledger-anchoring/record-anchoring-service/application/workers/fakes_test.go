package workers_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"notary/contexts/ledger-anchoring/record-anchoring-service/adapters/memory"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: epoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedLedger answers from callbacks and counts calls per record.
type scriptedLedger struct {
	mu           sync.Mutex
	submit       func(call int, req ports.SubmitRequest) (string, error)
	confirm      func(call int, signatureID string) (services.ConfirmationState, error)
	submitCalls  map[string]int
	submitTotal  int
	checkedOrder []string
}

func (l *scriptedLedger) Submit(ctx context.Context, req ports.SubmitRequest) (string, error) {
	l.mu.Lock()
	if l.submitCalls == nil {
		l.submitCalls = make(map[string]int)
	}
	l.submitCalls[req.RecordID]++
	l.submitTotal++
	call := l.submitTotal
	submit := l.submit
	l.mu.Unlock()

	if submit == nil {
		return "sig-" + req.RecordID, nil
	}
	return submit(call, req)
}

func (l *scriptedLedger) CheckConfirmation(_ context.Context, signatureID string) (services.ConfirmationState, error) {
	l.mu.Lock()
	l.checkedOrder = append(l.checkedOrder, signatureID)
	call := len(l.checkedOrder)
	confirm := l.confirm
	l.mu.Unlock()

	if confirm == nil {
		return services.ConfirmationConfirmed, nil
	}
	return confirm(call, signatureID)
}

func (l *scriptedLedger) totals() (int, map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	calls := make(map[string]int, len(l.submitCalls))
	for id, n := range l.submitCalls {
		calls[id] = n
	}
	return l.submitTotal, calls
}

func (l *scriptedLedger) checks() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.checkedOrder...)
}

type staticSigner struct {
	err error
}

func (s staticSigner) Sign(_ context.Context, payload []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("signed:"), payload...), nil
}

func (s staticSigner) PublicIdentity() string {
	return "test:key"
}

// seedPending creates n pending records one second apart, oldest first.
func seedPending(t *testing.T, store *memory.Store, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("rec-%02d", i+1)
		record, err := entities.NewRecord(id, []byte(fmt.Sprintf(`{"seq":%d}`, i)), epoch.Add(time.Duration(i-n)*time.Second))
		require.NoError(t, err)
		_, err = store.CreateRecord(context.Background(), record)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

// submittedRecord builds a record already accepted by the ledger.
func submittedRecord(t *testing.T, id string, signatureID string, updatedAt time.Time) entities.Record {
	t.Helper()
	record, err := entities.NewRecord(id, []byte(`{"id":"`+id+`"}`), updatedAt.Add(-time.Minute))
	require.NoError(t, err)
	record.Status = entities.AnchoringStatusSubmitted
	record.LedgerSignature = signatureID
	record.RetryCount = 1
	record.UpdatedAt = updatedAt
	return record
}

func mustGet(t *testing.T, store *memory.Store, id string) entities.Record {
	t.Helper()
	record, err := store.GetRecord(context.Background(), id)
	require.NoError(t, err)
	return record
}
