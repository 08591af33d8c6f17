package workers_test

import (
	"context"
	"testing"
	"time"

	"notary/contexts/ledger-anchoring/record-anchoring-service/adapters/memory"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/workers"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(store *memory.Store, ledger ports.LedgerClient, publisher ports.EventPublisher) *workers.Runner {
	runner := &workers.Runner{
		Submission: workers.SubmissionWorker{
			Queue:    store,
			Ledger:   ledger,
			Signer:   staticSigner{},
			Clock:    store,
			WorkerID: "runner",
			Policy:   services.RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
			LeaseTTL: time.Minute,
		},
		Confirmation: workers.ConfirmationSweeper{
			Queue:    store,
			Ledger:   ledger,
			Clock:    store,
			LeaseTTL: time.Minute,
		},
		PollInterval:             5 * time.Millisecond,
		ConfirmationPollInterval: 5 * time.Millisecond,
		WorkerLoops:              2,
		ShutdownGrace:            50 * time.Millisecond,
	}
	if publisher != nil {
		runner.Relay = &workers.OutboxRelay{Outbox: store, Publisher: publisher, Clock: store}
	}
	return runner
}

func TestRunnerDrivesRecordsToConfirmed(t *testing.T) {
	store := memory.NewStore(nil, nil)
	ids := seedPending(t, store, 3)
	publisher := &recordingPublisher{}
	runner := newRunner(store, &scriptedLedger{}, publisher)

	require.NoError(t, runner.Start(context.Background()))
	require.Eventually(t, func() bool {
		for _, id := range ids {
			if mustGet(t, store, id).Status != entities.AnchoringStatusConfirmed {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(publisher.topics()) == 6 }, 5*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(stopCtx))
}

func TestRunnerRejectsSecondStart(t *testing.T) {
	store := memory.NewStore(nil, nil)
	runner := newRunner(store, &scriptedLedger{}, nil)

	require.NoError(t, runner.Start(context.Background()))
	assert.ErrorIs(t, runner.Start(context.Background()), workers.ErrRunnerAlreadyStarted)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(stopCtx))
	require.NoError(t, runner.Stop(stopCtx))

	// A stopped runner may be started again.
	require.NoError(t, runner.Start(context.Background()))
	require.NoError(t, runner.Stop(stopCtx))
}

func TestRunnerStopAbandonsStuckAttemptAfterGrace(t *testing.T) {
	store := memory.NewStore(nil, nil)
	ids := seedPending(t, store, 1)
	started := make(chan struct{})
	runner := newRunner(store, blockingLedger{started: started}, nil)
	runner.WorkerLoops = 1

	require.NoError(t, runner.Start(context.Background()))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("submission attempt never started")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	began := time.Now()
	require.NoError(t, runner.Stop(stopCtx))
	assert.GreaterOrEqual(t, time.Since(began), 40*time.Millisecond)

	record := mustGet(t, store, ids[0])
	assert.Equal(t, entities.AnchoringStatusPending, record.Status)
	assert.Zero(t, record.RetryCount)
	assert.Empty(t, record.LeaseOwner)
}

func TestRunnerStopsWhenStartContextIsCancelled(t *testing.T) {
	store := memory.NewStore(nil, nil)
	runner := newRunner(store, &scriptedLedger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, runner.Start(ctx))
	assert.True(t, runner.Running())
	cancel()

	require.Eventually(t, func() bool { return !runner.Running() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, runner.Start(context.Background()), "start after the old loops drained on their own")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, runner.Stop(stopCtx))
	assert.False(t, runner.Running())
}

func TestRunnerRestartsAfterStopTimedOut(t *testing.T) {
	store := memory.NewStore(nil, nil)
	seedPending(t, store, 1)
	started := make(chan struct{})
	runner := newRunner(store, blockingLedger{started: started}, nil)
	runner.WorkerLoops = 1

	require.NoError(t, runner.Start(context.Background()))
	<-started

	shortCtx, cancelShort := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, runner.Stop(shortCtx), context.DeadlineExceeded)
	assert.ErrorIs(t, runner.Start(context.Background()), workers.ErrRunnerAlreadyStarted, "loops are still draining")

	// The grace period aborts the stuck attempt and the runner clears itself.
	require.Eventually(t, func() bool { return !runner.Running() }, 2*time.Second, 5*time.Millisecond)
	ledger := &scriptedLedger{}
	runner.Submission.Ledger = ledger
	runner.Confirmation.Ledger = ledger
	require.NoError(t, runner.Start(context.Background()))

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(stopCtx))
}

func TestSleepOrStop(t *testing.T) {
	assert.True(t, workers.SleepOrStop(context.Background(), time.Millisecond))
	assert.True(t, workers.SleepOrStop(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, workers.SleepOrStop(ctx, time.Hour))
	assert.False(t, workers.SleepOrStop(ctx, 0))
}
