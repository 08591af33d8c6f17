package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"notary/internal/shared/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversByTopic(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	confirmed := make(chan events.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, events.AnchoringRecordConfirmed, "audit", func(_ context.Context, e events.Envelope) error {
		confirmed <- e
		return nil
	}))
	failed := make(chan events.Envelope, 1)
	require.NoError(t, bus.Subscribe(ctx, events.AnchoringRecordFailed, "alerts", func(_ context.Context, e events.Envelope) error {
		failed <- e
		return errors.New("alerting backend down")
	}))

	require.NoError(t, bus.Publish(ctx, events.AnchoringRecordConfirmed, events.Envelope{EventID: "evt-1", EventType: events.AnchoringRecordConfirmed}))

	select {
	case e := <-confirmed:
		assert.Equal(t, "evt-1", e.EventID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case e := <-failed:
		t.Fatalf("unexpected delivery on other topic: %s", e.EventID)
	case <-time.After(20 * time.Millisecond):
	}

	// A failing handler keeps its subscription.
	require.NoError(t, bus.Publish(ctx, events.AnchoringRecordFailed, events.Envelope{EventID: "evt-2"}))
	require.NoError(t, bus.Publish(ctx, events.AnchoringRecordFailed, events.Envelope{EventID: "evt-3"}))
	for _, want := range []string{"evt-2", "evt-3"} {
		select {
		case e := <-failed:
			assert.Equal(t, want, e.EventID)
		case <-time.After(2 * time.Second):
			t.Fatalf("%s not delivered", want)
		}
	}
}

func TestBusDropsWhenSubscriberQueueIsFull(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, bus.Subscribe(ctx, "slow", "audit", func(context.Context, events.Envelope) error {
		select {
		case <-started:
		default:
			close(started)
		}
		<-release
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, "slow", events.Envelope{EventID: "first"}))
	<-started
	for i := 0; i < defaultQueueSize; i++ {
		require.NoError(t, bus.Publish(ctx, "slow", events.Envelope{EventID: fmt.Sprintf("queued-%d", i)}))
	}
	assert.Zero(t, bus.Dropped())

	require.NoError(t, bus.Publish(ctx, "slow", events.Envelope{EventID: "overflow"}))
	assert.Equal(t, uint64(1), bus.Dropped())
	close(release)
}

func TestBusUnsubscribesWhenContextEnds(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, "topic", "audit", func(context.Context, events.Envelope) error { return nil }))
	assert.Equal(t, 1, bus.Subscribers("topic"))

	cancel()
	assert.Eventually(t, func() bool { return bus.Subscribers("topic") == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, bus.Subscribe(ctx, "topic", "audit", func(context.Context, events.Envelope) error { return nil }), context.Canceled)
	assert.ErrorIs(t, bus.Publish(ctx, "topic", events.Envelope{}), context.Canceled)
}

func TestBusRejectsNilHandlerAndToleratesNoSubscribers(t *testing.T) {
	bus := NewBus(nil)
	assert.Error(t, bus.Subscribe(context.Background(), "topic", "audit", nil))
	assert.NoError(t, bus.Publish(context.Background(), "nobody.listens", events.Envelope{EventID: "evt-1"}))
}
