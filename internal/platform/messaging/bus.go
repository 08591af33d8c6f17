package messaging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"notary/internal/shared/events"
)

const defaultQueueSize = 128

// Bus is the in-process topic bus the outbox relay publishes anchoring
// lifecycle events to. Every subscription owns a buffered queue drained by its
// own goroutine; when a queue is full the event is dropped for that
// subscription only and counted in Dropped.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string][]*subscription
	dropped atomic.Uint64
	logger  *slog.Logger
}

type subscription struct {
	group string
	queue chan events.Envelope
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string][]*subscription),
		logger: logger,
	}
}

// Publish hands event to every current subscriber of topic without waiting for
// the handlers to run.
func (b *Bus) Publish(ctx context.Context, topic string, event events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	subs := append([]*subscription(nil), b.topics[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn("subscriber queue full, event dropped",
				"event", "bus_event_dropped",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", sub.group,
				"event_id", event.EventID,
			)
		}
	}

	b.logger.Debug("event published",
		"event", "bus_event_published",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"subscribers", len(subs),
	)
	return nil
}

// Subscribe registers handler for topic until ctx ends. Handler errors are
// logged; the event is not redelivered.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	if handler == nil {
		return errors.New("messaging: subscribe with nil handler")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sub := &subscription{group: consumerGroup, queue: make(chan events.Envelope, defaultQueueSize)}
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()

	go b.consume(ctx, topic, sub, handler)
	return nil
}

// Dropped reports how many deliveries were lost to full subscriber queues.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers reports the live subscription count for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) consume(
	ctx context.Context,
	topic string,
	sub *subscription,
	handler func(context.Context, events.Envelope) error,
) {
	defer b.unsubscribe(topic, sub)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.queue:
			if err := handler(ctx, event); err != nil {
				b.logger.Error("consumer handler failed",
					"event", "bus_consume_failed",
					"module", "internal/platform/messaging",
					"layer", "platform",
					"topic", topic,
					"consumer_group", sub.group,
					"event_id", event.EventID,
					"event_type", event.EventType,
					"error", err.Error(),
				)
			}
		}
	}
}

func (b *Bus) unsubscribe(topic string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := slices.DeleteFunc(b.topics[topic], func(item *subscription) bool {
		return item == sub
	})
	if len(remaining) == 0 {
		delete(b.topics, topic)
		return
	}
	b.topics[topic] = remaining
}
