package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/reminder-api/internal/platform/logger"
)

// MemoryBusConfig configures a MemoryBus.
type MemoryBusConfig struct {
	// DeadLetterPrefix prefixes dead-letter topics. Defaults to "dlq".
	DeadLetterPrefix string

	// RedeliveryDelay is waited between a failed delivery and the next one.
	RedeliveryDelay time.Duration
}

type subscription struct {
	topic   string
	handler Handler
}

// MemoryBus is an in-process Bus. Each delivery to each subscriber runs in
// its own goroutine, so Publish never waits for handlers.
type MemoryBus struct {
	subscribers map[string][]*subscription
	deadLetters []*Event
	closed      bool
	mu          sync.RWMutex

	wg     sync.WaitGroup
	config MemoryBusConfig
	logger *slog.Logger
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates a new instance of MemoryBus.
func NewMemoryBus(config MemoryBusConfig, logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DeadLetterPrefix == "" {
		config.DeadLetterPrefix = DefaultDeadLetterPrefix
	}
	return &MemoryBus{
		subscribers: make(map[string][]*subscription),
		config:      config,
		logger:      logger.With(slog.String("component", "memory_event_bus")),
	}
}

// Subscribe implements Bus.Subscribe
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	b.subscribers[topic] = append(b.subscribers[topic], &subscription{topic: topic, handler: handler})
	b.logger.Debug("registered new subscriber",
		slog.String("topic", topic),
		slog.Int("subscriber_count", len(b.subscribers[topic])))
	return nil
}

// Publish implements Bus.Publish
func (b *MemoryBus) Publish(ctx context.Context, topic string, payload any) error {
	event, err := NewEvent(topic, payload)
	if err != nil {
		return err
	}
	return b.publishEvent(ctx, event)
}

func (b *MemoryBus) publishEvent(ctx context.Context, event *Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]*subscription, len(b.subscribers[event.Topic]))
	copy(subs, b.subscribers[event.Topic])
	// Add under the read lock so Close cannot miss a delivery.
	b.wg.Add(len(subs))
	b.mu.RUnlock()

	log := logger.FromContextOrDefault(ctx, b.logger)
	log.Debug("publishing event",
		slog.String("event_id", event.ID.String()),
		slog.String("topic", event.Topic),
		slog.Int("subscriber_count", len(subs)))

	deliveryCtx := context.WithoutCancel(ctx)
	for _, sub := range subs {
		go func(sub *subscription) {
			defer b.wg.Done()
			b.deliver(deliveryCtx, sub, event)
		}(sub)
	}
	return nil
}

// deliver runs the redelivery loop of one message for one subscriber.
func (b *MemoryBus) deliver(ctx context.Context, sub *subscription, event *Event) {
	log := logger.FromContextOrDefault(ctx, b.logger).With(
		slog.String("event_id", event.ID.String()),
		slog.String("topic", event.Topic))

	for redeliveries := 0; ; redeliveries++ {
		// Each subscriber gets its own copy of the envelope.
		msg := *event

		action, err := Decide(ctx, sub.handler, &msg, redeliveries)
		switch action {
		case Ack:
			return
		case DeadLetter:
			log.Error("redelivery attempts exhausted, dead-lettering event",
				slog.Int("redelivery_count", redeliveries))
			b.deadLetter(ctx, event)
			return
		case Nack:
			log.Warn("event handler failed, requeueing",
				slog.String("error", err.Error()),
				slog.Int("redelivery_count", redeliveries))
			if b.config.RedeliveryDelay > 0 {
				time.Sleep(b.config.RedeliveryDelay)
			}
		}
	}
}

func (b *MemoryBus) deadLetter(ctx context.Context, event *Event) {
	b.mu.Lock()
	b.deadLetters = append(b.deadLetters, event)
	b.mu.Unlock()

	dead := *event
	dead.Topic = DeadLetterTopic(b.config.DeadLetterPrefix, event.Topic)
	if err := b.publishEvent(ctx, &dead); err != nil {
		b.logger.Warn("failed to publish dead letter",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
	}
}

// DeadLetters returns the events dead-lettered so far.
func (b *MemoryBus) DeadLetters() []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Event, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// Wait blocks until every in-flight delivery has finished.
func (b *MemoryBus) Wait() {
	b.wg.Wait()
}

// Close implements Bus.Close. It waits for in-flight deliveries.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
