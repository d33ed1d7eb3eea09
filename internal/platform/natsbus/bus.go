// Package natsbus implements events.Bus on NATS JetStream.
//
// All topics share one stream bound to the "events.>" subject space. Each
// Subscribe call creates its own ephemeral consumer, so every subscriber sees
// every message (fanout), and JetStream tracks delivery counts per consumer.
// Those counts drive events.Decide: after MaxRedeliveries failed deliveries the
// message is republished on the dead-letter topic and terminated.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/reminder-api/internal/events"
	"github.com/phrazzld/reminder-api/internal/redact"
)

// SubjectPrefix is prepended to every topic to form its subject.
const SubjectPrefix = "events."

// RedeliveryHeader carries the redelivery count on dead-lettered messages.
const RedeliveryHeader = "Reminder-Redelivery-Count"

// Config holds JetStream bus settings.
type Config struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Stream is the JetStream stream name.
	Stream string

	// DeadLetterPrefix prefixes dead-letter topics.
	DeadLetterPrefix string

	// AckWait is how long the server waits for an ack before redelivering.
	AckWait time.Duration

	// RedeliveryDelay delays a nacked message's next delivery.
	RedeliveryDelay time.Duration

	// MaxAge bounds how long messages are retained in the stream.
	MaxAge time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Stream:           "REMINDER_EVENTS",
		DeadLetterPrefix: events.DefaultDeadLetterPrefix,
		AckWait:          30 * time.Second,
		RedeliveryDelay:  time.Second,
		MaxAge:           72 * time.Hour,
	}
}

// Bus implements events.Bus using JetStream.
type Bus struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	config Config
	logger *slog.Logger

	// ctx is handed to handlers; it is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	consumes []jetstream.ConsumeContext
	closed   bool
}

var _ events.Bus = (*Bus)(nil)

// New creates the stream if needed and returns a ready bus.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Bus, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	defaults := DefaultConfig()
	if cfg.Stream == "" {
		cfg.Stream = defaults.Stream
	}
	if cfg.DeadLetterPrefix == "" {
		cfg.DeadLetterPrefix = defaults.DeadLetterPrefix
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = defaults.AckWait
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaults.MaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{SubjectPrefix + ">"},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxAge:    cfg.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	busCtx, cancel := context.WithCancel(context.Background())
	return &Bus{
		js:     js,
		stream: stream,
		config: cfg,
		logger: logger.With(slog.String("component", "nats_event_bus"), slog.String("stream", cfg.Stream)),
		ctx:    busCtx,
		cancel: cancel,
	}, nil
}

// Subject returns the JetStream subject of topic.
func Subject(topic string) string {
	return SubjectPrefix + topic
}

// Publish implements events.Bus.Publish
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	event, err := events.NewEvent(topic, payload)
	if err != nil {
		return err
	}
	return b.publishEvent(ctx, event, event.ID.String(), nil)
}

// publishEvent sends the envelope with msgID as the JetStream dedupe id.
func (b *Bus) publishEvent(ctx context.Context, event *events.Event, msgID string, header nats.Header) error {
	if b.isClosed() {
		return events.ErrBusClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event envelope: %w", err)
	}

	msg := nats.NewMsg(Subject(event.Topic))
	msg.Data = data
	for k, vals := range header {
		for _, v := range vals {
			msg.Header.Add(k, v)
		}
	}

	ack, err := b.js.PublishMsg(ctx, msg, jetstream.WithMsgID(msgID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Topic, err)
	}

	b.logger.Debug("published event",
		slog.String("event_id", event.ID.String()),
		slog.String("topic", event.Topic),
		slog.Uint64("stream_seq", ack.Sequence),
		slog.Bool("duplicate", ack.Duplicate))
	return nil
}

// Subscribe implements events.Bus.Subscribe. Only messages published after
// the call are delivered.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	if b.isClosed() {
		return events.ErrBusClosed
	}

	// MaxDeliver allows one delivery past the threshold so the policy can
	// dead-letter the message.
	cons, err := b.stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject:     Subject(topic),
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           b.config.AckWait,
		MaxDeliver:        events.MaxRedeliveries + 1,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create consumer for %s: %w", topic, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		b.handle(topic, handler, msg)
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		b.logger.Warn("consumer error",
			slog.String("topic", topic),
			slog.String("error", redact.Error(err)))
	}))
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		cc.Stop()
		return events.ErrBusClosed
	}
	b.consumes = append(b.consumes, cc)

	b.logger.Debug("registered new subscriber", slog.String("topic", topic))
	return nil
}

// handle applies the delivery policy to one JetStream message.
func (b *Bus) handle(topic string, handler events.Handler, msg jetstream.Msg) {
	log := b.logger.With(slog.String("topic", topic))

	redeliveries := 0
	if meta, err := msg.Metadata(); err == nil && meta.NumDelivered > 0 {
		redeliveries = int(meta.NumDelivered - 1)
	}

	event, err := events.DecodeEvent(msg.Data())
	if err != nil {
		// A malformed envelope counts as a failed delivery.
		event = &events.Event{Topic: topic, Payload: msg.Data()}
		handler = events.HandlerFunc(func(context.Context, *events.Event) error { return err })
	}
	log = log.With(slog.String("event_id", event.ID.String()))

	action, herr := events.Decide(b.ctx, handler, event, redeliveries)
	switch action {
	case events.Ack:
		if err := msg.Ack(); err != nil {
			log.Warn("failed to ack message", slog.String("error", redact.Error(err)))
		}
	case events.Nack:
		log.Warn("event handler failed, requeueing",
			slog.String("error", redact.Error(herr)),
			slog.Int("redelivery_count", redeliveries))
		if err := b.nak(msg); err != nil {
			log.Warn("failed to nak message", slog.String("error", redact.Error(err)))
		}
	case events.DeadLetter:
		log.Error("redelivery attempts exhausted, dead-lettering event",
			slog.Int("redelivery_count", redeliveries))
		b.deadLetter(log, event, redeliveries)
		if err := msg.Term(); err != nil {
			log.Warn("failed to terminate message", slog.String("error", redact.Error(err)))
		}
	}
}

func (b *Bus) nak(msg jetstream.Msg) error {
	if b.config.RedeliveryDelay > 0 {
		return msg.NakWithDelay(b.config.RedeliveryDelay)
	}
	return msg.Nak()
}

func (b *Bus) deadLetter(log *slog.Logger, event *events.Event, redeliveries int) {
	dead := *event
	dead.Topic = events.DeadLetterTopic(b.config.DeadLetterPrefix, event.Topic)

	header := nats.Header{}
	header.Set(RedeliveryHeader, strconv.Itoa(redeliveries))

	ctx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
	defer cancel()
	msgID := dead.Topic + "-" + event.ID.String()
	if err := b.publishEvent(ctx, &dead, msgID, header); err != nil && !errors.Is(err, events.ErrBusClosed) {
		log.Warn("failed to publish dead letter", slog.String("error", redact.Error(err)))
	}
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close implements events.Bus.Close. It stops all consumers; the caller owns
// the NATS connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	consumes := b.consumes
	b.consumes = nil
	b.mu.Unlock()

	for _, cc := range consumes {
		cc.Stop()
	}
	b.cancel()
	return nil
}
