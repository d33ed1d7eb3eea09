package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Topics published by the service.
const (
	TopicTaskArrived         = "task-arrived"
	TopicTaskCreated         = "task.created"
	TopicTaskUpdated         = "task.updated"
	TopicTaskDeleted         = "task.deleted"
	TopicNotificationCreated = "notification.created"
	TopicNotificationUpdated = "notification.updated"
	TopicNotificationDeleted = "notification.deleted"
	TopicNotificationSent    = "notification.sent"
)

// MaxRedeliveries is the number of redeliveries a message gets before it is
// dead-lettered.
const MaxRedeliveries = 3

// DefaultDeadLetterPrefix prefixes the topic of dead-lettered messages.
const DefaultDeadLetterPrefix = "dlq"

// ErrBusClosed is returned when publishing or subscribing on a closed bus.
var ErrBusClosed = errors.New("event bus is closed")

// Event is the envelope of every published message.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Topic the event was published on
	Topic string `json:"topic"`

	// Payload contains the topic-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"createdAt"`
}

// NewEvent creates an Event for topic with payload serialized to JSON.
func NewEvent(topic string, payload any) (*Event, error) {
	var data []byte
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	default:
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", topic, err)
		}
	}

	return &Event{
		ID:        uuid.New(),
		Topic:     topic,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", e.Topic, err)
	}
	return nil
}

// DecodeEvent parses a wire envelope.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("malformed event envelope: %w", err)
	}
	return &ev, nil
}

// Handler defines an interface for components that can handle events.
type Handler interface {
	// HandleEvent processes the given event. A returned error causes the
	// event to be redelivered.
	HandleEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements Handler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Bus publishes events to topics and fans them out to subscribers.
type Bus interface {
	// Publish sends payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload any) error

	// Subscribe registers handler for every later message on topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close stops delivery and releases resources.
	Close() error
}

// DeadLetterTopic returns the topic that receives dead letters of topic.
func DeadLetterTopic(prefix, topic string) string {
	if prefix == "" {
		prefix = DefaultDeadLetterPrefix
	}
	return prefix + "." + topic
}

// TaskArrivedPayload is published when a task's reminder fires.
type TaskArrivedPayload struct {
	TaskID  uuid.UUID `json:"taskId"`
	UserID  uuid.UUID `json:"userId"`
	DueDate time.Time `json:"dueDate"`
}

// TaskDeletedPayload is published when a task is removed.
type TaskDeletedPayload struct {
	TaskID uuid.UUID `json:"taskId"`
}

// NotificationPayload is published on notification lifecycle topics.
type NotificationPayload struct {
	NotificationID uuid.UUID `json:"notificationId"`
	TaskID         uuid.UUID `json:"taskId"`
	Type           string    `json:"type,omitempty"`
	Status         string    `json:"status,omitempty"`
	Message        string    `json:"message,omitempty"`
}
