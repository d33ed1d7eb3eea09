package events

import (
	"context"
	"fmt"
)

// Action is the outcome of one delivery attempt.
type Action int

// Delivery outcomes
const (
	// Ack removes the message for this subscriber.
	Ack Action = iota

	// Nack requeues the message for redelivery to this subscriber.
	Nack

	// DeadLetter moves the message to the dead-letter topic without
	// invoking the handler.
	DeadLetter
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	case DeadLetter:
		return "dead_letter"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decide delivers event to handler according to the redelivery policy.
// redeliveries counts earlier failed deliveries of the same message to the
// same subscriber. The handler error, if any, is returned for logging.
func Decide(ctx context.Context, handler Handler, event *Event, redeliveries int) (action Action, err error) {
	if redeliveries >= MaxRedeliveries {
		return DeadLetter, nil
	}

	defer func() {
		if p := recover(); p != nil {
			action, err = Nack, fmt.Errorf("event handler panicked: %v", p)
		}
	}()

	if err := handler.HandleEvent(ctx, event); err != nil {
		return Nack, err
	}
	return Ack, nil
}
