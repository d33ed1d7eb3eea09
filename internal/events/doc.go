// Package events provides the fanout event bus used to decouple task
// execution from notification handling.
//
// Every subscriber of a topic receives every message published on it.
// Delivery is at-least-once: a handler error causes the message to be
// redelivered to that subscriber, and after MaxRedeliveries redeliveries the
// message is moved to a dead-letter topic instead. Handlers must therefore be
// idempotent.
//
// The primary components are:
//   - Event: the JSON envelope carried on the wire
//   - Handler: interface for components that consume events
//   - Bus: interface for publishing and subscribing
//   - Decide: the delivery policy shared by every Bus implementation
//   - MemoryBus: an in-process Bus
package events
