// Package event carries nodeflow notifications over an in-process
// publish/subscribe bus.
//
// The engine tells a nodeflow.Notifier about every node status or cache
// change; NewNotifier turns those calls into NodeChanged events, and
// SessionReporter turns session results into SessionCompleted events, so
// editors, CLIs and loggers can observe a workflow without touching the
// engine.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by this package.
const (
	TypeNodeChanged      = "node.changed"
	TypeSessionCompleted = "session.completed"
)

// Event is an immutable notification.
type Event interface {
	ID() string
	Type() string
	Source() string
	// CorrelationID groups events of one workflow session. Empty for
	// changes made outside a session.
	CorrelationID() string
	Timestamp() time.Time
	Data() any
}

// Metadata holds the fields common to every event.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// BaseEvent is an Event with a typed payload.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string { return e.Meta.EventID }

// Type returns the event type.
func (e *BaseEvent[T]) Type() string { return e.Meta.EventType }

// Source returns the component that emitted the event.
func (e *BaseEvent[T]) Source() string { return e.Meta.EventSource }

// CorrelationID returns the session the event belongs to.
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }

// Timestamp returns when the event was created.
func (e *BaseEvent[T]) Timestamp() time.Time { return e.Meta.Timestamp }

// Data returns the payload.
func (e *BaseEvent[T]) Data() any { return e.Payload }

// TypedData returns the payload with its concrete type.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// MarshalJSON implements json.Marshaler.
func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return json.Marshal((*alias)(e))
}

// New creates an event with a fresh ID and the current time.
func New[T any](eventType, source, correlationID string, payload T) *BaseEvent[T] {
	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:       uuid.New().String(),
			EventType:     eventType,
			EventSource:   source,
			CorrelationID: correlationID,
			Timestamp:     time.Now().UTC(),
		},
		Payload: payload,
	}
}

// NodeChanged is the payload of TypeNodeChanged events.
type NodeChanged struct {
	NodeID     string `json:"node_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Dirty      bool   `json:"dirty"`
	Processing bool   `json:"processing"`
	Fault      string `json:"fault,omitempty"`
}

// SessionCompleted is the payload of TypeSessionCompleted events.
type SessionCompleted struct {
	SessionID string        `json:"session_id"`
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Processed int           `json:"processed"`
	Running   int           `json:"running"`
	Faulted   []string      `json:"faulted,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Handler processes delivered events.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle calls f(ctx, evt).
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// TypedHandler delivers only events whose payload has type T.
func TypedHandler[T any](fn func(ctx context.Context, meta Metadata, payload T) error) Handler {
	return HandlerFunc(func(ctx context.Context, evt Event) error {
		payload, ok := evt.Data().(T)
		if !ok {
			return nil
		}
		return fn(ctx, Metadata{
			EventID:       evt.ID(),
			EventType:     evt.Type(),
			EventSource:   evt.Source(),
			CorrelationID: evt.CorrelationID(),
			Timestamp:     evt.Timestamp(),
		}, payload)
	})
}
