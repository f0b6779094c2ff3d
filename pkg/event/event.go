// Package event provides the lifecycle event system for the script runner
// using the Observer pattern. Components emit events as scripts move through
// their state machine; subscribers (logging, tests, operators) observe them
// without coupling to the engine.
package event

import (
	"time"
)

// Type categorizes lifecycle events.
type Type string

const (
	// Script lifecycle events
	EventScriptQueued  Type = "script.queued"
	EventScriptStopped Type = "script.stopped"
	EventScriptDeleted Type = "script.deleted"

	// Execution events
	EventExecutionStarted   Type = "execution.started"
	EventExecutionCompleted Type = "execution.completed"
	EventExecutionFailed    Type = "execution.failed"

	// Sweeper events
	EventCleanupCompleted Type = "cleanup.completed"
)

// Event represents one lifecycle occurrence.
type Event struct {
	// Type categorizes the event.
	Type Type

	// ScriptID is the script the event refers to. Zero for events that are
	// not tied to a single script, such as cleanup runs.
	ScriptID int64

	// Timestamp when the event occurred.
	Timestamp time.Time

	// Data contains event-specific payload.
	Data any

	// Error is set for failure events.
	Error error
}

// New creates an event stamped with the current time.
func New(eventType Type, scriptID int64, data any) *Event {
	return &Event{
		Type:      eventType,
		ScriptID:  scriptID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewError creates a failure event.
func NewError(eventType Type, scriptID int64, err error) *Event {
	return &Event{
		Type:      eventType,
		ScriptID:  scriptID,
		Timestamp: time.Now(),
		Error:     err,
	}
}

// Handler processes events.
type Handler func(event *Event)

// Emitter publishes events to subscribers.
type Emitter interface {
	// Emit sends an event to all relevant subscribers.
	Emit(event *Event)

	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType Type, handler Handler) func()

	// SubscribeAll registers a handler for all events.
	// Returns an unsubscribe function.
	SubscribeAll(handler Handler) func()
}

// ExecutionStartedData carries the payload of execution.started events.
type ExecutionStartedData struct {
	Language string
	BodySize int
}

// ExecutionCompletedData carries the payload of execution.completed events.
type ExecutionCompletedData struct {
	Duration   time.Duration
	StdoutSize int
	StderrSize int
}

// CleanupData carries the payload of cleanup.completed events.
type CleanupData struct {
	Evicted int
}
