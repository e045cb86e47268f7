package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EventType defines the kind of event streamed to observers.
type EventType string

const (
	EventTypeLog    EventType = "log"    // EventTypeLog carries one line of agent or supervisor log output.
	EventTypeStream EventType = "stream" // EventTypeStream carries a base64-encoded JPEG snapshot of the active page.
	EventTypeResult EventType = "result" // EventTypeResult carries the agent's final result.
	EventTypeError  EventType = "error"  // EventTypeError carries the text of a run failure.
)

// Event is a tagged message broadcast to every connected observer.
//
// Events are ephemeral: they are not persisted and not replayed to observers
// that connect later.
type Event struct {
	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// Data holds the payload. It is a string for log, stream and error events
	// and any JSON value (possibly nil) for result events.
	Data any `json:"data"`
}

// NewLogEvent creates a log event.
func NewLogEvent(message string) Event {
	return Event{Type: EventTypeLog, Data: message}
}

// NewStreamEvent creates a stream event from raw image bytes.
func NewStreamEvent(image []byte) Event {
	return Event{Type: EventTypeStream, Data: base64.StdEncoding.EncodeToString(image)}
}

// NewResultEvent creates a result event. A nil result is sent as JSON null.
func NewResultEvent(result any) Event {
	return Event{Type: EventTypeResult, Data: result}
}

// NewErrorEvent creates an error event carrying the error's text verbatim.
func NewErrorEvent(err error) Event {
	if err == nil {
		return Event{Type: EventTypeError, Data: "unknown error"}
	}
	return Event{Type: EventTypeError, Data: err.Error()}
}

// IsTerminal reports whether the event ends a run (result or error).
func (e Event) IsTerminal() bool {
	return e.Type == EventTypeResult || e.Type == EventTypeError
}

// Text returns the payload as a string when it is one.
func (e Event) Text() string {
	if s, ok := e.Data.(string); ok {
		return s
	}
	return ""
}

// Marshal encodes the event as the JSON frame sent over the stream.
func (e Event) Marshal() ([]byte, error) {
	switch e.Type {
	case EventTypeLog, EventTypeStream, EventTypeResult, EventTypeError:
	default:
		return nil, fmt.Errorf("unknown event type: %q", e.Type)
	}
	return json.Marshal(e)
}
