// Package stream implements the chat event-stream wire format: frames of an
// `event:` line and an optional `data:` line, separated by a blank line.
package stream

import "fmt"

// Kind identifies the type of a stream event.
type Kind string

const (
	KindThinking Kind = "thinking"
	KindContent  Kind = "content"
	KindDone     Kind = "done"
	KindUnknown  Kind = "unknown"
)

func parseKind(name string) Kind {
	switch Kind(name) {
	case KindThinking, KindContent, KindDone:
		return Kind(name)
	default:
		return KindUnknown
	}
}

// Event is a decoded frame. Only the field matching Kind is set.
type Event struct {
	Kind   Kind
	Status string // thinking
	Delta  string // content
	Raw    string // unknown
}

func Thinking(status string) Event { return Event{Kind: KindThinking, Status: status} }
func Content(delta string) Event   { return Event{Kind: KindContent, Delta: delta} }
func Done() Event                  { return Event{Kind: KindDone} }

// Terminal reports whether the event ends the turn.
func (e Event) Terminal() bool { return e.Kind == KindDone }

type thinkingPayload struct {
	Status string `json:"status"`
}

type contentPayload struct {
	Delta string `json:"delta"`
}

// FrameParseError reports a frame whose data line is not valid JSON.
type FrameParseError struct {
	Frame string
	Err   error
}

func (e *FrameParseError) Error() string {
	return fmt.Sprintf("malformed frame data: %v", e.Err)
}

func (e *FrameParseError) Unwrap() error { return e.Err }

// UnknownEventKindError reports a frame without a recognized event name.
type UnknownEventKindError struct {
	Name string
}

func (e *UnknownEventKindError) Error() string {
	if e.Name == "" {
		return "frame has no event name"
	}
	return fmt.Sprintf("unknown event kind %q", e.Name)
}
