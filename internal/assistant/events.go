package assistant

import (
	"errors"
	"strings"
	"sync"
)

type Kind string

const (
	KindProgress Kind = "progress"
	KindContent  Kind = "content"
	KindError    Kind = "error"
	KindDone     Kind = "done"
)

type Phase string

const (
	PhaseReasoning Phase = "reasoning"
	PhaseSearch    Phase = "search"
	PhaseThinking  Phase = "thinking"
	PhaseError     Phase = "error"
)

// Event is one item of the stream sent to the caller. Phase and Message are
// set for progress, Text for content and Message for error events.
type Event struct {
	Kind    Kind
	Phase   Phase
	Message string
	Text    string
}

func Progress(phase Phase, message string) Event {
	return Event{Kind: KindProgress, Phase: phase, Message: message}
}

func Content(text string) Event {
	return Event{Kind: KindContent, Text: text}
}

func Failure(message string) Event {
	return Event{Kind: KindError, Message: message}
}

func Done() Event {
	return Event{Kind: KindDone}
}

// EventSink receives the events of one request. A write error means the
// caller is gone and no further events should be sent.
type EventSink interface {
	Emit(Event) error
}

type SinkFunc func(Event) error

func (f SinkFunc) Emit(event Event) error {
	return f(event)
}

var ErrSinkClosed = errors.New("event sink is closed")

// Recorder is an in-memory sink. It rejects writes after done.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (r *Recorder) Emit(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrSinkClosed
	}
	r.events = append(r.events, event)
	if event.Kind == KindDone {
		r.closed = true
	}
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Content concatenates the text of every content event in order.
func (r *Recorder) Content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, event := range r.events {
		if event.Kind == KindContent {
			b.WriteString(event.Text)
		}
	}
	return b.String()
}
