package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"searchchat/backend/internal/assistant"
)

type contentFrame struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

type progressFrame struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorFrame struct {
	Content string `json:"content"`
	Error   string `json:"error"`
	Done    bool   `json:"done"`
}

func encodeEvent(event assistant.Event) ([]byte, error) {
	switch event.Kind {
	case assistant.KindContent:
		return json.Marshal(contentFrame{Content: event.Text})
	case assistant.KindProgress:
		return json.Marshal(progressFrame{Type: string(event.Phase), Message: event.Message})
	case assistant.KindError:
		return json.Marshal(errorFrame{Error: event.Message})
	case assistant.KindDone:
		return json.Marshal(contentFrame{Done: true})
	default:
		return nil, fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

// sseSink writes events as server-sent events. Headers are sent with the
// first event, so a handler can still answer with a plain JSON error until
// Committed reports true.
type sseSink struct {
	ctx       context.Context
	w         http.ResponseWriter
	flusher   http.Flusher
	committed bool
	closed    bool
	err       error
}

func newSSESink(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) *sseSink {
	return &sseSink{ctx: ctx, w: w, flusher: flusher}
}

func (s *sseSink) Emit(event assistant.Event) error {
	if s.err != nil {
		return s.err
	}
	if s.closed {
		return assistant.ErrSinkClosed
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return err
	}

	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}

	if !s.committed {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.Header().Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.committed = true
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.err = fmt.Errorf("write event: %w", err)
		return s.err
	}
	s.flusher.Flush()

	if event.Kind == assistant.KindDone {
		s.closed = true
	}
	return nil
}

func (s *sseSink) Committed() bool {
	return s.committed
}
