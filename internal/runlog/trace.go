package runlog

import (
	"encoding/json"
	"strings"
	"sync"

	"searchchat/backend/internal/assistant"
)

const (
	TraceStatusRunning = "running"
	TraceStatusDone    = "done"
	TraceStatusStopped = "stopped"
	maxTraceEntries    = 60
)

type TraceEntry struct {
	Phase   assistant.Phase `json:"phase"`
	Message string          `json:"message"`
}

type Trace struct {
	Status  string       `json:"status"`
	Summary string       `json:"summary"`
	Entries []TraceEntry `json:"entries"`
}

// Collector wraps a sink and remembers the progress events passing through
// it, keeping the most recent entries only.
type Collector struct {
	next assistant.EventSink

	mu    sync.Mutex
	trace Trace
}

func NewCollector(next assistant.EventSink) *Collector {
	return &Collector{
		next: next,
		trace: Trace{
			Status:  TraceStatusRunning,
			Entries: make([]TraceEntry, 0, 8),
		},
	}
}

func (c *Collector) Emit(event assistant.Event) error {
	c.observe(event)
	return c.next.Emit(event)
}

func (c *Collector) observe(event assistant.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch event.Kind {
	case assistant.KindProgress:
		message := strings.TrimSpace(event.Message)
		c.trace.Entries = append(c.trace.Entries, TraceEntry{Phase: event.Phase, Message: message})
		if len(c.trace.Entries) > maxTraceEntries {
			c.trace.Entries = c.trace.Entries[len(c.trace.Entries)-maxTraceEntries:]
		}
		c.trace.Summary = message
	case assistant.KindError:
		c.trace.Status = TraceStatusStopped
		c.trace.Summary = strings.TrimSpace(event.Message)
	case assistant.KindDone:
		if c.trace.Status == TraceStatusRunning {
			c.trace.Status = TraceStatusDone
		}
	}
}

// MarkStopped records a run that ended without a done event.
func (c *Collector) MarkStopped(summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trace.Status = TraceStatusStopped
	if trimmed := strings.TrimSpace(summary); trimmed != "" {
		c.trace.Summary = trimmed
	}
}

func (c *Collector) Snapshot() Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]TraceEntry, len(c.trace.Entries))
	copy(entries, c.trace.Entries)
	return Trace{Status: c.trace.Status, Summary: c.trace.Summary, Entries: entries}
}

func encodeTrace(trace Trace) (string, error) {
	if trace.Entries == nil {
		trace.Entries = []TraceEntry{}
	}
	encoded, err := json.Marshal(trace)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeTrace(raw string) (Trace, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Trace{}, false
	}
	var parsed Trace
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return Trace{}, false
	}
	switch parsed.Status {
	case TraceStatusRunning, TraceStatusDone, TraceStatusStopped:
	default:
		parsed.Status = TraceStatusDone
	}
	return parsed, true
}
