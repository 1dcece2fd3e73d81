package pipebus

import (
	"strings"
	"time"
)

// Event is the unit of data exchanged between pipelines. The Fields map may
// nest arbitrarily (maps and slices). An Event is owned by exactly one
// pipeline at a time: crossing a bus boundary always hands over a deep copy,
// so the receiver may mutate its copy without synchronization.
type Event struct {
	// ID is a unique event identifier (the bus assigns one if empty at a send
	// boundary).
	ID string
	// Fields holds the event data.
	Fields map[string]any
	// Timestamp is the arrival time (from the injected clock).
	Timestamp time.Time
	// Origin identifies the pipeline that produced the event.
	Origin string
}

// NewEvent creates an Event around the given fields. The map is used as-is;
// callers must not retain a reference they intend to mutate after sending.
func NewEvent(fields map[string]any) *Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Event{Fields: fields}
}

// Clone returns an independent deep copy of the event. Nested maps, slices
// and byte slices are copied recursively; scalar values are copied by value.
// Clone of nil is nil.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	return &Event{
		ID:        e.ID,
		Fields:    deepCopyMap(e.Fields),
		Timestamp: e.Timestamp,
		Origin:    e.Origin,
	}
}

// Get resolves a dotted field path ("response.status") against the fields.
func (e *Event) Get(path string) (any, bool) {
	if e == nil || path == "" {
		return nil, false
	}
	var cur any = e.Fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = deepCopyValue(t[i])
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		// Scalars (and time.Time) are value types; sharing is safe.
		return v
	}
}
