package pipebus

import (
	"time"
)

// EventType enumerates bus lifecycle events for the Observer pattern.
type EventType string

const (
	EventSendStart    EventType = "send_start"
	EventSendDone     EventType = "send_done"
	EventDelivered    EventType = "delivered"
	EventDropped      EventType = "dropped"
	EventInputOpen    EventType = "input_open"
	EventInputClose   EventType = "input_close"
	EventStallWarning EventType = "stall_warning"
	EventError        EventType = "error"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Type     EventType
	Address  string
	Origin   string
	EventID  string
	Duration time.Duration
	Err      error

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to full buffer
	Processed    uint64 // Events successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Sent              uint64 // send() calls accepted by an output
	Delivered         uint64 // per-destination copies accepted by an intake
	Dropped           uint64 // per-destination copies discarded (best-effort mode)
	Cloned            uint64 // deep copies made at bus boundaries
	UnresolvedRetries uint64 // resolution retry sleeps
	StallWarnings     uint64 // blocked-past-threshold diagnostics emitted
	ObserverDrops     uint64 // observer pool overflow drops
}

// HealthStatus indicates bus health for liveness probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
