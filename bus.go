package pipebus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ HealthChecker = (*Bus)(nil)

// Bus is the coordinating Facade between pipelines: it owns the address
// registry, hands out the two endpoint types and implements the process-wide
// lifecycle. It holds no per-event state; all blocking happens inside the
// endpoints. Construct one per process (or one per test) via BusBuilder.
type Bus struct {
	registry *addressRegistry
	clock    xclock.Clock
	logger   *xlog.Logger

	defaultCapacity    int
	stallWarnThreshold time.Duration

	outputsMu sync.Mutex
	outputs   map[*Output]struct{}

	// blocked tracks addresses senders are currently suspended on, for
	// stalled-shutdown diagnostics.
	blockedMu sync.Mutex
	blocked   map[string]int

	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer

	metrics   *busMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

// busMetrics uses lock-free atomics on the hot path.
type busMetrics struct {
	sent              atomic.Uint64
	delivered         atomic.Uint64
	dropped           atomic.Uint64
	cloned            atomic.Uint64
	unresolvedRetries atomic.Uint64
	stallWarnings     atomic.Uint64
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// OpenInput binds a receiving endpoint to the address with the given intake
// capacity (capacity <= 0 uses the bus default). Binding is exclusive: a
// second live input for the same address fails with AlreadyBoundError.
func (b *Bus) OpenInput(address string, capacity int) (*Input, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if address == "" {
		return nil, ErrInvalidAddress
	}
	if capacity <= 0 {
		capacity = b.defaultCapacity
	}

	in := &Input{
		bus:     b,
		address: address,
		intake:  make(chan *Event, capacity),
		done:    make(chan struct{}),
	}
	if err := b.registry.bind(address, in); err != nil {
		return nil, err
	}

	b.notifyAsync(BusEvent{Type: EventInputOpen, Address: address})
	b.logger.Debug().
		Str("address", address).
		Msg("pipebus: input bound")
	return in, nil
}

// NewOutput creates a sending endpoint for the pipeline identified by origin.
// Destinations are delivered to in the given order on every Send. With
// ensureDelivery, unresolved destinations are retried until bound; without
// it, they are skipped and the copy dropped.
func (b *Bus) NewOutput(origin string, destinations []string, ensureDelivery bool, opts ...OutputOption) (*Output, error) {
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}
	for _, d := range destinations {
		if d == "" {
			return nil, ErrInvalidAddress
		}
	}

	o := &Output{
		bus:            b,
		origin:         origin,
		destinations:   append([]string(nil), destinations...),
		ensureDelivery: ensureDelivery,
		backoff:        DefaultBackoff,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	b.outputsMu.Lock()
	b.outputs[o] = struct{}{}
	b.outputsMu.Unlock()
	return o, nil
}

// Addresses returns a sorted snapshot of currently bound addresses.
func (b *Bus) Addresses() []string { return b.registry.addresses() }

// BlockedAddresses returns the addresses senders are currently suspended on,
// either offering into a full intake or retrying resolution.
func (b *Bus) BlockedAddresses() []string {
	b.blockedMu.Lock()
	defer b.blockedMu.Unlock()
	out := make([]string, 0, len(b.blocked))
	for a := range b.blocked {
		out = append(out, a)
	}
	return out
}

func (b *Bus) markBlocked(addr string) {
	b.blockedMu.Lock()
	b.blocked[addr]++
	b.blockedMu.Unlock()
}

func (b *Bus) unmarkBlocked(addr string) {
	b.blockedMu.Lock()
	if b.blocked[addr] <= 1 {
		delete(b.blocked, addr)
	} else {
		b.blocked[addr]--
	}
	b.blockedMu.Unlock()
}

func (b *Bus) blockedCount() int {
	b.blockedMu.Lock()
	defer b.blockedMu.Unlock()
	n := 0
	for _, c := range b.blocked {
		n += c
	}
	return n
}

// stallWarning surfaces a sender blocked past the configured threshold. The
// wait itself continues; this is the diagnosable signal the orchestration
// layer uses to detect address-graph cycles during shutdown.
func (b *Bus) stallWarning(addr, origin string, blocked time.Duration) {
	b.metrics.stallWarnings.Add(1)
	b.logger.Warn().
		Str("address", addr).
		Str("origin", origin).
		Dur("blocked", blocked).
		Msg("pipebus: sender blocked past stall threshold")
	b.notifyAsync(BusEvent{Type: EventStallWarning, Address: addr, Origin: origin, Duration: blocked})
}

func (b *Bus) dropOutput(o *Output) {
	b.outputsMu.Lock()
	delete(b.outputs, o)
	b.outputsMu.Unlock()
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Sent:              b.metrics.sent.Load(),
		Delivered:         b.metrics.delivered.Load(),
		Dropped:           b.metrics.dropped.Load(),
		Cloned:            b.metrics.cloned.Load(),
		UnresolvedRetries: b.metrics.unresolvedRetries.Load(),
		StallWarnings:     b.metrics.stallWarnings.Load(),
	}
	if b.observerPool != nil {
		m.ObserverDrops = b.observerPool.Stats().Dropped
	}
	return m
}

// Health reports bus health for liveness probes: degraded once stall
// warnings have been observed, unhealthy after close.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: time.Now(),
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"
	msg := ""
	if metrics.StallWarnings > 0 {
		status = "degraded"
		msg = "senders have blocked past the stall threshold"
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: time.Now(),
		Message:   msg,
	}
}

// Close tears down the bus: outputs are told to shut down first so
// resolution retries end, then every live input is closed, waking all
// blocked senders. Close then waits for blocked senders to observe closure;
// if they do not settle before the stall threshold (or ctx ends) it returns
// a StalledShutdownError naming the addresses still blocked rather than
// hanging silently. Idempotent.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.closed.Store(true)

		b.outputsMu.Lock()
		outputs := make([]*Output, 0, len(b.outputs))
		for o := range b.outputs {
			outputs = append(outputs, o)
		}
		b.outputsMu.Unlock()
		for _, o := range outputs {
			o.Close()
		}

		for _, in := range b.registry.snapshot() {
			in.Close()
		}

		closeErr = b.awaitQuiescence(ctx)

		if b.observerPool != nil {
			if err := b.observerPool.Close(5 * time.Second); err != nil {
				b.logger.Warn().Err(err).Msg("pipebus: observer pool shutdown timeout")
				if closeErr == nil {
					closeErr = err
				}
			}
		}

		b.logger.Debug().Msg("pipebus: bus closed")
	})

	return closeErr
}

// awaitQuiescence polls until no sender is blocked, bounded by the stall
// threshold and ctx.
func (b *Bus) awaitQuiescence(ctx context.Context) error {
	if b.blockedCount() == 0 {
		return nil
	}

	var deadline <-chan time.Time
	if b.stallWarnThreshold > 0 {
		t := time.NewTimer(b.stallWarnThreshold)
		defer t.Stop()
		deadline = t.C
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if b.blockedCount() == 0 {
				return nil
			}
		case <-deadline:
			return b.stalled()
		case <-ctx.Done():
			return b.stalled()
		}
	}
}

func (b *Bus) stalled() error {
	err := &StalledShutdownError{Blocked: b.BlockedAddresses()}
	b.logger.Warn().Err(err).Msg("pipebus: shutdown stalled")
	b.notifyAsync(BusEvent{Type: EventError, Err: err})
	return err
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer. The observer must be of a comparable
// type (e.g. a pointer); ObserverFunc values cannot be removed.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync dispatches bus events asynchronously (non-blocking).
func (b *Bus) notifyAsync(e BusEvent) {
	if b.observerPool == nil {
		return
	}

	b.observersMu.RLock()
	observerCount := len(b.observers)
	if observerCount == 0 {
		b.observersMu.RUnlock()
		return
	}

	// Avoid the slice copy when only one observer is attached.
	if observerCount == 1 {
		obs := b.observers[0]
		b.observersMu.RUnlock()
		b.observerPool.Notify(e, []Observer{obs})
		return
	}

	observers := make([]Observer, observerCount)
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	b.observerPool.Notify(e, observers)
}
