package pipebus

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Backoff controls the resolution retry pacing used while a destination
// address is not yet bound.
type Backoff struct {
	// Initial is the first wait; each retry doubles it (default 10ms).
	Initial time.Duration
	// Max caps the doubled wait (default 1s).
	Max time.Duration
	// Jitter adds up to [0, Jitter] random delay per wait to avoid
	// thundering herds (default 5ms).
	Jitter time.Duration
}

// DefaultBackoff is used by outputs that do not override pacing.
var DefaultBackoff = Backoff{
	Initial: 10 * time.Millisecond,
	Max:     time.Second,
	Jitter:  5 * time.Millisecond,
}

func (b Backoff) next(attempt int) time.Duration {
	wait := b.Initial
	if wait <= 0 {
		wait = DefaultBackoff.Initial
	}
	limit := b.Max
	if limit <= 0 {
		limit = DefaultBackoff.Max
	}
	for i := 1; i < attempt && wait < limit; i++ {
		wait *= 2
	}
	if wait > limit {
		wait = limit
	}
	if b.Jitter > 0 {
		wait += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return wait
}

// Output is the sending endpoint of one pipeline. It resolves its configured
// destination addresses through the bus, clones the event once per
// destination and offers each clone to that destination's intake. Stateless
// across events beyond its configuration.
type Output struct {
	bus            *Bus
	origin         string
	destinations   []string
	ensureDelivery bool
	backoff        Backoff

	done      chan struct{}
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// OutputOption configures an Output at construction.
type OutputOption func(*Output)

// WithBackoff overrides the resolution retry pacing.
func WithBackoff(b Backoff) OutputOption {
	return func(o *Output) { o.backoff = b }
}

// Origin returns the owning pipeline identifier.
func (o *Output) Origin() string { return o.origin }

// Destinations returns the configured destination addresses in order.
func (o *Output) Destinations() []string {
	out := make([]string, len(o.destinations))
	copy(out, o.destinations)
	return out
}

// Send delivers independent deep copies of ev to every destination, in the
// configured order.
//
// Two-tier guarantee: the ensure-delivery flag only governs an UNRESOLVED
// destination (retry with backoff until bound vs. silently skip). A resolved
// destination with a full intake always blocks, in either mode, because
// congestion is transient backpressure rather than absence.
//
// A destination that closes mid-offer fails the whole call when
// ensure-delivery is set; in best-effort mode it is logged and skipped.
// Closing the output, closing the bus or ctx ending aborts the call with
// ErrShuttingDown / ctx.Err() regardless of mode.
func (o *Output) Send(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if o.bus.closed.Load() {
		return ErrBusClosed
	}
	select {
	case <-o.done:
		return ErrShuttingDown
	default:
	}

	o.inflight.Add(1)
	defer o.inflight.Done()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.bus.clock.Now()
	}
	if ev.Origin == "" {
		ev.Origin = o.origin
	}

	o.bus.metrics.sent.Add(1)
	o.bus.notifyAsync(BusEvent{Type: EventSendStart, Origin: o.origin, EventID: ev.ID})

	start := o.bus.clock.Now()
	for _, addr := range o.destinations {
		err := o.sendTo(ctx, addr, ev)
		if err == nil {
			continue
		}

		// Shutdown and cancellation always abort the whole call.
		if errors.Is(err, ErrShuttingDown) || ctx.Err() != nil {
			return o.fail(addr, ev, start, err)
		}
		if o.ensureDelivery {
			return o.fail(addr, ev, start, err)
		}

		// Best-effort: this destination's copy is discarded, remaining
		// destinations still get theirs.
		o.bus.metrics.dropped.Add(1)
		o.bus.notifyAsync(BusEvent{Type: EventDropped, Address: addr, Origin: o.origin, EventID: ev.ID, Err: err})
		if errors.Is(err, ErrClosed) {
			o.bus.logger.Warn().
				Str("address", addr).
				Str("origin", o.origin).
				Err(err).
				Msg("pipebus: destination closed, event dropped")
		} else {
			o.bus.logger.Debug().
				Str("address", addr).
				Str("origin", o.origin).
				Msg("pipebus: destination unbound, event dropped")
		}
	}

	o.bus.notifyAsync(BusEvent{
		Type:     EventSendDone,
		Origin:   o.origin,
		EventID:  ev.ID,
		Duration: o.bus.clock.Since(start),
	})
	return nil
}

func (o *Output) fail(addr string, ev *Event, start time.Time, cause error) error {
	err := &SendError{Address: addr, Err: cause}
	o.bus.notifyAsync(BusEvent{
		Type:     EventSendDone,
		Address:  addr,
		Origin:   o.origin,
		EventID:  ev.ID,
		Duration: o.bus.clock.Since(start),
		Err:      err,
	})
	return err
}

func (o *Output) sendTo(ctx context.Context, addr string, ev *Event) error {
	in, err := o.resolve(ctx, addr)
	if err != nil {
		return err
	}

	clone := ev.Clone()
	o.bus.metrics.cloned.Add(1)

	if err := in.Offer(ctx, clone, true); err != nil {
		return err
	}
	o.bus.notifyAsync(BusEvent{Type: EventDelivered, Address: addr, Origin: o.origin, EventID: ev.ID})
	return nil
}

// resolve looks up the destination input. Unbound addresses are retried with
// backoff under ensure-delivery, bounded only by output/bus shutdown or ctx;
// in best-effort mode the first failed lookup is final.
func (o *Output) resolve(ctx context.Context, addr string) (*Input, error) {
	if in, ok := o.bus.registry.lookup(addr); ok {
		return in, nil
	}
	if !o.ensureDelivery {
		return nil, ErrUnresolvedAddress
	}

	var (
		start  = o.bus.clock.Now()
		warn   = o.bus.stallWarnThreshold
		warned bool
	)

	o.bus.markBlocked(addr)
	defer o.bus.unmarkBlocked(addr)

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(o.backoff.next(attempt))
		select {
		case <-timer.C:
		case <-o.done:
			timer.Stop()
			return nil, ErrShuttingDown
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}

		if in, ok := o.bus.registry.lookup(addr); ok {
			return in, nil
		}
		o.bus.metrics.unresolvedRetries.Add(1)

		if !warned && warn > 0 && o.bus.clock.Since(start) >= warn {
			warned = true
			o.bus.stallWarning(addr, o.origin, o.bus.clock.Since(start))
		}
	}
}

// Close marks the output as shutting down: in-flight sends blocked in the
// resolution retry loop return ErrShuttingDown. Idempotent and non-blocking;
// use Drain to wait for in-flight sends to settle.
func (o *Output) Close() {
	o.closeOnce.Do(func() {
		close(o.done)
		o.bus.dropOutput(o)
	})
}

// Drain waits for this output's in-flight sends to complete. It returns a
// StalledShutdownError if they do not settle within the bus stall threshold
// (or before ctx ends): the diagnosable form of the cyclic-address-graph
// shutdown hazard, where two pipelines are each blocked sending to the other
// and neither can finish.
func (o *Output) Drain(ctx context.Context) error {
	settled := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(settled)
	}()

	var deadline <-chan time.Time
	if warn := o.bus.stallWarnThreshold; warn > 0 {
		t := time.NewTimer(warn)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-settled:
		return nil
	case <-deadline:
	case <-ctx.Done():
	}

	err := &StalledShutdownError{Blocked: o.bus.BlockedAddresses()}
	o.bus.logger.Warn().
		Str("origin", o.origin).
		Err(err).
		Msg("pipebus: output drain stalled")
	o.bus.notifyAsync(BusEvent{Type: EventStallWarning, Origin: o.origin, Err: err})
	return err
}
