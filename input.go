package pipebus

import (
	"context"
	"sync"
	"time"
)

// Input is the receiving endpoint of a virtual address. It owns a bounded
// intake buffer that the owning pipeline drains via Receive; senders hand
// events over via Offer. A full intake signals backpressure to every sender
// instead of growing without bound.
type Input struct {
	bus     *Bus
	address string
	intake  chan *Event
	done    chan struct{}

	closeOnce sync.Once
}

// Address returns the virtual address this input is bound to.
func (in *Input) Address() string { return in.address }

// Len returns the number of currently buffered events.
func (in *Input) Len() int { return len(in.intake) }

// Cap returns the intake capacity.
func (in *Input) Cap() int { return cap(in.intake) }

// Offer hands one event to the intake. With block=false a full intake returns
// ErrWouldBlock immediately. With block=true the caller suspends until space
// frees, the input closes (ErrClosed) or ctx ends. A blocked offer that
// exceeds the bus stall threshold emits a stall warning and keeps waiting.
//
// The event is enqueued as-is; cloning is the sender's responsibility (Output
// clones per destination before offering).
func (in *Input) Offer(ctx context.Context, ev *Event, block bool) error {
	if ev == nil {
		return nil
	}

	// Closed inputs reject immediately even when buffer space remains, so
	// senders converge promptly during shutdown.
	select {
	case <-in.done:
		return ErrClosed
	default:
	}

	if !block {
		select {
		case in.intake <- ev:
			in.bus.metrics.delivered.Add(1)
			return nil
		case <-in.done:
			return ErrClosed
		default:
			return ErrWouldBlock
		}
	}

	var (
		start  = in.bus.clock.Now()
		warn   = in.bus.stallWarnThreshold
		warnC  <-chan time.Time
		warnT  *time.Timer
		warned bool
	)
	if warn > 0 {
		warnT = time.NewTimer(warn)
		warnC = warnT.C
		defer warnT.Stop()
	}

	in.bus.markBlocked(in.address)
	defer in.bus.unmarkBlocked(in.address)

	for {
		select {
		case in.intake <- ev:
			in.bus.metrics.delivered.Add(1)
			if warned {
				in.bus.logger.Debug().
					Str("address", in.address).
					Dur("blocked", in.bus.clock.Since(start)).
					Msg("pipebus: stalled offer accepted")
			}
			return nil
		case <-in.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-warnC:
			warned = true
			in.bus.stallWarning(in.address, ev.Origin, in.bus.clock.Since(start))
			warnT.Reset(warn)
		}
	}
}

// Receive dequeues one event, suspending while the input is open and empty.
// After Close it keeps returning buffered events until the intake is drained,
// then reports ErrClosed permanently.
func (in *Input) Receive(ctx context.Context) (*Event, error) {
	// Fast path, and drain path after close.
	select {
	case ev := <-in.intake:
		return ev, nil
	default:
	}

	select {
	case ev := <-in.intake:
		return ev, nil
	case <-in.done:
		// Closed while waiting: hand out anything that raced in.
		select {
		case ev := <-in.intake:
			return ev, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unbinds the address and wakes every sender currently blocked in
// Offer with ErrClosed. Idempotent. Buffered events remain available to the
// owning pipeline through Receive until drained.
func (in *Input) Close() {
	in.closeOnce.Do(func() {
		// Unbind before waking offerers: a retrying ensure_delivery sender
		// moves cleanly from the Closed rejection back into its resolution
		// loop, where the address may legitimately rebind later.
		in.bus.registry.unbind(in.address, in)
		close(in.done)

		in.bus.notifyAsync(BusEvent{Type: EventInputClose, Address: in.address})
		in.bus.logger.Debug().
			Str("address", in.address).
			Msg("pipebus: input closed")
	})
}
