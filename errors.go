package pipebus

import (
	"fmt"
	"strings"
)

var (
	// ErrBusClosed is returned when endpoints are created or used after the
	// bus has been closed.
	ErrBusClosed = fmt.Errorf("pipebus: bus is closed")

	// ErrClosed is returned by Offer and Receive once an input has been
	// closed (beyond any remaining buffered events on the receive side).
	ErrClosed = fmt.Errorf("pipebus: input closed")

	// ErrWouldBlock is returned by a non-blocking Offer against a full intake.
	ErrWouldBlock = fmt.Errorf("pipebus: intake full")

	// ErrUnresolvedAddress signals that no input is currently bound to the
	// address. Transient: the owning pipeline may simply not have started yet.
	ErrUnresolvedAddress = fmt.Errorf("pipebus: address not bound")

	// ErrShuttingDown terminates a send once its own output has been closed.
	ErrShuttingDown = fmt.Errorf("pipebus: output shutting down")

	// ErrInvalidAddress rejects empty address strings at configuration time.
	ErrInvalidAddress = fmt.Errorf("pipebus: address must not be empty")

	// ErrNoDestinations rejects outputs configured without any destination.
	ErrNoDestinations = fmt.Errorf("pipebus: output needs at least one destination")

	// ErrObserverPoolShutdownTimeout indicates the observer pool did not
	// drain within its close timeout.
	ErrObserverPoolShutdownTimeout = fmt.Errorf("pipebus: observer pool shutdown timeout")
)

// AlreadyBoundError is returned when binding an address that another live
// input already holds. Fatal for the offending pipeline's startup.
type AlreadyBoundError struct {
	Address string
}

func (e AlreadyBoundError) Error() string {
	return fmt.Sprintf("pipebus: address %q already bound", e.Address)
}

// SendError wraps a per-destination delivery failure that escalated to the
// calling pipeline.
type SendError struct {
	Address string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("pipebus: send to %q failed: %v", e.Address, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// StalledShutdownError reports senders still blocked past the shutdown
// threshold, typically caused by a cycle in the address graph where two
// pipelines are each blocked sending to the other.
type StalledShutdownError struct {
	Blocked []string
}

func (e *StalledShutdownError) Error() string {
	return fmt.Sprintf("pipebus: shutdown stalled, senders still blocked on: %s",
		strings.Join(e.Blocked, ", "))
}
