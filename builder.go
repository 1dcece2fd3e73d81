package pipebus

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

const (
	// DefaultCapacity bounds an intake when neither the input nor the bus
	// overrides it. Sized to a typical pipeline batch.
	DefaultCapacity = 128

	// DefaultStallWarnThreshold is how long a sender may stay blocked before
	// the bus surfaces a stall diagnostic.
	DefaultStallWarnThreshold = 10 * time.Second
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	logger *xlog.Logger
	clock  xclock.Clock

	defaultCapacity    int
	stallWarnThreshold time.Duration

	observers   []Observer
	poolWorkers int
	poolBuffer  int
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		defaultCapacity:    DefaultCapacity,
		stallWarnThreshold: DefaultStallWarnThreshold,
		poolWorkers:        4,
		poolBuffer:         1024,
	}
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithDefaultCapacity sets the intake capacity used when OpenInput is called
// with capacity <= 0.
func (bb *BusBuilder) WithDefaultCapacity(n int) *BusBuilder {
	if n > 0 {
		bb.defaultCapacity = n
	}
	return bb
}

// WithStallWarnThreshold sets how long a sender may stay blocked before a
// stall diagnostic is emitted; it also bounds shutdown drain waits.
// d <= 0 disables stall diagnostics.
func (bb *BusBuilder) WithStallWarnThreshold(d time.Duration) *BusBuilder {
	bb.stallWarnThreshold = d
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool sizes the async observer dispatch pool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBuffer = bufferSize
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	b := &Bus{
		registry:           newAddressRegistry(),
		clock:              clk,
		logger:             lg,
		defaultCapacity:    bb.defaultCapacity,
		stallWarnThreshold: bb.stallWarnThreshold,
		outputs:            make(map[*Output]struct{}),
		blocked:            make(map[string]int),
		metrics:            &busMetrics{},
		observerPool:       NewObserverPool(context.Background(), bb.poolWorkers, bb.poolBuffer),
	}

	// Attach a logging observer for dependable telemetry unless one was
	// supplied externally.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}
