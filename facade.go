package pipebus

import (
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide singleton Bus, building one with defaults
// on first use. Endpoints always carry an explicit *Bus reference, so tests
// are free to run several isolated buses side by side instead.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus != nil {
		return defaultBus
	}

	bus, err := NewBusBuilder().Build()
	if err != nil {
		panic("pipebus: failed to initialize default bus: " + err.Error())
	}
	defaultBus = bus
	return defaultBus
}

// SetDefault replaces the process-wide default Bus.
func SetDefault(b *Bus) {
	if b == nil {
		panic("pipebus: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// OpenInput is the Facade using the default bus.
func OpenInput(address string, capacity int) (*Input, error) {
	return Default().OpenInput(address, capacity)
}

// NewOutput is the Facade using the default bus.
func NewOutput(origin string, destinations []string, ensureDelivery bool, opts ...OutputOption) (*Output, error) {
	return Default().NewOutput(origin, destinations, ensureDelivery, opts...)
}
