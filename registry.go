package pipebus

import (
	"sort"
	"sync"
)

// addressRegistry maps virtual addresses to the single live input bound to
// each. It is the only shared mutable structure on the bus; every method is a
// short critical section and never blocks, all waiting happens downstream in
// the input's intake.
type addressRegistry struct {
	mu     sync.RWMutex
	inputs map[string]*Input
}

func newAddressRegistry() *addressRegistry {
	return &addressRegistry{inputs: make(map[string]*Input)}
}

// bind claims the address for in. Binding is exclusive: a second live input
// fails with AlreadyBoundError.
func (r *addressRegistry) bind(address string, in *Input) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inputs[address]; ok {
		return AlreadyBoundError{Address: address}
	}
	r.inputs[address] = in
	return nil
}

// unbind releases the address. Idempotent; only the currently bound input may
// release it, so a stale close never evicts a successor that re-bound the
// same address.
func (r *addressRegistry) unbind(address string, in *Input) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.inputs[address]; ok && cur == in {
		delete(r.inputs, address)
	}
}

// lookup returns the live input bound to the address, if any. Non-blocking;
// an absent entry means "not yet started or already stopped" and callers
// decide whether to retry.
func (r *addressRegistry) lookup(address string) (*Input, bool) {
	r.mu.RLock()
	in, ok := r.inputs[address]
	r.mu.RUnlock()
	return in, ok
}

// addresses returns a sorted snapshot of currently bound addresses.
func (r *addressRegistry) addresses() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.inputs))
	for a := range r.inputs {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// snapshot returns the currently bound inputs.
func (r *addressRegistry) snapshot() []*Input {
	r.mu.RLock()
	out := make([]*Input, 0, len(r.inputs))
	for _, in := range r.inputs {
		out = append(out, in)
	}
	r.mu.RUnlock()
	return out
}
