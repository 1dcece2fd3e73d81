// Package pipebus is an in-process bus that lets independently scheduled
// pipelines within one process exchange events through named virtual
// addresses, without a network hop or an external broker.
//
// A virtual address is bound by exactly one Input (the receiving pipeline);
// any number of Outputs may send to it. Every hand-off crosses the boundary
// as a deep copy, so no two pipelines ever observe the same mutable event.
// A full intake suspends senders (backpressure) instead of buffering
// unboundedly or dropping.
//
// Ordering: events from one Output to one address arrive in send order.
// Nothing is guaranteed across distinct Outputs targeting the same address;
// arrival order there depends on goroutine interleaving.
//
// Hazard: the bus does not detect cycles in the address graph. If pipeline A
// blocks sending to B while B blocks sending to A, shutdown of either cannot
// complete on its own. The bus surfaces this as stall warnings and as
// StalledShutdownError from Drain/Close rather than resolving it; breaking
// the cycle is the orchestration layer's call.
package pipebus
