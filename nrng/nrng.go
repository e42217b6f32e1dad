// Package nrng defines the interface to the multi-node ranging service:
// the collaborator that performs the actual two/three-way time-of-flight
// exchange for a slot owner against a bitmask of peers. The survey core
// only orchestrates when to invoke it and what to do with the result.
package nrng

import "uwbsurvey/protocol"

// RequestFrameSize is the on-wire length in bytes of a multi-node
// ranging request, used to derive listen timeouts.
const RequestFrameSize = 24

// Ranger is the blocking surface of the ranging service. Both calls
// manage their own completion semantics internally; callers do not see
// the underlying radio events.
type Ranger interface {
	// RequestDelayStart performs a delayed-start ranging exchange
	// against every peer whose bit is set in mask, starting at the
	// absolute device time dxTime. Blocks until the exchange resolves.
	RequestDelayStart(dst uint16, dxTime uint64, mask protocol.NodeMask) error

	// Listen arms the receiver for an inbound ranging request and
	// services the exchange as a peer. Blocks until the exchange
	// resolves or timeoutUS microseconds elapse.
	Listen(dxTime uint64, timeoutUS uint32) error

	// Ranges reads back the distances gathered by the most recent
	// exchange: a mask of peers that responded and one distance in
	// meters per set bit, ascending bit order. nnodes bounds the scan.
	Ranges(nnodes uint16) (protocol.NodeMask, []float32)
}
