package nrng

import (
	"sync"

	"uwbsurvey/protocol"
)

// Stub is an in-memory Ranger for tests and simulation. Distances are
// canned per peer slot; every request "reaches" exactly the configured
// peers.
type Stub struct {
	mu       sync.Mutex
	ranges   map[int]float32
	requests []RequestRecord
	listens  int
	// FailRequest, when set, is returned by RequestDelayStart after
	// recording the call.
	FailRequest error
}

// RequestRecord captures one RequestDelayStart invocation.
type RequestRecord struct {
	Dst    uint16
	DxTime uint64
	Mask   protocol.NodeMask
}

// NewStub creates a stub ranger with no reachable peers.
func NewStub() *Stub {
	return &Stub{ranges: make(map[int]float32)}
}

// SetRange cans the distance to the peer owning the given slot.
func (s *Stub) SetRange(slot int, meters float32) {
	s.mu.Lock()
	s.ranges[slot] = meters
	s.mu.Unlock()
}

// ClearRange makes the peer at slot unreachable again.
func (s *Stub) ClearRange(slot int) {
	s.mu.Lock()
	delete(s.ranges, slot)
	s.mu.Unlock()
}

// RequestDelayStart implements Ranger.
func (s *Stub) RequestDelayStart(dst uint16, dxTime uint64, mask protocol.NodeMask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RequestRecord{Dst: dst, DxTime: dxTime, Mask: mask})
	return s.FailRequest
}

// Listen implements Ranger.
func (s *Stub) Listen(dxTime uint64, timeoutUS uint32) error {
	s.mu.Lock()
	s.listens++
	s.mu.Unlock()
	return nil
}

// Ranges implements Ranger. The returned mask covers every canned peer
// below nnodes that was inside the last request's mask.
func (s *Stub) Ranges(nnodes uint16) (protocol.NodeMask, []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqMask := protocol.AllNodes(int(nnodes))
	if len(s.requests) > 0 {
		reqMask = s.requests[len(s.requests)-1].Mask
	}

	var mask protocol.NodeMask
	var dists []float32
	for slot := 0; slot < int(nnodes); slot++ {
		if !reqMask.Test(slot) {
			continue
		}
		if d, ok := s.ranges[slot]; ok {
			mask.Set(slot)
			dists = append(dists, d)
		}
	}
	return mask, dists
}

// Requests returns a copy of the recorded request log.
func (s *Stub) Requests() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestRecord, len(s.requests))
	copy(out, s.requests)
	return out
}

// Listens returns how many Listen calls were made.
func (s *Stub) Listens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listens
}
