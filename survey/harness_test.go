package survey

import (
	"testing"
	"time"

	"uwbsurvey/nrng"
	"uwbsurvey/radio"
	"uwbsurvey/radio/stubdev"
	"uwbsurvey/tdma"
)

// testClock is a hand-driven ClockSource.
type testClock struct {
	idx   uint32
	epoch uint64
}

func (c *testClock) CycleIndex() uint32 { return c.idx }
func (c *testClock) LocalEpoch() uint64 { return c.epoch }

func testSlot(c *testClock, idx uint16) *tdma.Slot {
	return &tdma.Slot{Index: idx, Period: 100000, NumSlots: 16, Clock: c}
}

// node bundles one simulated survey participant.
type node struct {
	sess *Session
	stub *stubdev.Radio
	dev  *radio.Device
	rng  *nrng.Stub
}

func newNode(t *testing.T, air *stubdev.Air, slotID, nnodes uint16) *node {
	t.Helper()

	stub := stubdev.New()
	if air != nil {
		air.Join(stub)
	}
	dev := radio.NewDevice(stub, radio.Config{
		ShortAddress: 0x1000 + slotID,
		CellID:       0x17,
		SlotID:       slotID,
	})
	stub.Bind(dev)

	rng := nrng.NewStub()
	sess := NewSession(dev, nnodes, Options{Ranger: rng})
	t.Cleanup(sess.Close)

	return &node{sess: sess, stub: stub, dev: dev, rng: rng}
}

// canRanges makes every pair of nodes reachable with the distance
// slot*16 + peer, as seen from each node.
func canRanges(nodes []*node) {
	for _, n := range nodes {
		for peer := range nodes {
			if uint16(peer) == n.dev.SlotID() {
				continue
			}
			n.rng.SetRange(peer, float32(n.dev.SlotID())*16+float32(peer))
		}
	}
}

// waitListening polls until the stub's receive window opens.
func waitListening(t *testing.T, s *stubdev.Radio) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !s.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("Receive window never opened")
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// waitDone fails the test unless ch closes promptly.
func waitDone(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("%s did not complete", what)
	}
}
