package survey

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"uwbsurvey/nrng"
	"uwbsurvey/protocol"
	"uwbsurvey/radio"
	"uwbsurvey/radio/stubdev"
)

func TestNewSessionRevalidates(t *testing.T) {
	n := newNode(t, nil, 0, 4)

	again := NewSession(n.dev, 4, Options{})
	if again != n.sess {
		t.Error("Re-initialization must return the existing session")
	}
	if !again.Status().Initialized {
		t.Error("Re-initialization must leave the session initialized")
	}
}

func TestNewSessionNodeCountMismatchPanics(t *testing.T) {
	n := newNode(t, nil, 0, 4)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on nnodes mismatch")
		}
	}()
	NewSession(n.dev, 5, Options{})
}

func TestNewSessionNodeCountBounds(t *testing.T) {
	stub := stubdev.New()
	dev := radio.NewDevice(stub, radio.Config{})

	for _, nnodes := range []uint16{0, protocol.MaxNodes + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Expected panic for nnodes=%d", nnodes)
				}
			}()
			NewSession(dev, nnodes, Options{})
		}()
	}
}

func TestCloseAllowsFreshSession(t *testing.T) {
	stub := stubdev.New()
	dev := radio.NewDevice(stub, radio.Config{SlotID: 0})
	stub.Bind(dev)

	s1 := NewSession(dev, 4, Options{Ranger: nrng.NewStub()})
	s1.Close()
	if s1.Status().Initialized {
		t.Error("Close must clear initialized")
	}

	s2 := NewSession(dev, 8, Options{Ranger: nrng.NewStub()})
	defer s2.Close()
	if s2 == s1 {
		t.Error("A closed device must get a fresh session")
	}
	if s2.NumNodes() != 8 {
		t.Errorf("Fresh session nnodes = %d, want 8", s2.NumNodes())
	}
}

// runCycle drives one full survey cycle (acquisition then aggregation)
// across all nodes, with passive receivers armed before the surveyor
// broadcasts.
func runCycle(t *testing.T, nodes []*node, clock *testClock) {
	t.Helper()
	surveyor := Surveyor(clock.idx, uint16(len(nodes)))

	// Acquisition phase: every call is synchronous against the stubs
	for _, n := range nodes {
		n.sess.RangeSlot(testSlot(clock, 3))
	}

	// Aggregation phase: arm every passive receiver first
	var wg sync.WaitGroup
	for _, n := range nodes {
		if n.dev.SlotID() == surveyor {
			continue
		}
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			n.sess.BroadcastSlot(testSlot(clock, 4))
		}(n)
	}
	for _, n := range nodes {
		if n.dev.SlotID() == surveyor {
			continue
		}
		waitListening(t, n.stub)
	}
	nodes[surveyor].sess.BroadcastSlot(testSlot(clock, 4))
	wg.Wait()
}

func TestFullRoundFillsMatrixEverywhere(t *testing.T) {
	const nnodes = 4
	air := stubdev.NewAir()
	nodes := make([]*node, nnodes)
	for i := range nodes {
		nodes[i] = newNode(t, air, uint16(i), nnodes)
	}
	canRanges(nodes)

	clock := &testClock{epoch: 0x100000000}
	for cycle := 0; cycle < nnodes; cycle++ {
		clock.idx = uint32(cycle)
		runCycle(t, nodes, clock)
	}

	for i, n := range nodes {
		if !n.sess.Complete() {
			t.Errorf("Node %d matrix incomplete: %+v", i, n.sess.Matrix())
			continue
		}
		for row := 0; row < nnodes; row++ {
			r := n.sess.Row(uint16(row))
			want := protocol.AllNodes(nnodes) &^ (1 << uint(row))
			if r.Mask != want {
				t.Errorf("Node %d row %d mask %04b, want %04b", i, row, r.Mask, want)
			}
			r.Mask.ForEach(func(slot, ord int) {
				wantDist := float32(row)*16 + float32(slot)
				if r.Ranges[ord] != wantDist {
					t.Errorf("Node %d row %d slot %d: %f, want %f", i, row, slot, r.Ranges[ord], wantDist)
				}
			})
		}
	}
}

func TestScenarioCycleFive(t *testing.T) {
	const nnodes = 4
	air := stubdev.NewAir()
	nodes := make([]*node, nnodes)
	for i := range nodes {
		nodes[i] = newNode(t, air, uint16(i), nnodes)
	}
	canRanges(nodes)

	clock := &testClock{idx: 5, epoch: 0x100000000}
	runCycle(t, nodes, clock)

	// cycle 5, 4 nodes: node 1 surveys
	if len(nodes[1].rng.Requests()) != 1 {
		t.Error("Node 1 should have issued the ranging request")
	}
	for _, i := range []int{0, 2, 3} {
		if nodes[i].rng.Listens() != 1 {
			t.Errorf("Node %d should have listened", i)
		}
		row := nodes[i].sess.Row(1)
		if row.Mask != 0b1101 {
			t.Errorf("Node %d row 1 mask %04b, want 1101", i, row.Mask)
		}
		if len(row.Ranges) != 3 {
			t.Errorf("Node %d row 1 has %d distances, want 3", i, len(row.Ranges))
		}
	}
}

func TestCompletionReport(t *testing.T) {
	const nnodes = 3
	air := stubdev.NewAir()

	reports := make(chan Report, 1)
	nodes := make([]*node, nnodes)
	for i := range nodes {
		nodes[i] = newNode(t, air, uint16(i), nnodes)
	}
	// Re-init node 0 with a completion consumer
	NewSession(nodes[0].dev, nnodes, Options{OnComplete: func(r Report) { reports <- r }})
	canRanges(nodes)

	clock := &testClock{epoch: 0x100000000}
	for cycle := 0; cycle < nnodes; cycle++ {
		clock.idx = uint32(cycle)
		runCycle(t, nodes, clock)
	}

	var r Report
	select {
	case r = <-reports:
	case <-time.After(time.Second):
		t.Fatal("Completion report never delivered")
	}
	if r.Seq != uint32(nnodes-1) {
		t.Errorf("Report seq %d, want %d", r.Seq, nnodes-1)
	}
	if len(r.Rows) != nnodes {
		t.Fatalf("Report has %d rows, want %d", len(r.Rows), nnodes)
	}
	for i, row := range r.Rows {
		if row.Slot != uint16(i) {
			t.Errorf("Row %d slot %d", i, row.Slot)
		}
		if protocol.NodeMask(row.Mask).Count() != nnodes-1 {
			t.Errorf("Row %d mask %b not full", i, row.Mask)
		}
	}

	b, err := r.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Report JSON invalid: %v", err)
	}
	for _, key := range []string{"utime", "seq", "rows"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Report JSON missing %q", key)
		}
	}
}
