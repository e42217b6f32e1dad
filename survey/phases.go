package survey

import (
	"fmt"
	"log"

	"uwbsurvey/nrng"
	"uwbsurvey/protocol"
)

// Request drives the acquisition phase as surveyor: a delayed-start
// multi-node ranging exchange against every slot, starting at the
// absolute device time dxTime. The resulting distances are read back
// into this node's own matrix row. Blocking; the ranging service owns
// the completion semantics, so the interlock is not involved.
func (s *Session) Request(dxTime uint64) Status {
	s.stats.Request.Inc()

	mask := protocol.AllNodes(int(s.nnodes))
	if err := s.ranger.RequestDelayStart(protocol.BroadcastAddress, dxTime, mask); err != nil {
		log.Printf("[survey] ranging request: %v", err)
	}
	rm, dists := s.ranger.Ranges(s.nnodes)
	s.setRow(s.dev.SlotID(), rm, dists)

	return s.Status()
}

// Listen drives the acquisition phase as a peer: arm the radio at
// dxTime and hand the window to the ranging service. No matrix row is
// touched on this path; failures surface through the ranging service's
// own accounting.
func (s *Session) Listen(dxTime uint64) Status {
	s.stats.Listen.Inc()

	s.dev.SetDelayStart(dxTime)
	timeout := s.dev.FrameDuration(nrng.RequestFrameSize) + s.cfg.RxTimeoutDelay
	s.dev.SetRxTimeout(timeout)
	if err := s.ranger.Listen(dxTime, timeout); err != nil {
		log.Printf("[survey] ranging listen: %v", err)
	}

	return s.Status()
}

// Broadcast drives the aggregation phase as surveyor: flood this node's
// row at dxTime. An empty row is not an error; the phase completes
// without transmitting. A row claiming nnodes or more peers means the
// ranging state is corrupt and panics.
func (s *Session) Broadcast(dxTime uint64) Status {
	s.sem.acquire()
	s.stats.Broadcaster.Inc()

	row := s.Row(s.dev.SlotID())
	npeers := row.Mask.Count()

	s.setEmpty(npeers == 0)
	if npeers == 0 {
		s.sem.release()
		return s.Status()
	}
	if npeers >= int(s.nnodes) {
		panic(fmt.Sprintf("survey: row claims %d peers in a %d-node survey", npeers, s.nnodes))
	}

	f := protocol.Frame{
		Src:    s.dev.ShortAddress(),
		CellID: s.dev.CellID(),
		Seq:    s.Seq(),
		SlotID: s.dev.SlotID(),
		Mask:   row.Mask,
		Ranges: row.Ranges,
	}
	n, err := protocol.EncodeFrame(&f, s.frame)
	if err != nil {
		// Frame buffer is sized for nnodes-1 peers; unreachable
		// unless the row invariant above is broken.
		panic(err)
	}

	if err := s.dev.WriteTx(s.frame[:n]); err != nil {
		log.Printf("[survey] write tx: %v", err)
	}
	s.dev.WriteTxFctrl(uint16(n))
	s.dev.SetDelayStart(dxTime)

	err = s.dev.StartTx()
	s.setStartTxError(err != nil)
	if err != nil {
		// No transmission started, so no completion will come.
		s.stats.StartTxError.Inc()
		if !s.sem.idle() {
			s.sem.release()
		}
	} else {
		s.sem.acquire() // wait for tx completion
		s.sem.release()
	}
	return s.Status()
}

// Receive drives the aggregation phase as a peer: open a receive window
// sized for the largest possible broadcast and block until the frame,
// the timeout, or a device reset releases the interlock. The dxTime the
// resolver computed is not programmed here; the window opens as soon as
// the receiver starts.
func (s *Session) Receive(dxTime uint64) Status {
	s.sem.acquire()
	s.stats.Receiver.Inc()

	n := protocol.FrameSize(int(s.nnodes))
	timeout := s.dev.FrameDuration(n) + s.cfg.RxTimeoutDelay
	s.dev.SetRxTimeout(timeout)

	err := s.dev.StartRx()
	s.setStartRxError(err != nil)
	if err != nil {
		s.stats.StartRxError.Inc()
		s.sem.release()
	} else {
		s.sem.acquire() // wait for rx completion, timeout or reset
		s.sem.release()
	}
	return s.Status()
}
