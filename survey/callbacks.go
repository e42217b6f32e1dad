package survey

import (
	"uwbsurvey/protocol"
	"uwbsurvey/radio"
)

// macInterface builds the session's slice of the radio callback chain.
// The four handlers fire from the driver's completion dispatch while a
// phase function is blocked on the interlock; each produces at most one
// release per outstanding permit.
func (s *Session) macInterface() *radio.Interface {
	return &radio.Interface{
		ID:         radio.IDSurvey,
		RxComplete: s.rxComplete,
		TxComplete: s.txComplete,
		RxTimeout:  s.rxTimeout,
		Reset:      s.reset,
	}
}

// rxComplete validates and stores an inbound survey broadcast. Any
// verdict short of full acceptance returns false without touching the
// interlock, so other protocol layers may inspect the frame and a
// genuine broadcast arriving later in the window can still succeed.
func (s *Session) rxComplete(dev *radio.Device, data []byte) bool {
	if protocol.Fctrl(data) != protocol.FctrlRange16 {
		return false
	}

	if s.sem.idle() {
		// No receive outstanding; inbound frame is unsolicited.
		s.stats.RxUnsolicited.Inc()
		return false
	}

	f := protocol.DecodeFrame(data)
	if f == nil {
		return false
	}
	if f.CellID != dev.CellID() {
		return false
	}
	if f.Seq != s.Seq() {
		return false
	}
	if f.SlotID >= s.nnodes {
		return false
	}
	if f.Mask&^protocol.AllNodes(int(s.nnodes)) != 0 || f.Mask.Count() >= int(s.nnodes) {
		return false
	}

	s.setRow(f.SlotID, f.Mask, f.Ranges)
	s.sem.release()
	return true
}

// txComplete releases the broadcaster blocked on transmit completion.
// With no transmit outstanding the event is stale and ignored. Always
// returns false so other layers still observe the event.
func (s *Session) txComplete(dev *radio.Device) bool {
	if s.sem.idle() {
		return false
	}
	s.sem.release()
	return false
}

// rxTimeout unblocks a receive window that saw no broadcast. Expected
// and frequent; recorded only in telemetry.
func (s *Session) rxTimeout(dev *radio.Device) bool {
	if s.sem.idle() {
		return false
	}
	s.stats.RxTimeout.Inc()
	s.sem.release()
	return true
}

// reset recovers the interlock after a hard radio fault so the next
// cycle does not deadlock.
func (s *Session) reset(dev *radio.Device) bool {
	if s.sem.idle() {
		return false
	}
	s.stats.Reset.Inc()
	s.sem.release()
	return false
}
