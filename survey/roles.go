package survey

import "uwbsurvey/tdma"

// Surveyor returns the slot id acting as surveyor for the given cycle.
// Pure function of the shared cycle index and the survey size, so every
// synchronized node derives the same answer.
func Surveyor(cycleIdx uint32, nnodes uint16) uint16 {
	return uint16(cycleIdx % uint32(nnodes))
}

func (s *Session) isSurveyor(cycleIdx uint32) bool {
	return Surveyor(cycleIdx, s.nnodes) == s.dev.SlotID()
}

// listenStart shifts an active start time earlier by the preamble
// duration so the receiver is armed before the transmission lands, then
// truncates to the receive timer granularity.
func (s *Session) listenStart(dx uint64) uint64 {
	shr := uint64(s.dev.PreambleDuration()) << tdma.DwtShift
	return (dx - shr) & s.cfg.RxTimerMask
}

// RangeSlot is the acquisition-phase entry point, invoked by the
// external slot scheduler once per cycle. The role is re-derived on
// every invocation; the cycle index may have advanced since the last
// slot.
func (s *Session) RangeSlot(slot *tdma.Slot) {
	idx := slot.Clock.CycleIndex()
	s.setSeq(idx >> s.cfg.CycleSeqShift)
	dx := slot.StartTime()

	if s.isSurveyor(idx) {
		s.Request(dx & s.cfg.TxTimerMask)
	} else {
		s.Listen(s.listenStart(dx))
	}
}

// BroadcastSlot is the aggregation-phase entry point. After the final
// cycle of a full round it hands a matrix report to the completion
// consumer, off the slot timeline.
func (s *Session) BroadcastSlot(slot *tdma.Slot) {
	idx := slot.Clock.CycleIndex()
	s.setSeq(idx >> s.cfg.CycleSeqShift)
	dx := slot.StartTime()

	if s.isSurveyor(idx) {
		s.Broadcast(dx & s.cfg.TxTimerMask)
	} else {
		s.Receive(s.listenStart(dx))
	}

	if s.onComplete != nil && Surveyor(idx, s.nnodes) == s.nnodes-1 {
		go s.onComplete(s.report())
	}
}
