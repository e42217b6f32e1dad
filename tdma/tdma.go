// Package tdma defines the narrow interfaces the survey core consumes
// from the superframe scheduler and the clock-synchronization service,
// plus a soft wall-clock scheduler for host-side operation.
package tdma

// Device time units: microseconds shifted left 16 bits, wrapping at 40
// bits, matching the radio's delayed-start timer.
const (
	// DwtShift converts microseconds to device time units.
	DwtShift = 16

	// TimeMask keeps device times within the 40-bit timer range.
	TimeMask = (uint64(1) << 40) - 1
)

// UsToDwt converts microseconds to device time units.
func UsToDwt(usec uint64) uint64 {
	return (usec << DwtShift) & TimeMask
}

// ClockSource supplies the shared, network-synchronized cycle state.
// Implemented by the clock-calibration (CCP) service, or by Scheduler
// for host-side soft timing.
type ClockSource interface {
	// CycleIndex returns the superframe cycle counter, common to all
	// nodes in the cell.
	CycleIndex() uint32
	// LocalEpoch returns the device time of the current superframe
	// start.
	LocalEpoch() uint64
}

// Adjuster compensates device-time intervals for wireless clock drift.
// A nil Adjuster means no compensation.
type Adjuster interface {
	Adjust(delta uint64) uint64
}

// Slot describes one scheduler invocation: which slot of the superframe
// fired and the timing context needed to derive an absolute start time.
type Slot struct {
	// Index of this slot within the superframe.
	Index uint16
	// Period is the superframe duration in microseconds.
	Period uint32
	// NumSlots is the superframe slot count.
	NumSlots uint16
	// Clock is the shared cycle state.
	Clock ClockSource
	// Adj is the drift compensation service, may be nil.
	Adj Adjuster
}

// SlotFunc is a slot callback fired by the scheduler at the slot's
// precomputed offset within the superframe.
type SlotFunc func(*Slot)

// StartTime returns the absolute device time at which the slot's owner
// must act: epoch plus the slot's offset into the superframe, drift
// adjusted when an Adjuster is present.
func (s *Slot) StartTime() uint64 {
	delta := (uint64(s.Index) * (uint64(s.Period) << DwtShift)) / uint64(s.NumSlots)
	if s.Adj != nil {
		delta = s.Adj.Adjust(delta)
	}
	return (s.Clock.LocalEpoch() + delta) & TimeMask
}
