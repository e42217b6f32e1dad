package tdma

import "testing"

type fixedClock struct {
	idx   uint32
	epoch uint64
}

func (c *fixedClock) CycleIndex() uint32 { return c.idx }
func (c *fixedClock) LocalEpoch() uint64 { return c.epoch }

type doubler struct{}

func (doubler) Adjust(delta uint64) uint64 { return delta * 2 }

func TestUsToDwt(t *testing.T) {
	if got := UsToDwt(1); got != 1<<DwtShift {
		t.Errorf("UsToDwt(1) = %x, want %x", got, 1<<DwtShift)
	}
	// Times wrap at the 40-bit timer range
	if got := UsToDwt(1 << 30); got != (uint64(1)<<(30+DwtShift))&TimeMask {
		t.Errorf("UsToDwt did not wrap: %x", got)
	}
}

func TestSlotStartTime(t *testing.T) {
	clock := &fixedClock{epoch: 0x1000000}
	s := &Slot{Index: 4, Period: 100000, NumSlots: 16, Clock: clock}

	want := (clock.epoch + (uint64(4)*(uint64(100000)<<DwtShift))/16) & TimeMask
	if got := s.StartTime(); got != want {
		t.Errorf("StartTime = %x, want %x", got, want)
	}

	// Slot 0 starts at the epoch itself
	s.Index = 0
	if got := s.StartTime(); got != clock.epoch {
		t.Errorf("Slot 0 StartTime = %x, want epoch %x", got, clock.epoch)
	}
}

func TestSlotStartTimeAdjusted(t *testing.T) {
	clock := &fixedClock{epoch: 0x1000000}
	s := &Slot{Index: 2, Period: 100000, NumSlots: 16, Clock: clock, Adj: doubler{}}

	delta := (uint64(2) * (uint64(100000) << DwtShift)) / 16
	want := (clock.epoch + 2*delta) & TimeMask
	if got := s.StartTime(); got != want {
		t.Errorf("Adjusted StartTime = %x, want %x", got, want)
	}
}
