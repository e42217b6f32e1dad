package tdma

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is a soft, wall-clock-driven superframe for hosts without a
// hardware TDMA engine. It fires assigned slot callbacks at their slot
// offsets and acts as the ClockSource for the cycle it is driving.
// Timing is best-effort: good enough for serial-attached modules and
// simulation, not for on-air slot discipline.
type Scheduler struct {
	period   time.Duration
	nslots   uint16
	start    time.Time
	cycleIdx uint32
	epoch    uint64

	mu    sync.Mutex
	slots map[uint16]SlotFunc
	adj   Adjuster

	quit chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler with the given superframe period and
// slot count.
func NewScheduler(period time.Duration, nslots uint16) *Scheduler {
	return &Scheduler{
		period: period,
		nslots: nslots,
		slots:  make(map[uint16]SlotFunc),
	}
}

// SetAdjuster installs drift compensation passed through to slots.
func (s *Scheduler) SetAdjuster(adj Adjuster) {
	s.mu.Lock()
	s.adj = adj
	s.mu.Unlock()
}

// AssignSlot binds fn to slot idx. Reassigning a slot replaces the
// previous callback; a nil fn frees it.
func (s *Scheduler) AssignSlot(idx uint16, fn SlotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.slots, idx)
		return
	}
	s.slots[idx] = fn
}

// CycleIndex implements ClockSource.
func (s *Scheduler) CycleIndex() uint32 {
	return atomic.LoadUint32(&s.cycleIdx)
}

// LocalEpoch implements ClockSource.
func (s *Scheduler) LocalEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Start launches the superframe loop. Stop ends it.
func (s *Scheduler) Start() {
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	s.start = time.Now()
	go s.run()
}

// Stop halts the superframe loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.quit == nil {
		return
	}
	close(s.quit)
	<-s.done
	s.quit = nil
}

func (s *Scheduler) run() {
	defer close(s.done)
	slotDur := s.period / time.Duration(s.nslots)
	periodUS := uint32(s.period.Microseconds())

	for frame := 0; ; frame++ {
		frameStart := s.start.Add(time.Duration(frame) * s.period)

		s.mu.Lock()
		s.epoch = UsToDwt(uint64(frameStart.Sub(s.start).Microseconds()))
		idxs := make([]int, 0, len(s.slots))
		for idx := range s.slots {
			idxs = append(idxs, int(idx))
		}
		adj := s.adj
		s.mu.Unlock()
		sort.Ints(idxs)

		for _, idx := range idxs {
			wake := frameStart.Add(time.Duration(idx) * slotDur)
			select {
			case <-s.quit:
				return
			case <-time.After(time.Until(wake)):
			}

			s.mu.Lock()
			fn := s.slots[uint16(idx)]
			s.mu.Unlock()
			if fn == nil {
				continue
			}
			fn(&Slot{
				Index:    uint16(idx),
				Period:   periodUS,
				NumSlots: s.nslots,
				Clock:    s,
				Adj:      adj,
			})
		}

		select {
		case <-s.quit:
			return
		case <-time.After(time.Until(frameStart.Add(s.period))):
		}
		atomic.AddUint32(&s.cycleIdx, 1)
	}
}
