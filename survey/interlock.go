package survey

// interlock is the single-slot rendezvous between the blocking phase
// functions and the radio completion callbacks. It holds exactly one
// permit: idle (permit available) or occupied (permit taken). Modeled
// as a single-permit channel so completion callbacks running on other
// goroutines can release a waiting phase safely.
type interlock struct {
	ch chan struct{}
}

func newInterlock() *interlock {
	s := &interlock{ch: make(chan struct{}, 1)}
	s.ch <- struct{}{}
	return s
}

// acquire takes the permit, blocking until one is available.
func (s *interlock) acquire() {
	<-s.ch
}

// release returns the permit. Reports false (leaving state untouched)
// when the interlock is already idle, so spurious double releases are
// no-ops rather than corruption.
func (s *interlock) release() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// idle reports whether the permit is available, i.e. no operation is
// outstanding. Completion callbacks use this to detect unsolicited or
// stale events.
func (s *interlock) idle() bool {
	return len(s.ch) == 1
}
