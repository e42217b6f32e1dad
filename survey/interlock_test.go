package survey

import (
	"testing"
	"time"
)

func TestInterlockRestState(t *testing.T) {
	s := newInterlock()
	if !s.idle() {
		t.Error("New interlock should be idle")
	}

	s.acquire()
	if s.idle() {
		t.Error("Interlock should be occupied after acquire")
	}

	if !s.release() {
		t.Error("Release of an outstanding permit should succeed")
	}
	if !s.idle() {
		t.Error("Interlock should be idle after release")
	}
}

func TestInterlockDoubleReleaseIsNoop(t *testing.T) {
	s := newInterlock()
	if s.release() {
		t.Error("Release at rest should report false")
	}
	if !s.idle() {
		t.Error("Release at rest must leave state unchanged")
	}
}

func TestInterlockSecondAcquireBlocks(t *testing.T) {
	s := newInterlock()
	s.acquire()

	unblocked := make(chan struct{})
	go func() {
		s.acquire()
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("Second acquire should block while permit is outstanding")
	case <-time.After(10 * time.Millisecond):
	}

	s.release()
	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after release")
	}
}
