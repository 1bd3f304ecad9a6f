// File: reactor/timerheap_test.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"testing"
	"time"
)

func TestTimerWheelFiresEarliestFirst(t *testing.T) {
	w := newTimerWheel()
	var order []int
	w.start(20*time.Millisecond, func() { order = append(order, 2) })
	w.start(5*time.Millisecond, func() { order = append(order, 0) })
	w.start(10*time.Millisecond, func() { order = append(order, 1) })

	time.Sleep(30 * time.Millisecond)
	if remaining := w.fireExpired(); remaining {
		t.Error("expected no timers remaining")
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 timers fired, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("expected deadline order %v, got %v", []int{0, 1, 2}, order)
			break
		}
	}
}

func TestTimerWheelStopCancelsBeforeFire(t *testing.T) {
	w := newTimerWheel()
	fired := false
	id := w.start(5*time.Millisecond, func() { fired = true })
	w.stop(id)

	time.Sleep(10 * time.Millisecond)
	w.fireExpired()
	if fired {
		t.Error("canceled timer fired")
	}
}

func TestTimerWheelNotYetDueStaysArmed(t *testing.T) {
	w := newTimerWheel()
	w.start(time.Hour, func() {})
	if remaining := w.fireExpired(); !remaining {
		t.Error("expected the far-future timer to remain armed")
	}
}
