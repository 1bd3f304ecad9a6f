// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for cross-platform IO multiplexing.
// A Loop multiplexes exactly two kinds of readiness the corotask core needs:
// file-descriptor readiness (TCP connect/accept/read/write) and one-shot
// timer expiry (Sleep, zero-delay trampolines). Both are driven from a
// single non-blocking RunOnce pass; nothing here ever blocks the caller.

package reactor

import "time"

// FDEvent is a bitmask of readiness conditions reported for a registered fd.
type FDEvent uint8

const (
	EventRead FDEvent = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked once per RunOnce pass in which fd reports a
// condition in mask that intersects the fd's registered interest set.
type FDCallback func(fd int, mask FDEvent)

// TimerCallback is invoked exactly once, when a one-shot timer expires.
type TimerCallback func()

// TimerID identifies an armed one-shot timer for StopTimer.
type TimerID uint64

// Loop is the collaborator contract required by spec.md §1/§6: a timer
// with one-shot start/close, and a non-blocking driver call. TCP readiness
// is layered on top of the same FD registration used by timers' host
// platform poller.
type Loop interface {
	// RegisterFD arms interest in the given conditions for fd. Calling it
	// again for an already-registered fd replaces the interest set and
	// callback (used by recv/send to arm exactly one condition at a time).
	RegisterFD(fd int, interest FDEvent, cb FDCallback) error

	// UnregisterFD removes fd from the poller. Safe to call on an fd that
	// was never registered.
	UnregisterFD(fd int) error

	// StartTimer arms a one-shot timer that fires cb no earlier than delay
	// from now, on a future RunOnce pass.
	StartTimer(delay time.Duration, cb TimerCallback) TimerID

	// StopTimer cancels a timer before it fires. Safe to call on an id
	// that already fired or was never valid.
	StopTimer(id TimerID)

	// RunOnce performs exactly one non-blocking pass: it fires every timer
	// whose deadline has passed, polls the underlying backend with a
	// zero timeout, and dispatches ready FD callbacks. hasActive reports
	// whether any registered fd or pending timer remains afterward.
	RunOnce() (hasActive bool, err error)

	// Close releases the poller backend. Must only be called once all
	// registered fds/timers have been torn down by the caller.
	Close() error
}

// NewLoop constructs the platform-appropriate Loop.
func NewLoop() (Loop, error) {
	return newPlatformLoop()
}
