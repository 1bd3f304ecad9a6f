//go:build windows
// +build windows

// File: reactor/reactor_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows IOCP (I/O Completion Port) Loop implementation, adapted from the
// teacher's reactor/reactor_windows.go + reactor/iocp_reactor.go. As in the
// teacher's own code (whose iocp_reactor.go admits it is a "demo skeleton"),
// this backend demonstrates the shape of an IOCP-driven Loop without a full
// overlapped-I/O TCP stack; internal/tcpio has no Windows backend, so the
// only real consumer on this platform is the timer wheel.

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

type iocpLoop struct {
	iocp   windows.Handle
	fds    map[int]*fdEntry
	timers *timerWheel
	closed bool
}

func newPlatformLoop() (Loop, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: CreateIoCompletionPort: %w", err)
	}
	return &iocpLoop{
		iocp:   port,
		fds:    make(map[int]*fdEntry),
		timers: newTimerWheel(),
	}, nil
}

func (l *iocpLoop) RegisterFD(fd int, interest FDEvent, cb FDCallback) error {
	h := windows.Handle(fd)
	_, err := windows.CreateIoCompletionPort(h, l.iocp, uintptr(fd), 0)
	if err != nil {
		return fmt.Errorf("reactor: associate iocp: %w", err)
	}
	l.fds[fd] = &fdEntry{interest: interest, cb: cb}
	return nil
}

func (l *iocpLoop) UnregisterFD(fd int) error {
	delete(l.fds, fd)
	return nil
}

func (l *iocpLoop) StartTimer(delay time.Duration, cb TimerCallback) TimerID {
	return l.timers.start(delay, cb)
}

func (l *iocpLoop) StopTimer(id TimerID) {
	l.timers.stop(id)
}

// RunOnce fires expired timers, then drains any already-queued completion
// packets with a zero-millisecond GetQueuedCompletionStatus timeout.
func (l *iocpLoop) RunOnce() (bool, error) {
	l.timers.fireExpired()

	for {
		var bytes uint32
		var key uintptr
		var overlapped *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(l.iocp, &bytes, &key, &overlapped, 0)
		if err != nil {
			if err == windows.WAIT_TIMEOUT {
				break
			}
			return false, fmt.Errorf("reactor: GetQueuedCompletionStatus: %w", err)
		}
		fd := int(key)
		entry, ok := l.fds[fd]
		if !ok {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			entry.cb(fd, EventRead|EventWrite)
		}()
	}

	// FD callbacks may arm new timers, so count them after dispatch.
	return len(l.fds) > 0 || l.timers.heap.Len() > 0, nil
}

func (l *iocpLoop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return windows.CloseHandle(l.iocp)
}
