//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based Loop implementation. Merges the teacher's
// reactor/epoll_reactor.go (epoll_create1/epoll_ctl/epoll_wait structure,
// panic-recovering callback dispatch) and reactor/reactor_linux.go
// (golang.org/x/sys/unix usage) into a single timer+FD driven Loop.

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type fdEntry struct {
	interest FDEvent
	cb       FDCallback
}

type epollLoop struct {
	epfd   int
	fds    map[int]*fdEntry
	timers *timerWheel
	closed bool
}

func newPlatformLoop() (Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollLoop{
		epfd:   epfd,
		fds:    make(map[int]*fdEntry),
		timers: newTimerWheel(),
	}, nil
}

func toEpollEvents(mask FDEvent) uint32 {
	var ev uint32
	if mask&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpollEvents(ev uint32) FDEvent {
	var mask FDEvent
	if ev&unix.EPOLLIN != 0 {
		mask |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		mask |= EventWrite
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= EventError
	}
	return mask
}

func (l *epollLoop) RegisterFD(fd int, interest FDEvent, cb FDCallback) error {
	event := &unix.EpollEvent{Events: toEpollEvents(interest), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if _, exists := l.fds[fd]; exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(l.epfd, op, fd, event); err != nil {
		return fmt.Errorf("reactor: epoll_ctl: %w", err)
	}
	l.fds[fd] = &fdEntry{interest: interest, cb: cb}
	return nil
}

func (l *epollLoop) UnregisterFD(fd int) error {
	if _, ok := l.fds[fd]; !ok {
		return nil
	}
	delete(l.fds, fd)
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (l *epollLoop) StartTimer(delay time.Duration, cb TimerCallback) TimerID {
	return l.timers.start(delay, cb)
}

func (l *epollLoop) StopTimer(id TimerID) {
	l.timers.stop(id)
}

// RunOnce fires expired timers, then performs a single zero-timeout
// epoll_wait pass and dispatches any ready fds.
func (l *epollLoop) RunOnce() (bool, error) {
	timersRemain := l.timers.fireExpired()

	const maxEvents = 128
	var raw [maxEvents]unix.EpollEvent
	n, err := unix.EpollWait(l.epfd, raw[:], 0)
	if err != nil {
		if err == unix.EINTR {
			return len(l.fds) > 0 || timersRemain, nil
		}
		return false, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		entry, ok := l.fds[fd]
		if !ok {
			continue
		}
		mask := fromEpollEvents(raw[i].Events) & (entry.interest | EventError)
		if mask == 0 {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			entry.cb(fd, mask)
		}()
	}

	// FD callbacks may arm new timers, so count them after dispatch.
	return len(l.fds) > 0 || l.timers.heap.Len() > 0, nil
}

func (l *epollLoop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.epfd)
}
