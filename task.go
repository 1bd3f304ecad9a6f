// File: task.go
// Author: momentics <momentics@gmail.com>
//
// Task is the coroutine-facing half of spec.md §4.2: one stackful execution
// context plus the socket verbs a routine calls on itself. Every blocking
// verb below follows the same shape — arm a reactor callback (or a
// zero-delay timer for the purely synchronous shutdown case), switch to the
// scheduler's home context, and read the outcome the callback stashed once
// resumed. Grounded on internal/transport/transport_linux.go's non-blocking
// connect/read/write dance, adapted from net.Conn-returning calls to the
// int-status calls spec.md names.

package corotask

import (
	"log"
	"net"
	"time"

	"github.com/momentics/corotask/internal/fiber"
	"github.com/momentics/corotask/internal/tcpio"
	"github.com/momentics/corotask/reactor"
)

// SocketHandle is an opaque handle into the owning Scheduler's socket
// registry. It has no meaning outside the Scheduler that issued it.
type SocketHandle int

// InvalidSocket is returned by every call that fails to produce a socket.
const InvalidSocket SocketHandle = -1

// Address family, socket type and protocol constants accepted by Socket,
// mirroring the Berkeley sockets names spec.md's glossary borrows from.
const (
	AFInet     = 2
	SockStream = 1
	IPProtoTCP = 6
)

// Task is one coroutine: an id, the Scheduler that owns it, and the fiber
// context its routine runs on. Application code only ever sees *Task
// through the routine func(t *Task) passed to Scheduler.NewTask.
type Task struct {
	id    uint64
	sched *Scheduler
	ctx   *fiber.Context
}

// ID returns the task's scheduler-local identifier, stable for its whole
// lifetime.
func (t *Task) ID() uint64 { return t.id }

// Scheduler returns the task's owning Scheduler.
func (t *Task) Scheduler() *Scheduler { return t.sched }

// Sleep suspends the calling task for at least the given duration, then
// resumes it on a future RunOnce pass. Returns false if the scheduler has
// already begun shutting down and refused to arm the timer.
func (t *Task) Sleep(d time.Duration) bool {
	if t.sched.closed {
		return false
	}
	t.sched.loop.StartTimer(d, func() {
		fiber.Switch(t.sched.home, t.ctx)
	})
	fiber.Switch(t.ctx, t.sched.home)
	return true
}

// Socket creates a new handle of the given family/type/protocol. Only
// AF_INET/SOCK_STREAM/IPPROTO_TCP is supported; anything else returns
// InvalidSocket, mirroring a real socket(2) call's EINVAL/EPROTONOSUPPORT.
func (t *Task) Socket(family, typ, proto int) SocketHandle {
	if family != AFInet || typ != SockStream || proto != IPProtoTCP {
		return InvalidSocket
	}
	return t.sched.createSocket()
}

// Bind assigns a local address to s. Synchronous; never suspends.
func (t *Task) Bind(s SocketHandle, addr *net.TCPAddr) int {
	h := t.sched.lookup(s)
	if h == nil {
		return -1
	}
	if err := tcpio.Bind(h.fd, addr); err != nil {
		return -1
	}
	return 0
}

// Listen marks s as passive and claims its permanent listen exclusive
// waiter. Calling Listen twice on the same socket fails the second time.
func (t *Task) Listen(s SocketHandle, backlog int) int {
	h := t.sched.lookup(s)
	if h == nil {
		return -1
	}
	if !h.trySetExclusive(waiterListen) {
		return -1
	}
	if err := tcpio.Listen(h.fd, backlog); err != nil {
		h.listen.lastStatus = -1
		return -1
	}
	sched := t.sched
	interval := sched.cfg.AcceptLogInterval()
	err := sched.loop.RegisterFD(h.fd, reactor.EventRead, func(fd int, mask reactor.FDEvent) {
		lw := h.listen
		lw.lastStatus = 0
		lw.queue.Add(struct{}{})
		lw.arrivals++
		if lw.arrivals%interval == 0 {
			log.Printf("corotask: listener fd=%d arrivals=%d queue_depth=%d", fd, lw.arrivals, lw.queue.Length())
		}
		if lw.awaitingTask != nil {
			awaiting := lw.awaitingTask
			lw.awaitingTask = nil
			fiber.Switch(sched.home, awaiting.ctx)
		}
	})
	if err != nil {
		h.listen.lastStatus = -1
		return -1
	}
	return 0
}

// Accept drains one arrival from s's listen queue, suspending the caller
// if none is queued yet. On resume it retries _accept_stub exactly once
// without rechecking the queue's positivity — the same single-retry
// behavior the libco original this is ported from exhibits, preserved
// rather than silently hardened, per the resolved accept-wakeup question.
func (t *Task) Accept(s SocketHandle) (SocketHandle, *net.TCPAddr) {
	h := t.sched.lookup(s)
	if h == nil || h.waiter != waiterListen {
		return InvalidSocket, nil
	}
	lw := h.listen
	for lw.queue.Length() > 0 && lw.lastStatus == 0 {
		lw.queue.Remove()
		if ns, addr, ok := t.acceptStub(h); ok {
			return ns, addr
		}
	}
	if lw.lastStatus != 0 {
		return InvalidSocket, nil
	}
	lw.awaitingTask = t
	fiber.Switch(t.ctx, t.sched.home)
	lw.awaitingTask = nil
	if lw.lastStatus != 0 {
		return InvalidSocket, nil
	}
	if lw.queue.Length() > 0 {
		lw.queue.Remove()
	}
	if ns, addr, ok := t.acceptStub(h); ok {
		return ns, addr
	}
	return InvalidSocket, nil
}

func (t *Task) acceptStub(h *ownedHandle) (SocketHandle, *net.TCPAddr, bool) {
	fd, addr, err := tcpio.Accept(h.fd)
	if err != nil {
		return InvalidSocket, nil, false
	}
	return t.sched.attachAccepted(fd), addr, true
}

// Connect begins a non-blocking connect to addr and suspends until the
// socket becomes writable, then returns 0 on success or -1 on any
// connect(2)-class failure (including connection refused).
func (t *Task) Connect(s SocketHandle, addr *net.TCPAddr) int {
	h := t.sched.lookup(s)
	if h == nil {
		return -1
	}
	if err := tcpio.Connect(h.fd, addr); err != nil {
		return -1
	}
	status := -1
	sched := t.sched
	h.pendingTask = t
	h.onCancel = func() { status = -1 }
	err := sched.loop.RegisterFD(h.fd, reactor.EventWrite, func(fd int, mask reactor.FDEvent) {
		_ = sched.loop.UnregisterFD(fd)
		h.pendingTask = nil
		h.onCancel = nil
		if cerr := tcpio.ConnectError(fd); cerr != nil {
			status = -1
		} else {
			status = 0
		}
		fiber.Switch(sched.home, t.ctx)
	})
	if err != nil {
		h.pendingTask = nil
		h.onCancel = nil
		return -1
	}
	fiber.Switch(t.ctx, t.sched.home)
	return status
}

// Send suspends the caller until s is writable, then writes buf in a
// single non-blocking write(2). Returns 0 only if the whole buffer was
// accepted by the kernel in that one call; spec.md §4.2 leaves partial
// writes to the caller rather than looping internally.
func (t *Task) Send(s SocketHandle, buf []byte) int {
	h := t.sched.lookup(s)
	if h == nil {
		return -1
	}
	status := -1
	sched := t.sched
	h.pendingTask = t
	h.onCancel = func() { status = -1 }
	err := sched.loop.RegisterFD(h.fd, reactor.EventWrite, func(fd int, mask reactor.FDEvent) {
		_ = sched.loop.UnregisterFD(fd)
		h.pendingTask = nil
		h.onCancel = nil
		n, werr := tcpio.Write(fd, buf)
		if werr == nil && n == len(buf) {
			status = 0
		} else {
			status = -1
		}
		fiber.Switch(sched.home, t.ctx)
	})
	if err != nil {
		h.pendingTask = nil
		h.onCancel = nil
		return -1
	}
	fiber.Switch(t.ctx, t.sched.home)
	return status
}

// Recv claims s's recv exclusive waiter, suspends until s is readable, and
// performs one non-blocking read(2) into buf. Returns the byte count read,
// 0 on peer shutdown, or -1 on error or if s is closed by another task
// while this call is suspended. Fails immediately without suspending if
// another recv is already outstanding on s or s is a listening socket.
func (t *Task) Recv(s SocketHandle, buf []byte) int {
	h := t.sched.lookup(s)
	if h == nil {
		return -1
	}
	if !h.trySetExclusive(waiterRecv) {
		return -1
	}
	h.recv.buf = buf
	h.recv.task = t
	sched := t.sched
	err := sched.loop.RegisterFD(h.fd, reactor.EventRead, func(fd int, mask reactor.FDEvent) {
		_ = sched.loop.UnregisterFD(fd)
		h.recv.task = nil
		n, rerr := tcpio.Read(fd, h.recv.buf)
		if rerr != nil {
			h.recv.nread = -1
		} else {
			h.recv.nread = n
		}
		fiber.Switch(sched.home, t.ctx)
	})
	if err != nil {
		h.clearExclusive()
		return -1
	}
	fiber.Switch(t.ctx, t.sched.home)
	n := h.recv.nread
	h.clearExclusive()
	return n
}

// Shutdown shuts down s's read and write halves. It suspends through a
// zero-delay timer trampoline rather than acting inline, keeping every
// socket verb's calling convention the same (arm, switch, resume) even
// though shutdown(2) itself never blocks.
func (t *Task) Shutdown(s SocketHandle) int {
	h := t.sched.lookup(s)
	if h == nil {
		return -1
	}
	status := 0
	sched := t.sched
	sched.loop.StartTimer(0, func() {
		if err := tcpio.Shutdown(h.fd); err != nil {
			status = -1
		}
		fiber.Switch(sched.home, t.ctx)
	})
	fiber.Switch(t.ctx, t.sched.home)
	return status
}

// CloseSocket releases s: unregisters it from the reactor, closes the
// kernel fd, and removes it from the scheduler's socket registry.
func (t *Task) CloseSocket(s SocketHandle) {
	t.sched.detachSocket(s)
}
