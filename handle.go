// File: handle.go
// Author: momentics <momentics@gmail.com>
//
// The handle layer spec.md §4.1 describes: every socket or timer a task
// touches is wrapped in an ownedHandle and, for sockets that support it
// (recv, listen), an exclusive-waiter slot recording which task is parked
// on it so a close can resume it. Grounded on api/context.go's handle/
// owner pairing, generalized from hioload-ws's single always-shared buffer
// model to the one-outstanding-operation rule spec.md requires.

package corotask

import (
	"github.com/eapache/queue"
	"github.com/momentics/corotask/internal/fiber"
	"github.com/momentics/corotask/internal/tcpio"
	"github.com/momentics/corotask/reactor"
)

type handleKind uint8

const (
	kindUnknown handleKind = iota
	kindTimer
	kindTCP
)

type waiterKind uint8

const (
	waiterNone waiterKind = iota
	waiterRecv
	waiterListen
)

// recvWaiter holds the in-flight recv buffer and its outcome once the
// registered read callback fires. nread is -1 until the callback runs.
// task is the caller parked in Recv, read by wakeWaiters if the handle is
// closed out from under it.
type recvWaiter struct {
	buf   []byte
	nread int
	task  *Task
}

// listenWaiter is the exclusive waiter a listening socket carries for its
// entire lifetime: an arrival queue fed by the registered read callback,
// the last accept(2)-class status observed, the task (if any) parked in
// Accept waiting for an arrival, and a running count of total arrivals
// used to throttle queue-depth logging.
type listenWaiter struct {
	queue        *queue.Queue
	lastStatus   int
	awaitingTask *Task
	arrivals     int
}

// ownedHandle is the scheduler's private record for one socket or timer.
// Tasks never see this type directly; they operate through SocketHandle
// values the Scheduler resolves internally. home is the owning scheduler's
// home context, needed by wakeWaiters to resume a parked task correctly
// (see close, below) since close itself may run from any task's context.
type ownedHandle struct {
	kind    handleKind
	fd      int
	timerID reactor.TimerID
	loop    reactor.Loop
	home    *fiber.Context

	waiter waiterKind
	recv   *recvWaiter
	listen *listenWaiter

	// pendingTask/onCancel track a task parked in Connect or Send, the two
	// verbs that suspend on a registered FD callback without claiming the
	// exclusive-waiter slot. onCancel stashes the outcome the verb reads
	// back after resume; wakeWaiters invokes it before switching control
	// back if the handle closes while the task is parked.
	pendingTask *Task
	onCancel    func()

	closed bool
}

// allocateHandle creates a fresh kernel object for kind (a new non-blocking
// TCP socket; timers carry no kernel object until StartTimer is called).
func allocateHandle(loop reactor.Loop, home *fiber.Context, kind handleKind) (*ownedHandle, error) {
	h := &ownedHandle{kind: kind, loop: loop, home: home, fd: -1}
	if kind == kindTCP {
		fd, err := tcpio.NewSocket()
		if err != nil {
			return nil, NewError(ErrCodeInitFailed, "handle: allocate tcp socket: "+err.Error())
		}
		h.fd = fd
	}
	return h, nil
}

// attachHandle wraps an already-open fd (e.g. one returned by accept(2))
// without allocating a new kernel object.
func attachHandle(loop reactor.Loop, home *fiber.Context, kind handleKind, fd int) *ownedHandle {
	return &ownedHandle{kind: kind, loop: loop, home: home, fd: fd}
}

// trySetExclusive claims the handle's single exclusive-waiter slot for
// kind. Returns false if a different exclusive operation (or the same
// kind twice — Listen on an already-listening socket) is already
// outstanding: a socket carries at most one exclusive waiter, either one
// in-flight recv or its permanent listen waiter. Accept calls do not claim
// the slot and are not counted here.
func (h *ownedHandle) trySetExclusive(kind waiterKind) bool {
	if h.waiter != waiterNone {
		return false
	}
	h.waiter = kind
	switch kind {
	case waiterRecv:
		h.recv = &recvWaiter{nread: -1}
	case waiterListen:
		h.listen = &listenWaiter{queue: queue.New()}
	}
	return true
}

// clearExclusive releases a recv waiter. Listen waiters are never cleared;
// they live as long as the listening socket does.
func (h *ownedHandle) clearExclusive() {
	if h.waiter == waiterRecv {
		h.waiter = waiterNone
		h.recv = nil
	}
}

// close tears down the handle's kernel object and reactor registration.
// Idempotent. Per spec.md §5, a task suspended on this handle must wake
// with an error rather than stay parked forever, so close first hands any
// waiter back to the scheduler before releasing the kernel object.
func (h *ownedHandle) close() {
	if h.closed || h.kind == kindUnknown {
		return
	}
	h.closed = true
	h.wakeWaiters()
	switch h.kind {
	case kindTCP:
		if h.fd >= 0 {
			_ = h.loop.UnregisterFD(h.fd)
			_ = tcpio.Close(h.fd)
		}
	case kindTimer:
		h.loop.StopTimer(h.timerID)
	}
}

// wakeWaiters resumes any task parked in Recv, Accept, Connect or Send on
// this handle, with an error outcome, via a zero-delay timer trampoline —
// the same deferred-to-home-context mechanism NewTask and freeTask use.
// close can be invoked from an arbitrary task's own fiber context (e.g.
// one task closing another task's socket), never from home, so it cannot
// fiber.Switch into the waiter directly: only the home context is allowed
// to do that, on a future RunOnce pass.
func (h *ownedHandle) wakeWaiters() {
	home := h.home
	loop := h.loop
	if h.waiter == waiterRecv && h.recv != nil && h.recv.task != nil {
		task := h.recv.task
		h.recv.nread = -1
		h.recv.task = nil
		loop.StartTimer(0, func() {
			fiber.Switch(home, task.ctx)
		})
	}
	if h.listen != nil && h.listen.awaitingTask != nil {
		task := h.listen.awaitingTask
		h.listen.awaitingTask = nil
		h.listen.lastStatus = -1
		loop.StartTimer(0, func() {
			fiber.Switch(home, task.ctx)
		})
	}
	if h.pendingTask != nil {
		task := h.pendingTask
		cancel := h.onCancel
		h.pendingTask = nil
		h.onCancel = nil
		loop.StartTimer(0, func() {
			if cancel != nil {
				cancel()
			}
			fiber.Switch(home, task.ctx)
		})
	}
}
