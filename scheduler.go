// File: scheduler.go
// Author: momentics <momentics@gmail.com>
//
// Scheduler is the collaborator spec.md §4.3 describes: a home context, an
// event loop, a socket registry, and the free-list/trampoline mechanics
// that spawn and reap tasks. Exactly one Scheduler should be constructed
// per OS thread that will drive it; NewScheduler adopts the calling
// goroutine as the home context and every Peek call thereafter must run on
// that same goroutine. Grounded on server/scheduler.go's construction and
// run-loop shape, narrowed from hioload-ws's multi-worker dispatch to the
// single home-context model spec.md §2 requires.

package corotask

import (
	"fmt"
	"log"
	"runtime"

	"github.com/momentics/corotask/affinity"
	"github.com/momentics/corotask/control"
	"github.com/momentics/corotask/internal/fiber"
	"github.com/momentics/corotask/reactor"
)

// Scheduler owns the home context, the reactor loop, and every task and
// socket handle created through it.
type Scheduler struct {
	loop reactor.Loop
	home *fiber.Context

	sockets  map[SocketHandle]*ownedHandle
	nextSock SocketHandle

	tasks      map[uint64]*Task
	nextTaskID uint64

	cfg     *control.SchedulerConfig
	probes  *control.DebugProbes
	metrics *control.MetricsRegistry

	closed bool
}

// NewScheduler constructs a Scheduler and adopts the calling goroutine as
// its home context. It must be called from the goroutine that will drive
// Peek for the Scheduler's whole lifetime. opts, if given, customize the
// Scheduler's SchedulerConfig before setup reads it — the only supported
// use today is enabling home-thread CPU pinning via
// (*control.SchedulerConfig).SetPinHomeThread.
func NewScheduler(opts ...func(*control.SchedulerConfig)) (*Scheduler, error) {
	loop, err := reactor.NewLoop()
	if err != nil {
		return nil, NewError(ErrCodeInitFailed, fmt.Sprintf("scheduler: new reactor loop: %v", err))
	}
	s := &Scheduler{
		loop:    loop,
		home:    fiber.NewHome(),
		sockets: make(map[SocketHandle]*ownedHandle),
		tasks:   make(map[uint64]*Task),
		cfg:     control.NewSchedulerConfig(),
		probes:  control.NewDebugProbes(),
		metrics: control.NewMetricsRegistry(),
	}
	for _, opt := range opts {
		opt(s.cfg)
	}
	s.registerProbes()
	s.cfg.OnReload(func() {
		log.Printf("corotask: scheduler config reloaded: recv_buffer=%d accept_log_interval=%d pin_home_thread=%v",
			s.cfg.DefaultRecvBuffer(), s.cfg.AcceptLogInterval(), s.cfg.PinHomeThread())
	})
	if s.cfg.PinHomeThread() {
		runtime.LockOSThread()
		if err := affinity.SetAffinity(0); err != nil {
			log.Printf("corotask: scheduler home thread affinity pin failed: %v", err)
		}
	}
	return s, nil
}

// Config returns the scheduler's tunables, mutable at runtime through its
// hot-reload path.
func (s *Scheduler) Config() *control.SchedulerConfig { return s.cfg }

// Metrics returns the scheduler's metrics registry.
func (s *Scheduler) Metrics() *control.MetricsRegistry { return s.metrics }

// Probes returns the scheduler's debug probe registry, whose DumpState
// snapshots task and socket counts on demand.
func (s *Scheduler) Probes() *control.DebugProbes { return s.probes }

func (s *Scheduler) registerProbes() {
	s.probes.RegisterProbe("corotask.tasks.active", func() any { return len(s.tasks) })
	s.probes.RegisterProbe("corotask.sockets.registered", func() any { return len(s.sockets) })
	control.RegisterPlatformProbes(s.probes)
}

// NewTask spawns a task running routine on its own fiber context. The
// routine's first entry is deferred to a future RunOnce pass through a
// zero-delay timer trampoline, so NewTask itself never suspends the
// caller. Returns false if the scheduler has already begun shutting down.
func (s *Scheduler) NewTask(routine func(*Task)) bool {
	if s.closed {
		return false
	}
	s.nextTaskID++
	task := &Task{id: s.nextTaskID, sched: s}
	task.ctx = fiber.Create(s.home, func(self *fiber.Context) {
		routine(task)
		s.freeTask(task)
		fiber.Finish(self, s.home)
	})
	s.tasks[task.id] = task
	s.metrics.Set("corotask.tasks.spawned_total", s.nextTaskID)
	home := s.home
	s.loop.StartTimer(0, func() {
		fiber.Switch(home, task.ctx)
	})
	return true
}

// freeTask arms a zero-delay timer that deletes task's fiber context on a
// future RunOnce pass. freeTask itself runs on task's own context, as the
// routine's last action before it hands control back via Finish; the
// deletion it arms runs from the home context, never from task's own
// context.
func (s *Scheduler) freeTask(task *Task) {
	id := task.id
	ctx := task.ctx
	s.loop.StartTimer(0, func() {
		fiber.Delete(ctx)
		delete(s.tasks, id)
	})
}

// Peek performs exactly one non-blocking event-loop pass: fires expired
// timers, polls the platform backend with a zero timeout, and dispatches
// ready callbacks, resuming whichever tasks they target. Must be called
// repeatedly by the host application's own loop; it never blocks. Returns
// true once no task, timer, or socket remains for the Scheduler to drive.
func (s *Scheduler) Peek() bool {
	active, err := s.loop.RunOnce()
	if err != nil {
		log.Printf("corotask: reactor run_once: %v", err)
	}
	return !active
}

// createSocket allocates a new TCP handle and registers it in the socket
// table, returning the handle the caller will use from now on.
func (s *Scheduler) createSocket() SocketHandle {
	h, err := allocateHandle(s.loop, s.home, kindTCP)
	if err != nil {
		return InvalidSocket
	}
	s.nextSock++
	sh := s.nextSock
	s.sockets[sh] = h
	return sh
}

// attachAccepted wraps an already-connected fd returned by accept(2) in a
// new handle and registers it, without allocating a kernel object.
func (s *Scheduler) attachAccepted(fd int) SocketHandle {
	h := attachHandle(s.loop, s.home, kindTCP, fd)
	s.nextSock++
	sh := s.nextSock
	s.sockets[sh] = h
	return sh
}

func (s *Scheduler) lookup(sh SocketHandle) *ownedHandle {
	return s.sockets[sh]
}

// detachSocket closes and forgets sh. Safe to call on an unknown handle.
func (s *Scheduler) detachSocket(sh SocketHandle) {
	h, ok := s.sockets[sh]
	if !ok {
		return
	}
	delete(s.sockets, sh)
	h.close()
}

// Delete tears the Scheduler down. It must be called from the home
// context, and it drains pending work by repeatedly invoking Peek until
// the loop reports nothing active — which only happens once no timer is
// pending and no socket is registered with the reactor (a listening socket
// stays registered until it is closed; any other socket only while a
// Connect, Send or Recv is outstanding on it). A scheduler left with a task
// permanently parked, or a listening socket the application never closed,
// will never satisfy that condition; callers are
// expected to have quiesced their own work first, the same discipline
// libuv's uv_loop_close demands of its callers.
func (s *Scheduler) Delete() error {
	if s.closed {
		return nil
	}
	if fiber.Current(s.home) != s.home {
		return NewError(ErrCodeInvalidArgument, "scheduler: delete must be called from the home context")
	}
	for {
		active, err := s.loop.RunOnce()
		if err != nil {
			return NewError(ErrCodeInternal, fmt.Sprintf("scheduler: drain: %v", err))
		}
		if !active {
			break
		}
	}
	s.closed = true
	log.Printf("corotask: scheduler delete: %v", s.probes.DumpState())
	if err := s.loop.Close(); err != nil {
		return NewError(ErrCodeInternal, fmt.Sprintf("scheduler: close reactor: %v", err))
	}
	return nil
}
