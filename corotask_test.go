// File: corotask_test.go
// Author: momentics <momentics@gmail.com>

package corotask_test

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/corotask"
	"github.com/momentics/corotask/control"
)

func drain(t *testing.T, sched *corotask.Scheduler, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if sched.Peek() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never drained within timeout")
		}
	}
}

func TestSpawnInsideSpawn(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	var parentRan, childRan bool
	sched.NewTask(func(pt *corotask.Task) {
		parentRan = true
		pt.Scheduler().NewTask(func(ct *corotask.Task) {
			childRan = true
		})
	})

	drain(t, sched, 2*time.Second)
	if !parentRan || !childRan {
		t.Errorf("parentRan=%v childRan=%v", parentRan, childRan)
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestSleepOrdering(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	var order []int
	sched.NewTask(func(task *corotask.Task) {
		task.Sleep(30 * time.Millisecond)
		order = append(order, 1)
	})
	sched.NewTask(func(task *corotask.Task) {
		task.Sleep(5 * time.Millisecond)
		order = append(order, 0)
	})

	drain(t, sched, 2*time.Second)
	if len(order) != 2 || order[0] != 0 || order[1] != 1 {
		t.Errorf("expected sleep order [0 1], got %v", order)
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestEchoOverLoopback(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19320}
	var echoed string
	var clientDone bool

	sched.NewTask(func(srv *corotask.Task) {
		ln := srv.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		if ln == corotask.InvalidSocket || srv.Bind(ln, addr) != 0 || srv.Listen(ln, 16) != 0 {
			t.Error("server setup failed")
			return
		}

		client := srv.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		srv.Scheduler().NewTask(func(ct *corotask.Task) {
			if ct.Connect(client, addr) != 0 {
				t.Error("client connect failed")
				return
			}
			if ct.Send(client, []byte("hello")) != 0 {
				t.Error("client send failed")
				return
			}
			buf := make([]byte, 16)
			n := ct.Recv(client, buf)
			if n <= 0 {
				t.Error("client recv failed")
				return
			}
			echoed = string(buf[:n])
			ct.CloseSocket(client)
			clientDone = true
		})

		srvConn, _ := srv.Accept(ln)
		if srvConn == corotask.InvalidSocket {
			t.Error("accept failed")
			return
		}
		buf := make([]byte, 16)
		n := srv.Recv(srvConn, buf)
		if n <= 0 {
			t.Error("server recv failed")
			return
		}
		if srv.Send(srvConn, buf[:n]) != 0 {
			t.Error("server send failed")
			return
		}
		srv.CloseSocket(srvConn)
		srv.CloseSocket(ln)
	})

	drain(t, sched, 5*time.Second)
	if !clientDone {
		t.Fatal("client task never completed")
	}
	if echoed != "hello" {
		t.Errorf("expected echoed %q, got %q", "hello", echoed)
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestConnectToClosedPortFails(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19322}
	var status int
	sched.NewTask(func(task *corotask.Task) {
		probe := task.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		task.Bind(probe, addr)
		task.CloseSocket(probe)

		conn := task.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		status = task.Connect(conn, addr)
		task.CloseSocket(conn)
	})

	drain(t, sched, 2*time.Second)
	if status == 0 {
		t.Error("expected connect to a closed port to fail")
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestRecvExclusionRejectsConcurrentCall(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19323}
	var secondRecvStatus int
	var recvReturned bool

	sched.NewTask(func(task *corotask.Task) {
		ln := task.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		task.Bind(ln, addr)
		task.Listen(ln, 16)

		client := task.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		task.Scheduler().NewTask(func(ct *corotask.Task) {
			ct.Sleep(5 * time.Millisecond)
			ct.Connect(client, addr)
		})

		srvConn, _ := task.Accept(ln)
		if srvConn == corotask.InvalidSocket {
			return
		}

		task.Scheduler().NewTask(func(rt *corotask.Task) {
			buf := make([]byte, 16)
			rt.Recv(srvConn, buf)
			recvReturned = true
		})
		// give the first recv a chance to claim the exclusive waiter first
		task.Sleep(time.Millisecond)
		buf2 := make([]byte, 16)
		secondRecvStatus = task.Recv(srvConn, buf2)
		// closing the client delivers EOF to the first recv; closing the
		// listener removes its registration so the scheduler can drain
		task.CloseSocket(client)
		task.CloseSocket(ln)
	})

	drain(t, sched, 2*time.Second)
	if secondRecvStatus != -1 {
		t.Errorf("expected the overlapping recv to fail immediately, got %d", secondRecvStatus)
	}
	_ = recvReturned
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// TestRecvUnblocksWhenPeerClosesSocket exercises the wakeup-on-close path:
// a task parked in Recv must resume with an error rather than hang forever
// when another task closes the socket out from under it.
func TestRecvUnblocksWhenPeerClosesSocket(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 19324}
	var recvStatus int
	var recvDone bool

	sched.NewTask(func(task *corotask.Task) {
		ln := task.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		task.Bind(ln, addr)
		task.Listen(ln, 16)

		client := task.Socket(corotask.AFInet, corotask.SockStream, corotask.IPProtoTCP)
		task.Scheduler().NewTask(func(ct *corotask.Task) {
			ct.Connect(client, addr)
		})

		srvConn, _ := task.Accept(ln)
		if srvConn == corotask.InvalidSocket {
			return
		}

		task.Scheduler().NewTask(func(closer *corotask.Task) {
			closer.Sleep(5 * time.Millisecond)
			closer.CloseSocket(srvConn)
		})

		buf := make([]byte, 16)
		recvStatus = task.Recv(srvConn, buf)
		recvDone = true
		task.CloseSocket(ln)
	})

	drain(t, sched, 2*time.Second)
	if !recvDone {
		t.Fatal("recv never returned after its socket was closed")
	}
	if recvStatus != -1 {
		t.Errorf("expected recv to report an error after its socket closed, got %d", recvStatus)
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// TestPinnedHomeThreadSchedulerRuns exercises the affinity package through
// its only real call site: a Scheduler constructed with home-thread CPU
// pinning enabled must still run tasks to completion. It does not assert
// that pinning itself succeeded, since a sandboxed test runner may
// legitimately refuse pthread_setaffinity_np — only that enabling it
// doesn't stop the scheduler from working.
func TestPinnedHomeThreadSchedulerRuns(t *testing.T) {
	sched, err := corotask.NewScheduler(func(cfg *control.SchedulerConfig) {
		cfg.SetPinHomeThread(true)
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if !sched.Config().PinHomeThread() {
		t.Fatal("expected PinHomeThread to be enabled")
	}

	var ran bool
	sched.NewTask(func(task *corotask.Task) {
		ran = true
	})

	drain(t, sched, 2*time.Second)
	if !ran {
		t.Error("task never ran on pinned-home-thread scheduler")
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// TestConfigHotReloadFires confirms SchedulerConfig.Set dispatches to any
// listener registered through OnReload.
func TestConfigHotReloadFires(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	fired := make(chan struct{}, 1)
	sched.Config().OnReload(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	sched.Config().Set(map[string]any{"scheduler.accept_log_interval": 500})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("OnReload listener never fired after Set")
	}
	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

// TestSpawnTenThousandTasksDrainsCleanly guards against map-growth and
// handle-leak regressions a single-spawn test can't catch: every one of
// 10,000 trivial tasks must run exactly once, and once the scheduler
// drains, its active-task and registered-socket counts must both be zero.
func TestSpawnTenThousandTasksDrainsCleanly(t *testing.T) {
	sched, err := corotask.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	const spawnCount = 10000
	var ranCount int
	for i := 0; i < spawnCount; i++ {
		sched.NewTask(func(task *corotask.Task) {
			ranCount++
		})
	}

	drain(t, sched, 30*time.Second)
	if ranCount != spawnCount {
		t.Errorf("expected %d tasks to run, got %d", spawnCount, ranCount)
	}

	state := sched.Probes().DumpState()
	if active, _ := state["corotask.tasks.active"].(int); active != 0 {
		t.Errorf("expected zero active tasks after drain, got %d", active)
	}
	if sockets, _ := state["corotask.sockets.registered"].(int); sockets != 0 {
		t.Errorf("expected zero registered sockets after drain, got %d", sockets)
	}

	if err := sched.Delete(); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
