// File: doc.go
// Author: momentics <momentics@gmail.com>

// Package corotask is a single-threaded cooperative coroutine runtime for
// TCP networking: one Scheduler per OS thread drives any number of Tasks,
// each a stackful execution context that suspends on socket and timer
// operations instead of blocking its thread. Modeled on Tencent's libco,
// rebuilt on Go's concurrency primitives: a Task is a parked goroutine
// handed control through internal/fiber's channel baton, TCP readiness and
// timer expiry are multiplexed by reactor.Loop, and raw non-blocking
// socket syscalls live in internal/tcpio.
//
// A host application owns the Scheduler's home goroutine: it calls
// NewScheduler, spawns work with NewTask, and drives everything forward by
// calling Peek in its own loop (a for-select, a ticker, whatever fits)
// until Peek reports nothing left to do.
package corotask
