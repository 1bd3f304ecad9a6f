// File: internal/fiber/fiber.go
// Author: momentics <momentics@gmail.com>
//
// Package fiber supplies the stackful-context primitive spec.md §1
// delegates to an external collaborator: create/delete/switch/current.
// Go exposes no public stack-switch primitive and no third-party fiber
// library appears anywhere in the retrieval pack, so this is the one
// piece of the core with no direct line-level teacher analogue; it is
// built the way the rest of the pack builds cooperative handoffs —
// core/concurrency/eventloop.go's channel-driven coordination — narrowed
// from many-producer/one-consumer to the strict one-at-a-time baton pass
// a stackful-context swap requires. Conceptually it mirrors
// original_source/libco.hpp's co_swap (a ucontext swapcontext), expressed
// with a channel instead of a hand-written assembly trampoline.
//
// State is scoped per home, not to the package: spec.md §5 allows
// multiple schedulers to exist on different threads, and each one's
// "currently running context" and id counter must stay independent of
// every other scheduler's — a package-level global would race across
// them the moment two schedulers run concurrently.
package fiber

import "fmt"

// domain holds the state shared by one home context and every context
// created against it: which context is presently running, and the
// counter handing out context ids. Exactly one domain exists per NewHome
// call, and nothing ever reaches across domains.
type domain struct {
	current *Context
	nextID  uint64
}

// Context is a cooperative execution context bound to its own goroutine.
// Within its domain, at most one Context is ever actually running at a
// time by construction: Switch only returns to the caller once some other
// Context in the same domain has switched back to it.
type Context struct {
	id   uint64
	in   chan struct{}
	done bool
	dom  *domain
}

// NewHome adopts the calling goroutine as a fresh domain's home context.
// It must be called before any Switch into a context created against it.
// Distinct NewHome calls never share state, so schedulers driven from
// different OS threads never race with each other.
func NewHome() *Context {
	dom := &domain{}
	dom.nextID++
	h := &Context{id: dom.nextID, in: make(chan struct{}, 1), dom: dom}
	dom.current = h
	return h
}

// Create allocates a context in home's domain that will run fn on its own
// goroutine once first switched into. fn receives the context it is
// running on so it can pass it back to Switch on every suspension point.
// fn must end by calling Finish(self, home) exactly once; Create never
// marks the context done on its own, since a well-behaved routine never
// simply returns — it always hands control back through Finish.
func Create(home *Context, fn func(self *Context)) *Context {
	dom := home.dom
	dom.nextID++
	c := &Context{id: dom.nextID, in: make(chan struct{}, 1), dom: dom}
	go func() {
		<-c.in
		fn(c)
	}()
	return c
}

// Finish ends self's execution and switches control to home. Unlike
// Switch, it never blocks waiting to be resumed: self is terminal, nothing
// will ever switch into it again, so the backing goroutine simply returns
// and the Go runtime reclaims its stack. This is the Go realization of
// spec.md's trampoline note: "the context being destroyed cannot be the
// current context" — self stops being current before its goroutine exits.
func Finish(self, home *Context) {
	dom := self.dom
	if dom.current != self {
		panic(fmt.Sprintf("fiber: finish from non-current context %d (current is %d)", self.id, currentID(dom)))
	}
	self.done = true
	dom.current = home
	home.in <- struct{}{}
}

// Current returns the context presently running in home's domain.
func Current(home *Context) *Context {
	return home.dom.current
}

// Switch transfers control from the current context to to, and blocks the
// caller until some other Switch call resumes from (i.e. targets `from`
// again). from must be the context the caller is presently running on;
// to must belong to the same domain as from.
func Switch(from, to *Context) {
	dom := from.dom
	if dom.current != from {
		panic(fmt.Sprintf("fiber: switch from non-current context %d (current is %d)", from.id, currentID(dom)))
	}
	if to.done {
		panic(fmt.Sprintf("fiber: switch into a context (%d) whose routine already returned", to.id))
	}
	dom.current = to
	to.in <- struct{}{}
	<-from.in
}

func currentID(dom *domain) uint64 {
	if dom.current == nil {
		return 0
	}
	return dom.current.id
}

// Delete releases a context. It must never be called while ctx is the
// current context, and the context's routine must already have returned
// (ctx.done) — mirroring spec.md's trampoline requirement that a task's
// context is always freed from the home context, never from its own
// stack. The Go runtime reclaims the parked goroutine's stack on its own
// once fn returns; Delete here only asserts the invariant held.
func Delete(ctx *Context) {
	if ctx == ctx.dom.current {
		panic("fiber: attempt to delete the current context")
	}
	if !ctx.done {
		panic("fiber: attempt to delete a context whose routine has not returned")
	}
}
