// File: internal/tcpio/doc.go
// Author: momentics <momentics@gmail.com>

// Package tcpio provides the raw non-blocking TCP socket primitives the
// corotask core needs (collaborator ii in spec.md §1): connect, read,
// write, shutdown, bind, listen, accept, close. Every call is non-blocking
// and returns immediately; arming readiness and resuming the caller is the
// job of the reactor.Loop these primitives register with, not of this
// package. Grounded on internal/transport/transport_linux.go's non-blocking
// socket construction.
package tcpio
