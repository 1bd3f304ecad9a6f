// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor drives one-shot timers and TCP file-descriptor readiness
// from a single non-blocking pass (Loop.RunOnce), the collaborator the
// corotask core requires: "a driver call that processes all ready events
// without blocking". Platform backends live in reactor_linux.go (epoll),
// reactor_windows.go (IOCP) and reactor_stub.go (unsupported platforms).
package reactor
