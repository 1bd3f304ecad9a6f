//go:build !linux
// +build !linux

// File: internal/tcpio/tcpio_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub TCP primitives for platforms without a raw non-blocking socket
// backend wired up, mirroring reactor/reactor_stub.go's "this platform is
// not supported" convention.

package tcpio

import (
	"errors"
	"net"
)

var errUnsupported = errors.New("tcpio: this platform is not supported")

func NewSocket() (int, error) { return -1, errUnsupported }

func Bind(fd int, addr *net.TCPAddr) error { return errUnsupported }

func Listen(fd int, backlog int) error { return errUnsupported }

func Accept(fd int) (int, *net.TCPAddr, error) { return -1, nil, errUnsupported }

func Connect(fd int, addr *net.TCPAddr) error { return errUnsupported }

func ConnectError(fd int) error { return errUnsupported }

func Read(fd int, buf []byte) (int, error) { return 0, errUnsupported }

func Write(fd int, buf []byte) (int, error) { return 0, errUnsupported }

func Shutdown(fd int) error { return errUnsupported }

func Close(fd int) error { return errUnsupported }

func IsWouldBlock(err error) bool { return false }
