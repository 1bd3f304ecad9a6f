//go:build linux
// +build linux

// File: internal/tcpio/tcpio_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux non-blocking TCP socket primitives built on golang.org/x/sys/unix,
// grounded on internal/transport/transport_linux.go's socket construction
// (non-blocking AF_INET/SOCK_STREAM, TCP_NODELAY) generalized to cover the
// full Berkeley surface spec.md §6 requires of the TCP-handle collaborator.

package tcpio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// NewSocket creates a non-blocking IPv4 TCP socket.
func NewSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("tcpio: socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	return fd, nil
}

func sockaddr(addr *net.TCPAddr) (*unix.SockaddrInet4, error) {
	if addr == nil {
		return &unix.SockaddrInet4{}, nil
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("tcpio: only IPv4 addresses are supported, got %v", addr.IP)
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func fromSockaddr(sa unix.Sockaddr) *net.TCPAddr {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil
	}
	ip := make(net.IP, net.IPv4len)
	copy(ip, in4.Addr[:])
	return &net.TCPAddr{IP: ip, Port: in4.Port}
}

// Bind assigns addr to fd.
func Bind(fd int, addr *net.TCPAddr) error {
	sa, err := sockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fmt.Errorf("tcpio: bind: %w", err)
	}
	return nil
}

// Listen marks fd as a passive socket with the given backlog.
func Listen(fd int, backlog int) error {
	if err := unix.Listen(fd, backlog); err != nil {
		return fmt.Errorf("tcpio: listen: %w", err)
	}
	return nil
}

// Accept returns a new non-blocking connected socket and its peer address,
// or the unwrapped unix.EAGAIN if the backlog currently has nothing to
// accept (IsWouldBlock recognizes it).
func Accept(fd int) (int, *net.TCPAddr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, fromSockaddr(sa), nil
}

// Connect begins a non-blocking connect; callers must wait for write
// readiness and call ConnectError to learn the outcome.
func Connect(fd int, addr *net.TCPAddr) error {
	sa, err := sockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		return fmt.Errorf("tcpio: connect: %w", err)
	}
	return nil
}

// ConnectError retrieves SO_ERROR after a connect-in-progress fd becomes
// writable; a nil return means the connection succeeded.
func ConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("tcpio: getsockopt SO_ERROR: %w", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// Read performs a single non-blocking read into buf.
func Read(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Write performs a single non-blocking write of buf.
func Write(fd int, buf []byte) (int, error) {
	n, err := unix.Write(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Shutdown shuts down fd's read and write halves.
func Shutdown(fd int) error {
	if err := unix.Shutdown(fd, unix.SHUT_RDWR); err != nil {
		return fmt.Errorf("tcpio: shutdown: %w", err)
	}
	return nil
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// IsWouldBlock reports whether err indicates a non-blocking operation
// would have blocked (no data/connection ready yet).
func IsWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
