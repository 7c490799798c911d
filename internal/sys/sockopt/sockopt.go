// Package sockopt applies socket options to listening sockets before bind.
package sockopt

import (
	"fmt"
	"net"
	"syscall"
)

// Options selects the socket options applied by Control.
type Options struct {
	ReuseAddr bool
}

// ListenConfig returns a net.ListenConfig whose Control hook applies opts.
func ListenConfig(opts Options) *net.ListenConfig {
	return &net.ListenConfig{Control: Control(opts)}
}

// Control returns a function usable as net.ListenConfig.Control.
func Control(opts Options) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if err := setReuseAddr(fd, opts.ReuseAddr); err != nil {
				sockErr = fmt.Errorf("setsockopt(SO_REUSEADDR) failed: %w", err)
			}
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}

// ReuseAddrEnabled reports whether SO_REUSEADDR is set on the listener's socket.
func ReuseAddrEnabled(l net.Listener) (bool, error) {
	tcpListener, ok := l.(*net.TCPListener)
	if !ok {
		return false, fmt.Errorf("not a TCP listener")
	}
	raw, err := tcpListener.SyscallConn()
	if err != nil {
		return false, err
	}
	var enabled bool
	var optErr error
	if err := raw.Control(func(fd uintptr) {
		enabled, optErr = getReuseAddr(fd)
	}); err != nil {
		return false, err
	}
	return enabled, optErr
}
