//go:build linux

package sockopt

import "golang.org/x/sys/unix"

// setReuseAddr runs after the runtime's own defaults, which already enable
// SO_REUSEADDR on listeners, so it must also clear the flag when asked to.
func setReuseAddr(fd uintptr, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

func getReuseAddr(fd uintptr) (bool, error) {
	v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR)
	return v != 0, err
}
