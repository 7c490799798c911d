//go:build !linux

package sockopt

// The Go runtime already enables SO_REUSEADDR on listening sockets for the
// other Unix platforms, and Windows gives it different semantics.
func setReuseAddr(fd uintptr, enable bool) error {
	return nil
}

func getReuseAddr(fd uintptr) (bool, error) {
	return true, nil
}
