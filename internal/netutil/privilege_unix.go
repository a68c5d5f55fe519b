//go:build unix

package netutil

import "golang.org/x/sys/unix"

// CanOpenRawSocket reports whether the process may open a raw IPv4 TCP
// socket, which SYN probing needs (root or CAP_NET_RAW on Linux).
func CanOpenRawSocket() bool {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_TCP)
	if err != nil {
		return false
	}
	_ = unix.Close(fd) //nolint:errcheck
	return true
}
