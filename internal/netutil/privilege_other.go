//go:build !unix

package netutil

// CanOpenRawSocket always reports false on platforms without BSD raw
// sockets; SYN scans fall back to CONNECT there.
func CanOpenRawSocket() bool {
	return false
}
