// Package portscan classifies a single TCP port as open, closed, or
// filtered.
//
// Two strategies implement Scanner:
//
//   - ConnectScanner completes the three-way handshake with the system
//     dialer (optionally through a SOCKS5 proxy) and closes immediately.
//   - SYNScanner sends a crafted SYN over a raw socket and inspects the
//     reply without ever completing the handshake. It needs raw-socket
//     privilege.
//
// New picks the strategy for a mode. Select does the same but degrades a
// SYN request to CONNECT, with a warning, when the process lacks privilege.
//
// Scanners never return errors: every connectivity failure is folded into a
// port state, because a refused or silent port is a scan result, not a
// failure of the scanner.
package portscan
