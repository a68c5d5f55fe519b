// Package netutil holds the network plumbing shared by the scanners and
// the service detector.
//
//   - NewDialer returns a proxy.ContextDialer that connects directly or
//     through a SOCKS5 proxy
//   - CheckProxy performs a SOCKS5 greeting to verify a proxy before a scan
//   - CanOpenRawSocket reports whether SYN probing is possible
//   - SourceIP picks the local address the kernel would route from
package netutil
