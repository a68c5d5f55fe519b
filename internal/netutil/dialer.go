package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/net/proxy"
)

// SOCKS5 greeting constants (RFC 1928 section 3).
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// NewDialer returns the dialer used for CONNECT probes and service
// detection. An empty proxyAddress gives a direct net.Dialer; otherwise
// connections are tunnelled through the SOCKS5 proxy at proxyAddress
// ("host:port").
//
// Design decision: We return proxy.ContextDialer rather than *net.Dialer
// because:
//  1. Callers never need to know whether a proxy is in use
//  2. Every dial stays cancellable through its context
//  3. Tests can substitute any DialContext implementation
func NewDialer(proxyAddress string, timeout time.Duration) (proxy.ContextDialer, error) {
	direct := &net.Dialer{Timeout: timeout}
	if proxyAddress == "" {
		return direct, nil
	}

	d, err := proxy.SOCKS5("tcp", proxyAddress, nil, direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer for %s does not support contexts", proxyAddress)
	}
	return cd, nil
}

// CheckProxy verifies that proxyAddress speaks SOCKS5 and accepts clients
// without authentication. Only the method negotiation is performed; no
// CONNECT request is sent, so the check never touches the scan target.
func CheckProxy(ctx context.Context, proxyAddress string, timeout time.Duration) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, one method, "no authentication"
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}
