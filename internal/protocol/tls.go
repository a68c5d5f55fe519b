package protocol

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// TLSPorts are the ports the service detector inspects with TLS first.
var TLSPorts = []int{443, 8443}

// InspectTLS performs a TLS handshake with host:port and reports the
// negotiated protocol version and cipher suite:
//
//	HTTPS (TLSv1.3, TLS_AES_128_GCM_SHA256)
//
// The boolean is false on any failure; the caller then falls back to plain
// banner grabbing.
//
// Certificate verification is disabled. The inspector identifies services;
// it does not decide whether to trust them, and refusing self-signed or
// expired certificates would hide exactly the hosts a scan should report.
func InspectTLS(ctx context.Context, dialer proxy.ContextDialer, host string, port int, timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return "", false
	}
	defer conn.Close()

	client := tls.Client(conn, tlsProbeConfig(host))
	if err := client.HandshakeContext(ctx); err != nil {
		return "", false
	}

	state := client.ConnectionState()
	return fmt.Sprintf("HTTPS (%s, %s)", tlsVersionName(state.Version), tls.CipherSuiteName(state.CipherSuite)), true
}

func tlsProbeConfig(host string) *tls.Config {
	suites := make([]uint16, 0, len(tls.CipherSuites())+len(tls.InsecureCipherSuites()))
	for _, s := range tls.CipherSuites() {
		suites = append(suites, s.ID)
	}
	for _, s := range tls.InsecureCipherSuites() {
		suites = append(suites, s.ID)
	}

	cfg := &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // fingerprinting, not trust
		MinVersion:         tls.VersionTLS10,
		CipherSuites:       suites,
	}
	if net.ParseIP(host) == nil {
		cfg.ServerName = host
	}
	return cfg
}

// tlsVersionName uses the OpenSSL spelling ("TLSv1.2") familiar from other
// scanners.
func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return tls.VersionName(v)
	}
}
