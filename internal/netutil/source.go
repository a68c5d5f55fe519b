package netutil

import (
	"fmt"
	"net"
)

// SourceIP returns the local address the kernel would use to reach dst.
// Connecting a UDP socket sends no packet; it only resolves the route.
// Raw SYN probes need this address for the TCP pseudo-header checksum.
func SourceIP(dst net.IP) (net.IP, error) {
	network, addr := "udp4", net.JoinHostPort(dst.String(), "9")
	if dst.To4() == nil {
		network = "udp6"
	}

	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSourceAddress, err)
	}
	defer conn.Close()

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || udp.IP == nil || udp.IP.IsUnspecified() {
		return nil, fmt.Errorf("%w: route to %s", ErrNoSourceAddress, dst)
	}
	if ip4 := udp.IP.To4(); ip4 != nil {
		return ip4, nil
	}
	return udp.IP, nil
}
