package portscan

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/model"
	"golang.org/x/net/proxy"
)

// ConnectScanner classifies ports by completing a TCP connection.
type ConnectScanner struct {
	dialer  proxy.ContextDialer
	timeout time.Duration
	logger  *slog.Logger
}

// Mode returns config.ModeConnect.
func (s *ConnectScanner) Mode() config.ScanMode {
	return config.ModeConnect
}

// Scan dials ip:port. A completed handshake is Open and the connection is
// closed at once; a refusal is Closed; a timeout or any other failure is
// Filtered. srcPort is not used because the kernel picks the source port.
func (s *ConnectScanner) Scan(ctx context.Context, ip string, port, _ int) model.PortState {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err == nil {
		_ = conn.Close() //nolint:errcheck
		return model.Open
	}

	state := classifyDialError(err)
	s.logger.Debug("connect probe failed", "port", port, "state", state, "error", err)
	return state
}

// classifyDialError maps a dial error to a port state. SOCKS5 proxies
// report a refused destination only as text ("connection refused").
func classifyDialError(err error) model.PortState {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.Closed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.Filtered
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.Filtered
	}
	if strings.Contains(strings.ToLower(err.Error()), "refused") {
		return model.Closed
	}
	return model.Filtered
}
