package portscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/model"
	"github.com/nao1215/portscout/internal/netutil"
	"golang.org/x/net/proxy"
)

var (
	// ErrNeedPrivilege is returned by New when SYN mode is requested but
	// raw sockets cannot be opened.
	ErrNeedPrivilege = errors.New("SYN scan requires raw-socket privilege (root or CAP_NET_RAW)")

	// ErrUnsupportedMode is returned by New for an unknown scan mode.
	ErrUnsupportedMode = errors.New("unsupported scan mode")
)

// Scanner determines the state of one port.
//
// Scan blocks for at most the configured timeout. srcPort is the source
// port to use when the strategy controls it; ConnectScanner ignores it.
type Scanner interface {
	Scan(ctx context.Context, ip string, port, srcPort int) model.PortState

	// Mode reports which strategy this scanner implements.
	Mode() config.ScanMode
}

// options collects the settings shared by both strategies.
type options struct {
	timeout  time.Duration
	dialer   proxy.ContextDialer
	logger   *slog.Logger
	canRaw   func() bool
	sourceIP func(net.IP) (net.IP, error)
}

// Option configures a Scanner created by New or Select.
type Option func(*options)

// WithTimeout sets the per-port timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDialer sets the dialer used by the CONNECT strategy.
func WithDialer(d proxy.ContextDialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout:  config.DefaultTimeout,
		canRaw:   netutil.CanOpenRawSocket,
		sourceIP: netutil.SourceIP,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.dialer == nil {
		o.dialer = &net.Dialer{Timeout: o.timeout}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// New returns the scanner for mode.
func New(mode config.ScanMode, opts ...Option) (Scanner, error) {
	o := newOptions(opts)

	switch mode {
	case config.ModeConnect:
		return &ConnectScanner{dialer: o.dialer, timeout: o.timeout, logger: o.logger}, nil
	case config.ModeSYN:
		if !o.canRaw() {
			return nil, ErrNeedPrivilege
		}
		return &SYNScanner{timeout: o.timeout, logger: o.logger, sourceIP: o.sourceIP}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

// Select is New with a graceful downgrade: a SYN request without raw-socket
// privilege yields a ConnectScanner and a logged warning. Check Mode on the
// result for the effective strategy.
func Select(mode config.ScanMode, opts ...Option) (Scanner, error) {
	s, err := New(mode, opts...)
	if !errors.Is(err, ErrNeedPrivilege) {
		return s, err
	}

	newOptions(opts).logger.Warn("SYN scan requires raw-socket privilege, falling back to CONNECT scan",
		"requested_mode", mode,
	)
	return New(config.ModeConnect, opts...)
}
