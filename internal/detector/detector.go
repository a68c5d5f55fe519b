package detector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/nao1215/portscout/internal/banner"
	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/protocol"
	"golang.org/x/net/proxy"
)

const (
	// smbPort gets extra time because Windows hosts often answer the
	// negotiate request slowly.
	smbPort         = 445
	smbExtraTimeout = 2 * time.Second
)

// genericProbes are sent on the generic path for services that only speak
// after the client does.
var genericProbes = map[int][]byte{
	80:      []byte("GET / HTTP/1.0\r\n\r\n"),
	8080:    []byte("GET / HTTP/1.0\r\n\r\n"),
	smbPort: protocol.NegotiateRequest(),
	6379:    []byte("PING\r\n"),
}

// Detector fingerprints services on open ports. It is safe for concurrent
// use; every call opens and closes its own connections.
type Detector struct {
	dialer    proxy.ContextDialer
	registry  *protocol.Registry
	matcher   *banner.Matcher
	userAgent string
	logger    *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithDialer sets the dialer for all detection connections.
func WithDialer(d proxy.ContextDialer) Option {
	return func(det *Detector) {
		det.dialer = d
	}
}

// WithRegistry sets the port-to-handler registry. A nil registry disables
// protocol handlers so every port takes the generic path.
func WithRegistry(r *protocol.Registry) Option {
	return func(det *Detector) {
		det.registry = r
	}
}

// WithMatcher replaces the generic signature matcher.
func WithMatcher(m *banner.Matcher) Option {
	return func(det *Detector) {
		det.matcher = m
	}
}

// WithUserAgent sets the User-Agent the HTTP handler sends.
func WithUserAgent(ua string) Option {
	return func(det *Detector) {
		det.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(det *Detector) {
		det.logger = logger
	}
}

// New creates a Detector. Without options it dials directly and uses
// protocol.DefaultRegistry.
func New(opts ...Option) *Detector {
	d := &Detector{
		registry:  protocol.DefaultRegistry(),
		userAgent: config.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dialer == nil {
		d.dialer = &net.Dialer{}
	}
	if d.matcher == nil {
		d.matcher = banner.NewMatcher()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Detect identifies the service on ip:port. It never panics and never
// returns an empty string.
func (d *Detector) Detect(ctx context.Context, ip string, port int, timeout time.Duration) (service string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("service detection panicked", "port", port, "panic", r)
			service = banner.Unknown(fmt.Sprint(r))
		}
	}()

	if slices.Contains(protocol.TLSPorts, port) {
		if s, ok := protocol.InspectTLS(ctx, d.dialer, ip, port, timeout); ok {
			return s
		}
		d.logger.Debug("tls handshake failed, falling back to banner grab", "port", port)
	}

	if port == smbPort {
		timeout += smbExtraTimeout
	}

	conn, err := d.dial(ctx, ip, port, timeout)
	if err != nil {
		return banner.Unknown(protocol.DescribeError(err))
	}
	defer conn.Close()

	cfg := protocol.Config{
		Host:      ip,
		Port:      port,
		Timeout:   timeout,
		UserAgent: d.userAgent,
		Logger:    d.logger,
	}

	var h protocol.Handler
	if factory, ok := d.registry.Lookup(port); ok {
		h = factory(cfg)
	} else {
		cfg.Probe = genericProbes[port]
		cfg.Matcher = d.matcher
		h = protocol.NewBase(cfg)
	}

	d.logger.Debug("running protocol handler", "port", port, "handler", h.Name())
	raw := h.Handle(ctx, conn)
	_ = conn.Close() //nolint:errcheck
	return h.Parse(raw)
}

func (d *Detector) dial(ctx context.Context, ip string, port int, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
}
