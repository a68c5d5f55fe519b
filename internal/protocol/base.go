package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/nao1215/portscout/internal/banner"
)

// Base is the generic handler: it sends the optional probe, reads whatever
// the service answers and classifies it with the signature matcher.
// Services that greet on connect (FTP, SMTP, POP3, MySQL) need no probe.
type Base struct {
	cfg Config
}

// NewBase creates a generic handler. cfg.Probe, when set, is written before
// the read; cfg.Matcher, when nil, is the built-in signature set.
func NewBase(cfg Config) *Base {
	return &Base{cfg: cfg.withDefaults()}
}

// Name returns "generic".
func (b *Base) Name() string {
	return "generic"
}

// Handle writes the probe and performs a single read of up to 4096 bytes.
// A failed write or a read error other than EOF is returned as an error
// result.
func (b *Base) Handle(ctx context.Context, conn net.Conn) RawResult {
	stop := bindContext(ctx, conn)
	defer stop()

	if len(b.cfg.Probe) > 0 {
		if err := writeAll(conn, b.cfg.Probe, b.cfg.Timeout); err != nil {
			return ErrorResult(banner.Unknown(DescribeError(err)))
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(b.cfg.Timeout)) //nolint:errcheck
	buf := make([]byte, recvSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return ErrorResult(banner.Unknown(DescribeError(err)))
	}
	return BytesResult(buf[:n])
}

// Parse decodes the reply and runs the signature matcher.
func (b *Base) Parse(raw RawResult) string {
	if raw.Kind == KindError {
		return raw.Err
	}
	text := banner.Clean(raw.Data)
	b.cfg.Logger.Debug("banner received", "port", b.cfg.Port, "banner", text)
	if b.cfg.Matcher != nil {
		return b.cfg.Matcher.Match(text, b.cfg.Port)
	}
	return banner.Match(text, b.cfg.Port)
}

// DescribeError shortens common network errors to the phrases shown in
// "Unknown (...)" results.
func DescribeError(err error) string {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset by peer"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
