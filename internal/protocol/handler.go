package protocol

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/nao1215/portscout/internal/banner"
	"github.com/nao1215/portscout/internal/config"
)

// Handler fingerprints one service family over an already established
// connection.
//
// Design decision: Handle and Parse are split so that all network I/O is
// confined to Handle and everything Parse does is a pure function of the
// bytes (or structured record) Handle produced. Parse can therefore be
// tested with synthetic payloads, without a listener.
type Handler interface {
	// Name returns the protocol family (e.g., "telnet", "ssh").
	Name() string

	// Handle drives the protocol exchange on conn and returns what was
	// collected. It never closes conn; the caller owns it.
	// Implementations must honor both ctx and the configured timeout.
	Handle(ctx context.Context, conn net.Conn) RawResult

	// Parse turns the result of Handle into a display string such as
	// "DNS Version: 9.11.3-Ubuntu". It never fails; decoding problems are
	// reported inside the returned string.
	Parse(raw RawResult) string
}

// Config describes the connection a handler instance serves.
// Each connection gets a fresh handler; handlers share no state.
type Config struct {
	// Host is the scanned address as given by the user. It is used where a
	// protocol wants to name the peer, such as the HTTP Host header.
	Host string

	// Port is the remote TCP port.
	Port int

	// Timeout bounds each blocking step of the exchange.
	Timeout time.Duration

	// UserAgent is sent by the HTTP handler. Empty means config.DefaultUserAgent.
	UserAgent string

	// Probe is written by the generic handler before it reads, for services
	// that only speak after the client does.
	Probe []byte

	// Matcher classifies banners on the generic path. Nil means the
	// built-in signatures.
	Matcher *banner.Matcher

	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = config.DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = config.DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Factory builds a handler for one connection.
type Factory func(cfg Config) Handler

// Kind tags the variant held by a RawResult.
type Kind int

const (
	// KindBytes carries the raw bytes read from the peer (possibly none).
	KindBytes Kind = iota

	// KindSSH carries a structured SSHInfo record.
	KindSSH

	// KindError carries a preformatted error message.
	KindError
)

// RawResult is what Handle produced. Exactly one of Data, SSH or Err is
// meaningful, selected by Kind.
type RawResult struct {
	Kind Kind
	Data []byte
	SSH  *SSHInfo
	Err  string
}

// BytesResult wraps raw bytes.
func BytesResult(data []byte) RawResult {
	return RawResult{Kind: KindBytes, Data: data}
}

// SSHResult wraps a structured SSH record.
func SSHResult(info *SSHInfo) RawResult {
	return RawResult{Kind: KindSSH, SSH: info}
}

// ErrorResult wraps an error message that Parse passes through unchanged.
func ErrorResult(msg string) RawResult {
	return RawResult{Kind: KindError, Err: msg}
}
