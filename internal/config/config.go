package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/portscout/internal/validate"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "portscout"

	// DefaultPorts covers the services the built-in handlers understand plus
	// the common greeters (FTP, SMTP, POP3, MySQL).
	DefaultPorts = "21-23,25,53,80,110,139,443,445,3306,8000,8008,8080,8443"

	// DefaultTimeout bounds a single connection attempt or SYN probe.
	// One second is enough on a LAN and keeps filtered ports cheap.
	DefaultTimeout = 1 * time.Second

	// DefaultServiceTimeout bounds each blocking step of service detection.
	// Banner exchanges need more slack than a bare handshake.
	DefaultServiceTimeout = 2 * time.Second

	// DefaultWorkers of 1 keeps the scan strictly sequential.
	DefaultWorkers = 1

	// MaxWorkers caps the worker pool. More concurrent probes than this
	// against one host mostly measures the host's SYN backlog.
	MaxWorkers = 1024

	// DefaultUserAgent is sent by the HTTP handler. It names the scanner so
	// operators can recognize the traffic in their logs.
	DefaultUserAgent = "Mozilla/5.0 (compatible; portscout/1.0; +https://github.com/nao1215/portscout)"
)

// ScanMode selects the port-state scanner.
type ScanMode string

const (
	// ModeSYN sends a raw TCP SYN and never completes the handshake.
	// It needs raw-socket privilege.
	ModeSYN ScanMode = "SYN"

	// ModeConnect completes a full TCP handshake through the OS stack.
	ModeConnect ScanMode = "CONNECT"
)

// ParseScanMode converts a mode name (case-insensitive) to a ScanMode.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeSYN:
		return ModeSYN, nil
	case ModeConnect:
		return ModeConnect, nil
	default:
		return ModeSYN, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// ConsoleOutput filters which port lines are printed during a scan.
type ConsoleOutput string

const (
	// OutputAll prints every scanned port.
	OutputAll ConsoleOutput = "all"

	// OutputOpenOnly prints open ports only.
	OutputOpenOnly ConsoleOutput = "open_only"

	// OutputNone prints no port lines; only the header and summary.
	OutputNone ConsoleOutput = "none"
)

// ParseConsoleOutput converts a filter name to a ConsoleOutput.
func ParseConsoleOutput(s string) (ConsoleOutput, error) {
	switch ConsoleOutput(strings.ToLower(strings.TrimSpace(s))) {
	case OutputAll:
		return OutputAll, nil
	case OutputOpenOnly:
		return OutputOpenOnly, nil
	case OutputNone:
		return OutputNone, nil
	default:
		return OutputAll, fmt.Errorf("%w: %q", ErrInvalidConsoleOutput, s)
	}
}

// Log formats accepted by Config.LogFormat.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds all configuration options for portscout.
// It is populated from the configuration file and CLI flags, validated once,
// and then passed through the application read-only.
//
// Design decision: We keep a single flat struct, mirroring how the CLI
// presents options. The YAML document is nested (see File); File.Apply
// flattens it onto a Config.
type Config struct {
	// TargetIP is the IPv4 or IPv6 address to scan.
	TargetIP string

	// Ports is the port specification, e.g. "20-25,53,80".
	Ports string

	// Mode selects the SYN or CONNECT state scanner.
	Mode ScanMode

	// Timeout bounds each connection attempt or SYN probe.
	Timeout time.Duration

	// JitterMin and JitterMax bound the random delay before each port.
	// Both zero disables jitter.
	JitterMin time.Duration
	JitterMax time.Duration

	// RandomizeOrder shuffles the port list before scanning.
	RandomizeOrder bool

	// ServiceDetection enables banner grabbing on open ports.
	ServiceDetection bool

	// ServiceTimeout bounds each blocking step of service detection.
	ServiceTimeout time.Duration

	// ProtocolHandlers enables the protocol-specific handlers. When false,
	// every port takes the generic banner path.
	ProtocolHandlers bool

	// Workers is the number of ports scanned concurrently. 1 is sequential.
	Workers int

	// ProxyAddress is an optional SOCKS5 proxy ("host:port") used by the
	// CONNECT scanner and service detection. SYN probes never use it.
	ProxyAddress string

	// ConsoleOutput filters the per-port console lines.
	ConsoleOutput ConsoleOutput

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is "text" or "json".
	LogFormat string

	// UserAgent is sent by the HTTP handler.
	UserAgent string

	// ConfigFilePath is the explicitly requested configuration file.
	ConfigFilePath string

	// JSONReport and MarkdownReport select the report written after the scan.
	// They are mutually exclusive.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file for the report. Empty means stdout.
	ReportFile string

	// DBDir is the directory holding the scan history database.
	DBDir string

	// SaveToDB stores the finished report in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (mode, timeouts, filters).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Ports:            DefaultPorts,
		Mode:             ModeSYN,
		Timeout:          DefaultTimeout,
		ServiceDetection: true,
		ServiceTimeout:   DefaultServiceTimeout,
		ProtocolHandlers: true,
		Workers:          DefaultWorkers,
		ConsoleOutput:    OutputAll,
		LogFormat:        LogFormatText,
		UserAgent:        DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for portscout.
// On Linux: ~/.local/share/portscout
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for portscout.
// On Linux: ~/.config/portscout
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found, wrapping one of the sentinel errors
// in errors.go so callers can match it with errors.Is.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetIP) == "" {
		return ErrNoTarget
	}
	if !validate.IsValidIP(c.TargetIP) {
		return fmt.Errorf("%w: %q", ErrInvalidIP, c.TargetIP)
	}
	if strings.TrimSpace(c.Ports) == "" {
		return ErrNoPorts
	}
	if c.Mode != ModeSYN && c.Mode != ModeConnect {
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ServiceTimeout <= 0 {
		return ErrInvalidServiceTimeout
	}
	if c.JitterMin < 0 || c.JitterMax < 0 {
		return ErrInvalidJitter
	}
	if c.JitterMin > c.JitterMax {
		return ErrInvalidJitterRange
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if _, err := ParseConsoleOutput(string(c.ConsoleOutput)); err != nil {
		return err
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if c.ProxyAddress != "" {
		if err := validateProxy(c.ProxyAddress); err != nil {
			return err
		}
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.ReportFile != "" && !c.JSONReport && !c.MarkdownReport {
		return ErrReportFileWithoutFormat
	}
	return nil
}

func validateProxy(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}
	if host == "" || (!validate.IsValidIP(host) && !validate.IsValidDomain(host) && host != "localhost") {
		return fmt.Errorf("%w: bad host %q", ErrInvalidProxy, host)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("%w: bad port %q", ErrInvalidProxy, port)
	}
	return nil
}
