package config

import "errors"

// Configuration errors.
// These errors are returned by Config.Validate and the file loader and
// provide specific information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). Callers match them with
// errors.Is() while Validate wraps them with the offending value.
var (
	// ErrNoTarget is returned when no target IP was given on the command
	// line or in the configuration file.
	ErrNoTarget = errors.New("no target specified: provide an IP address or set target.ip in the config file")

	// ErrInvalidIP is returned when the target is not an IPv4 or IPv6 literal.
	ErrInvalidIP = errors.New("invalid target IP address")

	// ErrNoPorts is returned when the port specification is empty.
	ErrNoPorts = errors.New("no ports specified")

	// ErrInvalidMode is returned for a scan mode other than SYN or CONNECT.
	ErrInvalidMode = errors.New("invalid scan mode: must be SYN or CONNECT")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidServiceTimeout is returned when the service detection
	// timeout is not positive.
	ErrInvalidServiceTimeout = errors.New("invalid service timeout: must be positive")

	// ErrInvalidJitter is returned when a jitter bound is negative.
	ErrInvalidJitter = errors.New("invalid timing jitter: must be non-negative")

	// ErrInvalidJitterRange is returned when the jitter minimum exceeds the maximum.
	ErrInvalidJitterRange = errors.New("invalid timing jitter: min must not exceed max")

	// ErrInvalidWorkers is returned when the worker count is out of range.
	ErrInvalidWorkers = errors.New("invalid worker count: must be between 1 and 1024")

	// ErrInvalidConsoleOutput is returned for an unknown console filter.
	ErrInvalidConsoleOutput = errors.New("invalid console output: must be all, open_only or none")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrInvalidProxy is returned when the proxy address is not host:port.
	ErrInvalidProxy = errors.New("invalid proxy address")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrReportFileWithoutFormat is returned when a report file is given
	// without --json or --markdown.
	ErrReportFileWithoutFormat = errors.New("report file requires a report format: use --json or --markdown")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFile is returned when the configuration file cannot be parsed.
	ErrInvalidConfigFile = errors.New("invalid configuration file")
)
