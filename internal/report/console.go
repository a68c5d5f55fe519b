package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/log"
	"github.com/nao1215/portscout/internal/model"
)

const (
	portWidth   = 10
	statusWidth = 15
	ruleWidth   = 60
)

// ConsoleWriter prints the live result table:
//
//	[*] Target: 192.168.0.10, Mode: SYN
//	------------------------------------------------------------
//	PORT       STATUS          SERVICE
//	------------------------------------------------------------
//	22         Open            SSH (SSH-2.0-OpenSSH_9.6) | Auth: [publickey]
//
// Lines can be streamed one result at a time (WriteHeader, WriteResult,
// WriteSummary) or rendered in one go from a finished report (Write).
//
// Design decision: Colors are decided per writer instead of through the
// library's global switch because:
//  1. The same process may print to a terminal and render into a buffer
//  2. Tests need deterministic output regardless of the environment
//  3. --no-color must not leak into other writers
type ConsoleWriter struct {
	baseWriter

	// filter selects which per-port lines are printed.
	filter config.ConsoleOutput

	// mu serializes lines coming from concurrent workers.
	mu sync.Mutex

	open     *color.Color
	closed   *color.Color
	filtered *color.Color
}

// ConsoleWriterOption configures a ConsoleWriter.
type ConsoleWriterOption func(*ConsoleWriter)

// WithFilter sets which port lines are printed.
func WithFilter(filter config.ConsoleOutput) ConsoleWriterOption {
	return func(w *ConsoleWriter) {
		w.filter = filter
	}
}

// WithColor forces ANSI colors on or off. Without this option the
// library's terminal detection decides.
func WithColor(enabled bool) ConsoleWriterOption {
	return func(w *ConsoleWriter) {
		for _, c := range []*color.Color{w.open, w.closed, w.filtered} {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewConsoleWriter creates a ConsoleWriter that prints every port.
func NewConsoleWriter(output io.Writer, opts ...ConsoleWriterOption) *ConsoleWriter {
	w := &ConsoleWriter{
		baseWriter: newBaseWriter(output),
		filter:     config.OutputAll,
		open:       color.New(color.FgGreen),
		closed:     color.New(color.FgRed),
		filtered:   color.New(color.FgYellow),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write renders a finished report: header, port lines in port order, summary.
func (w *ConsoleWriter) Write(report *model.ScanReport) (int, error) {
	var sb strings.Builder

	w.formatHeader(&sb, report)
	for _, res := range report.Sorted() {
		w.formatResult(&sb, res)
	}
	w.formatSummary(&sb, report)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeString(sb.String())
}

// WriteHeader prints the target line and the column header.
func (w *ConsoleWriter) WriteHeader(report *model.ScanReport) error {
	var sb strings.Builder
	w.formatHeader(&sb, report)
	return w.flush(&sb)
}

// WriteResult prints one port line, unless the filter hides it.
// It is safe to call from several goroutines.
func (w *ConsoleWriter) WriteResult(res model.PortResult) error {
	var sb strings.Builder
	if !w.formatResult(&sb, res) {
		return nil
	}
	return w.flush(&sb)
}

// WriteSummary prints the closing rule and the per-state counts.
func (w *ConsoleWriter) WriteSummary(report *model.ScanReport) error {
	var sb strings.Builder
	w.formatSummary(&sb, report)
	return w.flush(&sb)
}

func (w *ConsoleWriter) flush(sb *strings.Builder) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.writeString(sb.String())
	return err
}

func (w *ConsoleWriter) formatHeader(sb *strings.Builder, report *model.ScanReport) {
	detection := "off"
	if report.ServiceDetection {
		detection = "on"
	}
	fmt.Fprintf(sb, "[*] Target: %s, Mode: %s\n", log.EscapeControl(report.Target), report.Mode)
	fmt.Fprintf(sb, "[*] Service detection: %s, started %s\n",
		detection, report.StartedAt.Format("2006-01-02 15:04:05"))
	sb.WriteString(rule())
	fmt.Fprintf(sb, "%-*s %-*s %s\n", portWidth, "PORT", statusWidth, "STATUS", "SERVICE")
	sb.WriteString(rule())
}

// formatResult appends the line for res and reports whether it was shown.
func (w *ConsoleWriter) formatResult(sb *strings.Builder, res model.PortResult) bool {
	switch w.filter {
	case config.OutputNone:
		return false
	case config.OutputOpenOnly:
		if res.State != model.Open {
			return false
		}
	}

	// Pad before coloring so escape sequences do not count toward the width.
	status := fmt.Sprintf("%-*s", statusWidth, res.State.String())
	fmt.Fprintf(sb, "%-*d %s %s\n",
		portWidth, res.Port, w.stateColor(res.State).Sprint(status), log.EscapeControl(res.Service))
	return true
}

func (w *ConsoleWriter) formatSummary(sb *strings.Builder, report *model.ScanReport) {
	s := report.Summary()
	sb.WriteString(rule())
	fmt.Fprintf(sb, "[*] %d port(s) scanned: %d open, %d closed, %d filtered",
		s.Total, s.Open, s.Closed, s.Filtered)
	if d := report.Duration(); d > 0 {
		fmt.Fprintf(sb, " in %s", d.Round(time.Millisecond))
	}
	sb.WriteString("\n")
	if report.Cancelled {
		sb.WriteString("[!] Scan interrupted; remaining ports were skipped\n")
	}
}

func (w *ConsoleWriter) stateColor(state model.PortState) *color.Color {
	switch state {
	case model.Open:
		return w.open
	case model.Closed:
		return w.closed
	default:
		return w.filtered
	}
}

func rule() string {
	return strings.Repeat("-", ruleWidth) + "\n"
}
