package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/portscout/internal/model"
)

// JSONWriter encodes the bare ScanReport, results ordered by port.
//
// Design decision: We use encoding/json with HTML escaping turned off
// because:
//  1. Service strings carry HTTP titles and banners full of '<', '>' and '&'
//  2. Escaped \u003c forms are valid JSON but hard to grep in a report
//  3. The history database stores plain columns, so no second encoding exists
type JSONWriter struct {
	baseWriter

	// indent is passed to json.Encoder.SetIndent. Empty gives compact
	// one-line output.
	indent string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint indents nested values with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write encodes report followed by a newline.
func (w *JSONWriter) Write(report *model.ScanReport) (int, error) {
	return w.encode(sortedCopy(report))
}

// encode writes v through a counting writer so callers get the byte count
// the Writer interface promises.
func (w *JSONWriter) encode(v any) (int, error) {
	cw := &countingWriter{w: w.output}
	enc := json.NewEncoder(cw)
	enc.SetEscapeHTML(false)
	if w.indent != "" {
		enc.SetIndent("", w.indent)
	}
	err := enc.Encode(v)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// JSONReport is the document written by FullJSONWriter: the report plus
// the fields a consumer would otherwise recompute.
//
// Design decision: We wrap the report rather than adding fields to
// ScanReport so that the summary and generator version stay out of the
// model the database stores.
type JSONReport struct {
	// Version is the portscout version that generated this report.
	Version string `json:"version"`

	Report  *model.ScanReport `json:"report"`
	Summary model.Summary     `json:"summary"`

	// DurationSeconds is the wall time of the run.
	DurationSeconds float64 `json:"duration_seconds"`
}

// NewJSONReport wraps report with its summary and the generator version.
func NewJSONReport(report *model.ScanReport, version string) *JSONReport {
	return &JSONReport{
		Version:         version,
		Report:          report,
		Summary:         report.Summary(),
		DurationSeconds: report.Duration().Seconds(),
	}
}

// FullJSONWriter writes a JSONReport; it is what "scan --json" emits.
type FullJSONWriter struct {
	*JSONWriter
	version string
}

// NewFullJSONWriter creates a writer stamping reports with version.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write encodes the wrapped report.
func (w *FullJSONWriter) Write(report *model.ScanReport) (int, error) {
	return w.encode(NewJSONReport(sortedCopy(report), w.version))
}

// sortedCopy returns a shallow copy of report whose results are in port
// order. The caller's report is left untouched.
func sortedCopy(report *model.ScanReport) *model.ScanReport {
	cp := *report
	cp.Results = report.Sorted()
	return &cp
}
