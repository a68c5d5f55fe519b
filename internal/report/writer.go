package report

import (
	"io"

	"github.com/nao1215/portscout/internal/model"
)

// Writer renders a finished report. The scan command picks one
// implementation per run (console, JSON or Markdown) and writes the report
// once; ConsoleWriter can also stream while the scan runs.
type Writer interface {
	// Write renders report and returns the number of bytes written.
	Write(report *model.ScanReport) (int, error)
}

// baseWriter holds the destination shared by the writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

func (b baseWriter) writeString(s string) (int, error) {
	return io.WriteString(b.output, s)
}
