package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/portscout/internal/log"
	"github.com/nao1215/portscout/internal/model"
)

// maxServiceCell bounds the service column so long banners do not blow up
// table layout in rendered markdown.
const maxServiceCell = 80

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables and mermaid code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.ScanReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writePorts(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.ScanReport) {
	md.H1("Port Scan Report")
	md.PlainText("")

	detection := "Disabled"
	if report.ServiceDetection {
		detection = "Enabled"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + report.Target + "`"},
			{"Mode", report.Mode},
			{"Service Detection", detection},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Status", statusText(report)},
		},
	})
	md.PlainText("")
}

func statusText(report *model.ScanReport) string {
	if report.Cancelled {
		return "⚠️ Interrupted (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the per-state counts, a chart, and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.ScanReport) {
	s := report.Summary()

	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"State", "Count"},
		Rows: [][]string{
			{"🟢 Open", strconv.Itoa(s.Open)},
			{"🔴 Closed", strconv.Itoa(s.Closed)},
			{"🟡 Filtered", strconv.Itoa(s.Filtered)},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}

	w.writeAlert(md, report, s)
}

// writePieChart writes a mermaid pie chart of the state distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Port State Distribution"),
		piechart.WithShowData(true),
	)

	if s.Open > 0 {
		chart.LabelAndIntValue("Open", uint64(s.Open))
	}
	if s.Closed > 0 {
		chart.LabelAndIntValue("Closed", uint64(s.Closed))
	}
	if s.Filtered > 0 {
		chart.LabelAndIntValue("Filtered", uint64(s.Filtered))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.ScanReport, s model.Summary) {
	switch {
	case report.Cancelled:
		md.Warningf("The scan was interrupted. Only %d port(s) were scanned.", s.Total)
	case s.Open > 0:
		md.Importantf("%d open port(s) found on %s.", s.Open, report.Target)
	case s.Total > 0:
		md.Note("No open ports found.")
	default:
		md.Tip("No ports were scanned.")
	}
	md.PlainText("")
}

// writePorts lists open ports first, then everything in port order.
func (w *MarkdownWriter) writePorts(md *markdown.Markdown, report *model.ScanReport) {
	md.H2("Open Ports")
	md.PlainText("")

	open := report.OpenPorts()
	if len(open) == 0 {
		md.PlainText("No open ports.")
		md.PlainText("")
	} else {
		w.writePortTable(md, open)
	}

	all := report.Sorted()
	if len(all) == len(open) {
		return
	}
	md.H2("All Ports")
	md.PlainText("")
	w.writePortTable(md, all)
}

func (w *MarkdownWriter) writePortTable(md *markdown.Markdown, results []model.PortResult) {
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{
			strconv.Itoa(r.Port),
			r.State.String(),
			tableCell(r.Service),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Port", "State", "Service"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [portscout](https://github.com/nao1215/portscout)*")
}

// tableCell makes a banner safe for a table cell: control bytes escaped,
// pipes escaped, length bounded.
func tableCell(s string) string {
	s = log.EscapeControl(s)
	s = strings.ReplaceAll(s, "|", `\|`)
	return truncateString(s, maxServiceCell)
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
