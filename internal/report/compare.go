package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/portscout/internal/log"
	"github.com/nao1215/portscout/internal/model"
)

// Exposure directions of a Comparison.
const (
	ExposureIncreased = "increased"
	ExposureDecreased = "decreased"
	ExposureUnchanged = "unchanged"
)

// ScanMetadata summarizes one side of a comparison.
type ScanMetadata struct {
	ID          int64     `json:"id,omitempty"`
	DateScanned time.Time `json:"date_scanned"`
	Mode        string    `json:"mode"`
	Open        int       `json:"open"`
	Closed      int       `json:"closed"`
	Filtered    int       `json:"filtered"`
}

// Comparison is the difference between two scans of the same target.
type Comparison struct {
	Target   string             `json:"target"`
	Previous ScanMetadata       `json:"previous_scan"`
	Current  ScanMetadata       `json:"current_scan"`
	Changes  []model.PortChange `json:"changes"`

	// Exposure tells whether the number of open ports went up or down.
	Exposure  string `json:"exposure"`
	OpenDelta int    `json:"open_delta"`
}

// NewComparison diffs previous against current.
func NewComparison(previous, current *model.ScanReport) *Comparison {
	c := &Comparison{
		Target:   current.Target,
		Previous: metadata(previous),
		Current:  metadata(current),
		Changes:  model.Diff(previous, current),
	}
	if c.Changes == nil {
		c.Changes = []model.PortChange{}
	}

	c.OpenDelta = c.Current.Open - c.Previous.Open
	switch {
	case c.OpenDelta > 0:
		c.Exposure = ExposureIncreased
	case c.OpenDelta < 0:
		c.Exposure = ExposureDecreased
	default:
		c.Exposure = ExposureUnchanged
	}
	return c
}

func metadata(r *model.ScanReport) ScanMetadata {
	s := r.Summary()
	return ScanMetadata{
		ID:          r.ID,
		DateScanned: r.StartedAt,
		Mode:        r.Mode,
		Open:        s.Open,
		Closed:      s.Closed,
		Filtered:    s.Filtered,
	}
}

// ChangesOf returns the changes of one kind, in port order.
func (c *Comparison) ChangesOf(kind model.ChangeKind) []model.PortChange {
	var out []model.PortChange
	for _, ch := range c.Changes {
		if ch.Kind == kind {
			out = append(out, ch)
		}
	}
	return out
}

// WriteComparisonJSON writes c as indented JSON.
func WriteComparisonJSON(w io.Writer, c *Comparison) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

// WriteComparisonText writes c for terminal display.
func WriteComparisonText(w io.Writer, c *Comparison) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Scan Comparison: %s\n", c.Target)
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&sb, "\nExposure: %s\n", exposureText(c.Exposure))
	fmt.Fprintf(&sb, "\nPrevious scan: %s (%s)\n", c.Previous.DateScanned.Format("2006-01-02 15:04:05"), c.Previous.Mode)
	fmt.Fprintf(&sb, "Current scan:  %s (%s)\n", c.Current.DateScanned.Format("2006-01-02 15:04:05"), c.Current.Mode)

	sb.WriteString("\nState Summary:\n")
	fmt.Fprintf(&sb, "  %-10s  %-10s  %-10s  %-10s\n", "State", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	for _, row := range summaryRows(c) {
		fmt.Fprintf(&sb, "  %-10s  %-10d  %-10d  %-10s\n", row.name, row.prev, row.cur, formatDelta(row.cur-row.prev))
	}

	if len(c.Changes) == 0 {
		sb.WriteString("\nNo port changes.\n")
	}
	for _, sec := range changeSections {
		changes := c.ChangesOf(sec.kind)
		if len(changes) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s (%d):\n", sec.title, len(changes))
		for _, ch := range changes {
			fmt.Fprintf(&sb, "  [%s] %s\n", sec.marker, describeChange(ch))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteComparisonMarkdown writes c as a Markdown document.
func WriteComparisonMarkdown(w io.Writer, c *Comparison) error {
	md := markdown.NewMarkdown(w)

	md.H1("Scan Comparison: " + c.Target)
	md.PlainText("")
	md.PlainTextf("**Exposure:** %s", exposureText(c.Exposure))
	md.PlainText("")

	rows := [][]string{
		{"Date", c.Previous.DateScanned.Format("2006-01-02 15:04"), c.Current.DateScanned.Format("2006-01-02 15:04"), "-"},
		{"Mode", c.Previous.Mode, c.Current.Mode, "-"},
	}
	for _, row := range summaryRows(c) {
		rows = append(rows, []string{row.name, strconv.Itoa(row.prev), strconv.Itoa(row.cur), formatDelta(row.cur - row.prev)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(c.Changes) == 0 {
		md.Tip("No port changes between the two scans.")
		md.PlainText("")
		return md.Build()
	}

	for _, sec := range changeSections {
		changes := c.ChangesOf(sec.kind)
		if len(changes) == 0 {
			continue
		}
		md.H2(fmt.Sprintf("%s (%d)", sec.title, len(changes)))
		md.PlainText("")
		items := make([]string, len(changes))
		for i, ch := range changes {
			items[i] = strings.ReplaceAll(describeChange(ch), "|", `\|`)
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	return md.Build()
}

var changeSections = []struct {
	kind   model.ChangeKind
	title  string
	marker string
}{
	{model.ChangeOpened, "Newly Open Ports", "+"},
	{model.ChangeClosed, "No Longer Open", "-"},
	{model.ChangeServiceChanged, "Service Changed", "~"},
	{model.ChangeStateChanged, "State Changed", "~"},
}

type summaryRow struct {
	name      string
	prev, cur int
}

func summaryRows(c *Comparison) []summaryRow {
	return []summaryRow{
		{"Open", c.Previous.Open, c.Current.Open},
		{"Closed", c.Previous.Closed, c.Current.Closed},
		{"Filtered", c.Previous.Filtered, c.Current.Filtered},
	}
}

func describeChange(ch model.PortChange) string {
	switch ch.Kind {
	case model.ChangeOpened:
		return fmt.Sprintf("%d: %s -> Open, %s", ch.Port, ch.Previous.State, log.EscapeControl(ch.Current.Service))
	case model.ChangeServiceChanged:
		return fmt.Sprintf("%d: %s -> %s", ch.Port,
			log.EscapeControl(ch.Previous.Service), log.EscapeControl(ch.Current.Service))
	default:
		return fmt.Sprintf("%d: %s -> %s", ch.Port, ch.Previous.State, ch.Current.State)
	}
}

func exposureText(direction string) string {
	switch direction {
	case ExposureIncreased:
		return "INCREASED (more open ports)"
	case ExposureDecreased:
		return "DECREASED (fewer open ports)"
	default:
		return "UNCHANGED"
	}
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
