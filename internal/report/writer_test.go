package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/model"
)

var testStart = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// createTestReport creates a finished report with results in completion order.
func createTestReport() *model.ScanReport {
	report := model.NewScanReport("192.168.0.10", "SYN", true)
	report.StartedAt = testStart
	report.Add(model.NewPortResult(443, model.Open, "HTTPS (TLSv1.3) | CN: example.com"))
	report.Add(model.NewPortResult(22, model.Open, "SSH (SSH-2.0-OpenSSH_9.6) | Auth: [publickey]"))
	report.Add(model.NewPortResult(23, model.Closed, ""))
	report.Add(model.NewPortResult(25, model.Filtered, ""))
	report.FinishedAt = testStart.Add(1500 * time.Millisecond)
	return report
}

// TestConsoleWriter tests the live table writer.
func TestConsoleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header, sorted lines, and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewConsoleWriter(&buf, WithColor(false))

		n, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("Write() = %d, buffer holds %d bytes", n, buf.Len())
		}

		want := strings.Join([]string{
			"[*] Target: 192.168.0.10, Mode: SYN",
			"[*] Service detection: on, started 2026-03-01 10:00:00",
			strings.Repeat("-", 60),
			"PORT       STATUS          SERVICE",
			strings.Repeat("-", 60),
			"22         Open            SSH (SSH-2.0-OpenSSH_9.6) | Auth: [publickey]",
			"23         Closed          Unknown",
			"25         Filtered        Unknown",
			"443        Open            HTTPS (TLSv1.3) | CN: example.com",
			strings.Repeat("-", 60),
			"[*] 4 port(s) scanned: 2 open, 1 closed, 1 filtered in 1.5s",
			"",
		}, "\n")
		if got := buf.String(); got != want {
			t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", got, want)
		}
	})

	t.Run("filters lines", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			filter config.ConsoleOutput
			shown  []string
			hidden []string
		}{
			{
				name:   "all",
				filter: config.OutputAll,
				shown:  []string{"22 ", "23 ", "25 ", "443 "},
			},
			{
				name:   "open only",
				filter: config.OutputOpenOnly,
				shown:  []string{"22 ", "443 "},
				hidden: []string{"23 ", "25 "},
			},
			{
				name:   "none",
				filter: config.OutputNone,
				hidden: []string{"22 ", "23 ", "25 ", "443 "},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				var buf bytes.Buffer
				w := NewConsoleWriter(&buf, WithColor(false), WithFilter(tt.filter))
				if _, err := w.Write(createTestReport()); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				lines := strings.Split(buf.String(), "\n")
				hasLine := func(prefix string) bool {
					for _, l := range lines {
						if strings.HasPrefix(l, prefix) {
							return true
						}
					}
					return false
				}
				for _, p := range tt.shown {
					if !hasLine(p) {
						t.Errorf("expected a line starting with %q", p)
					}
				}
				for _, p := range tt.hidden {
					if hasLine(p) {
						t.Errorf("unexpected line starting with %q", p)
					}
				}
				if !strings.Contains(buf.String(), "4 port(s) scanned") {
					t.Error("summary must be printed regardless of the filter")
				}
			})
		}
	})

	t.Run("colors states when enabled", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			state model.PortState
			code  string
		}{
			{model.Open, "\x1b[32m"},
			{model.Closed, "\x1b[31m"},
			{model.Filtered, "\x1b[33m"},
		}

		for _, tt := range tests {
			t.Run(tt.state.String(), func(t *testing.T) {
				t.Parallel()

				var buf bytes.Buffer
				w := NewConsoleWriter(&buf, WithColor(true))
				if err := w.WriteResult(model.NewPortResult(80, tt.state, "")); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				got := buf.String()
				prefix := fmt.Sprintf("80         %s%-15s\x1b[", tt.code, tt.state)
				if !strings.HasPrefix(got, prefix) || !strings.HasSuffix(got, "m Unknown\n") {
					t.Errorf("WriteResult() = %q, want colored status column", got)
				}
			})
		}
	})

	t.Run("no escape codes when disabled", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewConsoleWriter(&buf, WithColor(false))
		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "\x1b") {
			t.Errorf("output contains escape sequences: %q", buf.String())
		}
	})

	t.Run("escapes control bytes in banners", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewConsoleWriter(&buf, WithColor(false))
		err := w.WriteResult(model.NewPortResult(21, model.Open, "220 evil\x1b[2J\r\nftp"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := buf.String()
		if strings.Contains(got, "\x1b") || strings.Count(got, "\n") != 1 {
			t.Errorf("banner was not escaped: %q", got)
		}
		if !strings.Contains(got, `220 evil\x1b[2J\r\nftp`) {
			t.Errorf("escaped banner missing: %q", got)
		}
	})

	t.Run("marks interrupted scans", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Cancelled = true

		var buf bytes.Buffer
		w := NewConsoleWriter(&buf, WithColor(false))
		if err := w.WriteSummary(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[!] Scan interrupted") {
			t.Errorf("expected interruption notice, got %q", buf.String())
		}
	})

	t.Run("concurrent results never interleave", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewConsoleWriter(&buf, WithColor(false))

		var wg sync.WaitGroup
		for port := 1; port <= 50; port++ {
			wg.Go(func() {
				_ = w.WriteResult(model.NewPortResult(port, model.Open, "SSH (x)")) //nolint:errcheck
			})
		}
		wg.Wait()

		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		if len(lines) != 50 {
			t.Fatalf("got %d lines, want 50", len(lines))
		}
		for _, l := range lines {
			if !strings.HasSuffix(l, "Open            SSH (x)") {
				t.Errorf("garbled line %q", l)
			}
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes sorted report", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		report := createTestReport()
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got model.ScanReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got.Target != "192.168.0.10" || got.Mode != "SYN" {
			t.Errorf("got target %q mode %q", got.Target, got.Mode)
		}
		ports := make([]int, len(got.Results))
		for i, r := range got.Results {
			ports[i] = r.Port
		}
		if fmt.Sprint(ports) != "[22 23 25 443]" {
			t.Errorf("ports = %v, want sorted", ports)
		}
		if got.Results[0].State != model.Open {
			t.Errorf("state = %v, want Open", got.Results[0].State)
		}
		if report.Results[0].Port != 443 {
			t.Error("Write must not reorder the caller's report")
		}
	})

	t.Run("states are names", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"state":"Filtered"`) {
			t.Errorf("expected textual state, got %s", buf.String())
		}
	})

	t.Run("compact vs pretty", func(t *testing.T) {
		t.Parallel()

		var compact, pretty bytes.Buffer
		if _, err := NewJSONWriter(&compact).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := NewJSONWriter(&pretty, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(compact.String(), "\n") != 1 {
			t.Error("compact output should be a single line")
		}
		if !strings.Contains(pretty.String(), "\n  \"target\"") {
			t.Error("pretty output should be indented")
		}
	})

	t.Run("full writer wraps with metadata", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewFullJSONWriter(&buf, "1.2.3").Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got.Version != "1.2.3" {
			t.Errorf("Version = %q", got.Version)
		}
		want := model.Summary{Total: 4, Open: 2, Closed: 1, Filtered: 1}
		if got.Summary != want {
			t.Errorf("Summary = %+v, want %+v", got.Summary, want)
		}
		if got.DurationSeconds != 1.5 {
			t.Errorf("DurationSeconds = %v, want 1.5", got.DurationSeconds)
		}
		if got.Report == nil || len(got.Report.Results) != 4 {
			t.Error("expected embedded report with 4 results")
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes sections and chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n == 0 {
			t.Error("expected non-zero byte count")
		}

		out := buf.String()
		for _, want := range []string{
			"# Port Scan Report",
			"`192.168.0.10`",
			"## Summary",
			"```mermaid",
			"Port State Distribution",
			"## Open Ports",
			"## All Ports",
			"2 open port(s) found on 192.168.0.10.",
			`SSH (SSH-2.0-OpenSSH_9.6) \| Auth: [publickey]`,
			"Report generated by [portscout]",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("empty report", func(t *testing.T) {
		t.Parallel()

		report := model.NewScanReport("10.0.0.1", "CONNECT", false)
		report.Finish()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if strings.Contains(out, "```mermaid") {
			t.Error("no chart expected without results")
		}
		if !strings.Contains(out, "No open ports.") {
			t.Error("expected empty open port notice")
		}
		if strings.Contains(out, "## All Ports") {
			t.Error("All Ports section should be omitted when it repeats Open Ports")
		}
	})

	t.Run("interrupted scan", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Cancelled = true

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "Interrupted (partial results)") {
			t.Error("expected interrupted status")
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"日本語のバナー文字列", 6, "日本語..."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := truncateString(tt.in, tt.max); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestJSONWriter_KeepsMarkup(t *testing.T) {
	t.Parallel()

	report := createTestReport()
	report.Add(model.NewPortResult(8080, model.Open, "HTTP (nginx) | Title: <Admin> & co"))

	var buf bytes.Buffer
	n, err := NewJSONWriter(&buf).Write(report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != buf.Len() {
		t.Errorf("Write() = %d, wrote %d bytes", n, buf.Len())
	}
	if !strings.Contains(buf.String(), "Title: <Admin> & co") {
		t.Errorf("expected unescaped service text, got:\n%s", buf.String())
	}
}
