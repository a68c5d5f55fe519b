package model

import (
	"testing"
	"time"
)

func TestScanReport(t *testing.T) {
	t.Parallel()

	report := NewScanReport("10.0.0.5", "CONNECT", true)
	report.Add(NewPortResult(443, Open, "HTTPS (TLSv1.3, TLS_AES_128_GCM_SHA256)"))
	report.Add(NewPortResult(22, Open, "SSH (SSH-2.0-OpenSSH_9.6) | Auth: [publickey]"))
	report.Add(NewPortResult(23, Closed, ""))
	report.Add(NewPortResult(25, Filtered, ""))

	t.Run("summary counts states", func(t *testing.T) {
		t.Parallel()

		got := report.Summary()
		want := Summary{Total: 4, Open: 2, Closed: 1, Filtered: 1}
		if got != want {
			t.Errorf("summary = %+v, want %+v", got, want)
		}
	})

	t.Run("sorted orders by port without touching results", func(t *testing.T) {
		t.Parallel()

		sorted := report.Sorted()
		for i := 1; i < len(sorted); i++ {
			if sorted[i-1].Port > sorted[i].Port {
				t.Fatalf("not sorted: %v", sorted)
			}
		}
		if report.Results[0].Port != 443 {
			t.Error("Sorted must not reorder the original slice")
		}
	})

	t.Run("open ports", func(t *testing.T) {
		t.Parallel()

		open := report.OpenPorts()
		if len(open) != 2 || open[0].Port != 22 || open[1].Port != 443 {
			t.Errorf("open ports = %v", open)
		}
	})

	t.Run("result lookup", func(t *testing.T) {
		t.Parallel()

		if r, ok := report.Result(23); !ok || r.State != Closed {
			t.Errorf("Result(23) = %v, %v", r, ok)
		}
		if _, ok := report.Result(9999); ok {
			t.Error("Result(9999) should be missing")
		}
	})
}

func TestScanReportDuration(t *testing.T) {
	t.Parallel()

	report := NewScanReport("10.0.0.5", "SYN", false)
	if report.Duration() != 0 {
		t.Error("unfinished report should have zero duration")
	}
	report.StartedAt = time.Now().Add(-2 * time.Second)
	report.Finish()
	if report.Duration() < 2*time.Second {
		t.Errorf("duration = %v, want >= 2s", report.Duration())
	}
}
