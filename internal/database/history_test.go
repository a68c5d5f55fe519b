package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/portscout/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close() //nolint:errcheck
	})
	return db
}

var baseTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// newReport builds a finished report started offset after baseTime.
func newReport(target string, offset time.Duration, results ...model.PortResult) *model.ScanReport {
	r := model.NewScanReport(target, "CONNECT", true)
	r.StartedAt = baseTime.Add(offset)
	for _, res := range results {
		r.Add(res)
	}
	r.FinishedAt = r.StartedAt.Add(2 * time.Second)
	return r
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		want := filepath.Join(dbDir, DBFileName)
		if db.Path() != want {
			t.Errorf("Path() = %q, want %q", db.Path(), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
		}

		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		ctx := context.Background()

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		id, err := db1.SaveScanReport(ctx, newReport("10.0.0.1", 0, model.NewPortResult(22, model.Open, "SSH (x)")))
		if err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		got, err := db2.GetScanReportByID(ctx, id)
		if err != nil {
			t.Fatalf("report did not persist: %v", err)
		}
		if len(got.Results) != 1 {
			t.Errorf("got %d results, want 1", len(got.Results))
		}
	})

	t.Run("without WAL", func(t *testing.T) {
		t.Parallel()

		db, err := Open(t.TempDir(), Options{CreateIfNotExists: true})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
	})
}

// TestDefaultOptions tests the default options values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

// TestSaveScanReport tests that a saved report reads back unchanged.
func TestSaveScanReport(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	report := newReport("192.168.0.10", 0,
		model.NewPortResult(443, model.Open, "HTTPS (TLSv1.3) | CN: example.com"),
		model.NewPortResult(22, model.Open, "SSH (SSH-2.0-OpenSSH_9.6) | Auth: [publickey]"),
		model.NewPortResult(23, model.Closed, ""),
		model.NewPortResult(25, model.Filtered, ""),
	)
	report.Mode = "SYN"
	report.Cancelled = true

	id, err := db.SaveScanReport(ctx, report)
	if err != nil {
		t.Fatalf("SaveScanReport() error = %v", err)
	}
	if id == 0 || report.ID != id {
		t.Fatalf("id = %d, report.ID = %d", id, report.ID)
	}

	got, err := db.GetScanReportByID(ctx, id)
	if err != nil {
		t.Fatalf("GetScanReportByID() error = %v", err)
	}

	if got.ID != id || got.Target != "192.168.0.10" || got.Mode != "SYN" {
		t.Errorf("got id=%d target=%q mode=%q", got.ID, got.Target, got.Mode)
	}
	if !got.ServiceDetection || !got.Cancelled {
		t.Errorf("flags lost: detection=%v cancelled=%v", got.ServiceDetection, got.Cancelled)
	}
	if !got.StartedAt.Equal(report.StartedAt) || !got.FinishedAt.Equal(report.FinishedAt) {
		t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.FinishedAt, report.StartedAt, report.FinishedAt)
	}

	want := report.Sorted()
	if len(got.Results) != len(want) {
		t.Fatalf("got %d results, want %d", len(got.Results), len(want))
	}
	for i := range want {
		if got.Results[i] != want[i] {
			t.Errorf("result %d = %+v, want %+v", i, got.Results[i], want[i])
		}
	}
}

func TestSaveScanReport_Empty(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	report := model.NewScanReport("10.0.0.2", "CONNECT", false)
	id, err := db.SaveScanReport(ctx, report)
	if err != nil {
		t.Fatalf("SaveScanReport() error = %v", err)
	}

	got, err := db.GetScanReportByID(ctx, id)
	if err != nil {
		t.Fatalf("GetScanReportByID() error = %v", err)
	}
	if len(got.Results) != 0 {
		t.Errorf("got %d results, want 0", len(got.Results))
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero for an unfinished report", got.FinishedAt)
	}
}

// TestGetLatestScanReports tests ordering and limits.
func TestGetLatestScanReports(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	// Saved out of chronological order on purpose.
	for _, offset := range []time.Duration{time.Hour, 0, 3 * time.Hour, 2 * time.Hour} {
		r := newReport("10.0.0.1", offset, model.NewPortResult(int(offset/time.Hour)+1, model.Open, ""))
		if _, err := db.SaveScanReport(ctx, r); err != nil {
			t.Fatalf("SaveScanReport() error = %v", err)
		}
	}
	if _, err := db.SaveScanReport(ctx, newReport("10.0.0.9", 5*time.Hour)); err != nil {
		t.Fatalf("SaveScanReport() error = %v", err)
	}

	tests := []struct {
		name      string
		n         int
		wantPorts []int
	}{
		{name: "latest two", n: 2, wantPorts: []int{4, 3}},
		{name: "more than stored", n: 10, wantPorts: []int{4, 3, 2, 1}},
		{name: "zero means all", n: 0, wantPorts: []int{4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reports, err := db.GetLatestScanReports(ctx, "10.0.0.1", tt.n)
			if err != nil {
				t.Fatalf("GetLatestScanReports() error = %v", err)
			}
			if len(reports) != len(tt.wantPorts) {
				t.Fatalf("got %d reports, want %d", len(reports), len(tt.wantPorts))
			}
			for i, r := range reports {
				if r.Target != "10.0.0.1" {
					t.Errorf("report %d target = %q", i, r.Target)
				}
				if len(r.Results) != 1 || r.Results[0].Port != tt.wantPorts[i] {
					t.Errorf("report %d results = %+v, want port %d", i, r.Results, tt.wantPorts[i])
				}
			}
		})
	}

	t.Run("unknown target", func(t *testing.T) {
		t.Parallel()

		_, err := db.GetLatestScanReports(ctx, "10.9.9.9", 2)
		if !errors.Is(err, ErrNoHistory) {
			t.Errorf("expected ErrNoHistory, got %v", err)
		}
	})
}

// TestGetScanHistory tests history metadata.
func TestGetScanHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("returns empty list for unknown target", func(t *testing.T) {
		history, err := db.GetScanHistory(ctx, "10.1.1.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected empty history, got %d", len(history))
		}
	})

	t.Run("returns counts newest first", func(t *testing.T) {
		older := newReport("10.1.1.2", 0,
			model.NewPortResult(22, model.Open, "SSH (x)"),
			model.NewPortResult(23, model.Closed, ""),
		)
		newer := newReport("10.1.1.2", time.Hour,
			model.NewPortResult(22, model.Open, "SSH (x)"),
			model.NewPortResult(80, model.Open, "HTTP (nginx)"),
			model.NewPortResult(81, model.Filtered, ""),
		)
		newer.Mode = "SYN"
		for _, r := range []*model.ScanReport{older, newer} {
			if _, err := db.SaveScanReport(ctx, r); err != nil {
				t.Fatalf("SaveScanReport() error = %v", err)
			}
		}

		history, err := db.GetScanHistory(ctx, "10.1.1.2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("got %d entries, want 2", len(history))
		}

		first := history[0]
		if first.ID != newer.ID || first.Mode != "SYN" || !first.Timestamp.Equal(newer.StartedAt) {
			t.Errorf("first entry = %+v, want the newer scan", first)
		}
		want := model.Summary{Total: 3, Open: 2, Closed: 0, Filtered: 1}
		if first.Summary != want {
			t.Errorf("Summary = %+v, want %+v", first.Summary, want)
		}
		if history[1].ID != older.ID {
			t.Errorf("second entry ID = %d, want %d", history[1].ID, older.ID)
		}
	})
}

// TestGetScanReportByID tests lookup of missing IDs.
func TestGetScanReportByID(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	_, err := db.GetScanReportByID(context.Background(), 999)
	if !errors.Is(err, ErrScanNotFound) {
		t.Errorf("expected ErrScanNotFound, got %v", err)
	}
}

// TestListScannedTargets tests distinct target listing.
func TestListScannedTargets(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	targets, err := db.ListScannedTargets(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 0 {
		t.Errorf("expected no targets, got %v", targets)
	}

	for _, target := range []string{"10.0.0.2", "10.0.0.1", "10.0.0.2"} {
		if _, err := db.SaveScanReport(ctx, newReport(target, 0)); err != nil {
			t.Fatalf("SaveScanReport() error = %v", err)
		}
	}

	targets, err = db.ListScannedTargets(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 || targets[0] != "10.0.0.1" || targets[1] != "10.0.0.2" {
		t.Errorf("targets = %v, want [10.0.0.1 10.0.0.2]", targets)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-05-04 12:00:00.000000000", baseTime},
		{"2026-05-04 12:00:00", baseTime},
		{"2026-05-04T12:00:00Z", baseTime},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}

	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if got := formatTime(baseTime.In(time.FixedZone("JST", 9*60*60))); got != "2026-05-04 12:00:00.000000000" {
		t.Errorf("formatTime() = %q, want UTC", got)
	}
	if formatTime(time.Time{}) != "" {
		t.Error("zero time should format as empty string")
	}
}
