package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/portscout/internal/model"
)

// DBFileName is the name of the history database inside the data directory.
const DBFileName = "portscout.db"

// storedTimeLayout is fixed-width so that text comparison in SQL orders
// rows chronologically.
const storedTimeLayout = "2006-01-02 15:04:05.000000000"

var (
	// ErrNoHistory is returned when a target has no stored scans.
	ErrNoHistory = errors.New("no scan history")

	// ErrScanNotFound is returned when a scan ID does not exist.
	ErrScanNotFound = errors.New("scan not found")

	// ErrDatabaseNotFound is returned by Open when the database file is
	// missing and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("database not found")
)

// HistoryDB provides SQLite-based storage for finished scan reports.
//
// Design decision: Reports are stored normalized (one row per scan plus one
// row per port) instead of as a JSON blob because:
//  1. compare --list needs per-state counts without decoding every report
//  2. Port rows can be queried directly with the sqlite3 shell
//  3. States are stored by name, so reordering the enum cannot corrupt history
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// Otherwise a missing database file yields ErrDatabaseNotFound.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	mode := "rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		// mode=rw keeps the driver from creating a new file.
		mode = "rw"
	}

	db, err := sql.Open("sqlite", dbPath+"?mode="+mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	// Wait for concurrent writers (another portscout process) instead of
	// failing with SQLITE_BUSY.
	if _, err := db.ExecContext(context.Background(), "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close() //nolint:errcheck
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per scan run
	CREATE TABLE IF NOT EXISTS scans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		service_detection INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		cancelled INTEGER NOT NULL DEFAULT 0,
		open_count INTEGER NOT NULL DEFAULT 0,
		closed_count INTEGER NOT NULL DEFAULT 0,
		filtered_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scans_target ON scans(target);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

	-- One row per scanned port
	CREATE TABLE IF NOT EXISTS port_results (
		scan_id INTEGER NOT NULL REFERENCES scans(id),
		port INTEGER NOT NULL,
		state TEXT NOT NULL,
		service TEXT NOT NULL,
		PRIMARY KEY (scan_id, port)
	);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScanReport stores report and all its results in one transaction.
// On success report.ID is set to the new row ID, which is also returned.
func (h *HistoryDB) SaveScanReport(ctx context.Context, report *model.ScanReport) (id int64, err error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck
		}
	}()

	s := report.Summary()
	res, err := tx.ExecContext(ctx, `
	INSERT INTO scans (target, mode, service_detection, started_at, finished_at,
		cancelled, open_count, closed_count, filtered_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Target,
		report.Mode,
		report.ServiceDetection,
		formatTime(report.StartedAt),
		formatTime(report.FinishedAt),
		report.Cancelled,
		s.Open, s.Closed, s.Filtered,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save scan report: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read scan ID: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO port_results (scan_id, port, state, service) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range report.Results {
		if _, err = stmt.ExecContext(ctx, id, r.Port, r.State.String(), r.Service); err != nil {
			return 0, fmt.Errorf("failed to save result for port %d: %w", r.Port, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit scan report: %w", err)
	}

	report.ID = id
	return id, nil
}

// GetLatestScanReports returns up to n reports for target, newest first.
// n <= 0 returns all of them. It returns ErrNoHistory when the target was
// never scanned.
func (h *HistoryDB) GetLatestScanReports(ctx context.Context, target string, n int) ([]*model.ScanReport, error) {
	if n <= 0 {
		n = -1 // SQLite: no limit
	}
	rows, err := h.db.QueryContext(ctx, `
	SELECT `+scanColumns+` FROM scans
	WHERE target = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`, target, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan reports: %w", err)
	}

	var reports []*model.ScanReport
	for rows.Next() {
		report, err := scanReportRow(rows)
		if err != nil {
			rows.Close() //nolint:errcheck
			return nil, err
		}
		reports = append(reports, report)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scan reports: %w", err)
	}

	if len(reports) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoHistory, target)
	}

	// Results are loaded after the cursor is closed; the pool has a single
	// connection.
	for _, report := range reports {
		if err := h.loadResults(ctx, report); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// GetScanReportByID retrieves a scan report by its database ID.
func (h *HistoryDB) GetScanReportByID(ctx context.Context, id int64) (*model.ScanReport, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = ?`, id)
	report, err := scanReportRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrScanNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if err := h.loadResults(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// ScanReportMetadata contains summary information about a scan report.
// This is used for displaying scan history without loading the full report.
type ScanReportMetadata struct {
	// ID is the unique identifier of the scan report in the database.
	ID int64

	// Target is the scanned host.
	Target string

	// Mode is the state scanner mode used.
	Mode string

	// Timestamp is when the scan was started.
	Timestamp time.Time

	// Cancelled marks partial scans.
	Cancelled bool

	// Summary holds the per-state counts.
	Summary model.Summary
}

// GetScanHistory returns metadata for every scan of target, newest first.
// An unknown target yields an empty slice.
func (h *HistoryDB) GetScanHistory(ctx context.Context, target string) ([]ScanReportMetadata, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT id, target, mode, started_at, cancelled, open_count, closed_count, filtered_count
	FROM scans
	WHERE target = ?
	ORDER BY started_at DESC, id DESC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	results := make([]ScanReportMetadata, 0)
	for rows.Next() {
		var meta ScanReportMetadata
		var started string
		if err := rows.Scan(&meta.ID, &meta.Target, &meta.Mode, &started, &meta.Cancelled,
			&meta.Summary.Open, &meta.Summary.Closed, &meta.Summary.Filtered); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.Timestamp = parseTimestamp(started)
		meta.Summary.Total = meta.Summary.Open + meta.Summary.Closed + meta.Summary.Filtered
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListScannedTargets returns every target with at least one stored scan.
func (h *HistoryDB) ListScannedTargets(ctx context.Context) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT target FROM scans ORDER BY target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var targets []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, target)
	}

	return targets, rows.Err()
}

const scanColumns = `id, target, mode, service_detection, started_at, finished_at, cancelled`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReportRow(row rowScanner) (*model.ScanReport, error) {
	var (
		report   model.ScanReport
		started  string
		finished sql.NullString
	)
	err := row.Scan(&report.ID, &report.Target, &report.Mode, &report.ServiceDetection,
		&started, &finished, &report.Cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report row: %w", err)
	}

	report.StartedAt = parseTimestamp(started)
	if finished.Valid {
		report.FinishedAt = parseTimestamp(finished.String)
	}
	report.Results = make([]model.PortResult, 0)
	return &report, nil
}

func (h *HistoryDB) loadResults(ctx context.Context, report *model.ScanReport) error {
	rows, err := h.db.QueryContext(ctx, `
	SELECT port, state, service FROM port_results
	WHERE scan_id = ?
	ORDER BY port
	`, report.ID)
	if err != nil {
		return fmt.Errorf("failed to load results of scan %d: %w", report.ID, err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			port    int
			state   string
			service string
		)
		if err := rows.Scan(&port, &state, &service); err != nil {
			return fmt.Errorf("failed to scan result: %w", err)
		}
		st, err := model.ParsePortState(state)
		if err != nil {
			return fmt.Errorf("scan %d port %d: %w", report.ID, port, err)
		}
		report.Add(model.PortResult{Port: port, State: st, Service: service})
	}
	return rows.Err()
}

// formatTime renders t in UTC with storedTimeLayout. The zero time is
// stored as an empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(storedTimeLayout)
}

// timestampFormats contains the timestamp formats accepted when reading.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	storedTimeLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a stored timestamp as UTC.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.ParseInLocation(format, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
