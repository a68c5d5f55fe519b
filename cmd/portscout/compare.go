package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/database"
	"github.com/nao1215/portscout/internal/model"
	"github.com/nao1215/portscout/internal/report"
	"github.com/nao1215/portscout/internal/validate"
)

// NewCompareCmd creates the compare command.
// This command compares scan results stored in the history database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [ip]",
		Short: "Compare scan results with historical data",
		Long: `Compare displays the port changes between two stored scans of a host.

It shows:
- Ports that became open since the previous scan
- Ports that are no longer open
- Ports whose service fingerprint or state changed

The comparison needs at least two scans of the host in the history
database. Use 'portscout scan --db' to store scans.

Examples:
  # Compare the latest two scans of a host
  portscout compare 192.168.0.10

  # List the scan history of a host
  portscout compare --list 192.168.0.10

  # Compare the latest scan with a specific scan
  portscout compare --with-scan-id 5 192.168.0.10

  # Compare the latest scan with the first scan since a date
  portscout compare --since 2026-01-01 192.168.0.10

  # List every host in the database
  portscout compare --list-targets`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List scan history for the specified host")
	cmd.Flags().BoolP("list-targets", "L", false,
		"List all scanned hosts in the database")

	// Comparison target flags
	cmd.Flags().Int64P("with-scan-id", "i", 0,
		"Compare with a specific scan by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first scan on or after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	cmd.Flags().String("db-dir", "",
		"Scan history directory (default: "+config.XDGDataDir()+")")

	return cmd
}

// compareOptions collects the compare command flags.
type compareOptions struct {
	listHistory bool
	listTargets bool
	withScanID  int64
	since       string
	json        bool
	markdown    bool
	dbDir       string
}

func compareOptionsFromFlags(cmd *cobra.Command) (*compareOptions, error) {
	flags := cmd.Flags()
	opts := &compareOptions{}

	var err error
	if opts.listHistory, err = flags.GetBool("list"); err != nil {
		return nil, err
	}
	if opts.listTargets, err = flags.GetBool("list-targets"); err != nil {
		return nil, err
	}
	if opts.withScanID, err = flags.GetInt64("with-scan-id"); err != nil {
		return nil, err
	}
	if opts.since, err = flags.GetString("since"); err != nil {
		return nil, err
	}
	if opts.json, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}

	if opts.json && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.withScanID != 0 && opts.since != "" {
		return nil, errors.New("--with-scan-id and --since cannot be used together")
	}
	return opts, nil
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	opts, err := compareOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database so a typo does not
	// leave an empty database file behind.
	var target string
	if !opts.listTargets {
		if len(args) == 0 {
			return errors.New("target IP address is required (use --list-targets to see stored hosts)")
		}
		target = strings.TrimSpace(args[0])
		if !validate.IsValidIP(target) {
			return fmt.Errorf("%w: %q", config.ErrInvalidIP, target)
		}
	}

	// compare never creates the database; there is nothing to compare in
	// a fresh one.
	db, err := database.Open(opts.dbDir, database.Options{EnableWAL: true})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			return fmt.Errorf("%w: run 'portscout scan --db' first", err)
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case opts.listTargets:
		return listScannedTargets(ctx, out, db)
	case opts.listHistory:
		return listScanHistory(ctx, out, db, target)
	default:
		return runComparison(ctx, out, db, target, opts)
	}
}

// listScannedTargets lists all hosts that have scan records in the database.
func listScannedTargets(ctx context.Context, out io.Writer, db *database.HistoryDB) error {
	targets, err := db.ListScannedTargets(ctx)
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		fmt.Fprintln(out, "No scanned hosts found in the database.")
		fmt.Fprintln(out, "\nUse 'portscout scan --db <ip>' to store a scan.")
		return nil
	}

	fmt.Fprintf(out, "Scanned hosts (%d):\n\n", len(targets))
	for _, target := range targets {
		fmt.Fprintf(out, "  • %s\n", target)
	}
	fmt.Fprintln(out, "\nUse 'portscout compare --list <ip>' to see the scan history of a host.")
	return nil
}

// listScanHistory lists all scan records for one host.
func listScanHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, target string) error {
	history, err := db.GetScanHistory(ctx, target)
	if err != nil {
		return err
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No scan history found for %s\n", target)
		fmt.Fprintln(out, "\nUse 'portscout scan --db' to store scans of this host.")
		return nil
	}

	fmt.Fprintf(out, "Scan history for %s (%d scans):\n\n", target, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-8s  %s\n", "ID", "Date", "Mode", "Ports")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))

	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %-8s  %s\n",
			meta.ID,
			meta.Timestamp.Local().Format("2006-01-02 15:04:05"),
			meta.Mode,
			formatPortSummary(meta),
		)
	}

	fmt.Fprintln(out, "\nUse 'portscout compare <ip>' to compare the latest two scans.")
	fmt.Fprintln(out, "Use 'portscout compare --with-scan-id <id> <ip>' to compare with a specific scan.")
	return nil
}

// formatPortSummary renders the state counts of a stored scan.
func formatPortSummary(meta database.ScanReportMetadata) string {
	s := fmt.Sprintf("open:%d closed:%d filtered:%d",
		meta.Summary.Open, meta.Summary.Closed, meta.Summary.Filtered)
	if meta.Cancelled {
		s += " (interrupted)"
	}
	return s
}

// runComparison compares the latest scan of target with an earlier one.
func runComparison(ctx context.Context, out io.Writer, db *database.HistoryDB, target string, opts *compareOptions) error {
	reports, err := db.GetLatestScanReports(ctx, target, 0)
	if err != nil {
		if errors.Is(err, database.ErrNoHistory) {
			return fmt.Errorf("no scan history found for %s", target)
		}
		return err
	}

	if len(reports) < 2 && opts.withScanID == 0 {
		return fmt.Errorf("at least 2 scans are required for comparison (found %d)", len(reports))
	}

	// Reports are newest first; the latest is always the current one.
	current := reports[0]
	previous, err := selectPrevious(ctx, db, reports, target, opts)
	if err != nil {
		return err
	}

	comparison := report.NewComparison(previous, current)
	switch {
	case opts.json:
		return report.WriteComparisonJSON(out, comparison)
	case opts.markdown:
		return report.WriteComparisonMarkdown(out, comparison)
	default:
		return report.WriteComparisonText(out, comparison)
	}
}

// selectPrevious picks the baseline scan: the one named by --with-scan-id,
// the oldest one on or after --since, or the second newest.
func selectPrevious(ctx context.Context, db *database.HistoryDB, reports []*model.ScanReport, target string, opts *compareOptions) (*model.ScanReport, error) {
	current := reports[0]

	switch {
	case opts.withScanID > 0:
		previous, err := db.GetScanReportByID(ctx, opts.withScanID)
		if err != nil {
			return nil, fmt.Errorf("failed to get scan with ID %d: %w", opts.withScanID, err)
		}
		if previous.Target != target {
			return nil, fmt.Errorf("scan ID %d belongs to %s, not %s", opts.withScanID, previous.Target, target)
		}
		if previous.ID == current.ID {
			return nil, fmt.Errorf("scan ID %d is the latest scan; choose an earlier one", opts.withScanID)
		}
		return previous, nil

	case opts.since != "":
		date, err := time.ParseInLocation("2006-01-02", opts.since, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		for i := len(reports) - 1; i >= 0; i-- {
			if !reports[i].StartedAt.Before(date) {
				if reports[i] == current {
					return nil, fmt.Errorf("only one scan found since %s; at least 2 scans are required for comparison", opts.since)
				}
				return reports[i], nil
			}
		}
		return nil, fmt.Errorf("no scans found since %s", opts.since)

	case opts.withScanID < 0:
		return nil, fmt.Errorf("invalid scan ID %d", opts.withScanID)

	default:
		return reports[1], nil
	}
}
