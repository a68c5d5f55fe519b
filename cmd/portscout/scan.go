package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/net/proxy"

	"github.com/nao1215/portscout/internal/config"
	"github.com/nao1215/portscout/internal/database"
	"github.com/nao1215/portscout/internal/detector"
	"github.com/nao1215/portscout/internal/log"
	"github.com/nao1215/portscout/internal/model"
	"github.com/nao1215/portscout/internal/netutil"
	"github.com/nao1215/portscout/internal/pipeline"
	"github.com/nao1215/portscout/internal/portscan"
	"github.com/nao1215/portscout/internal/protocol"
	"github.com/nao1215/portscout/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [ip]",
		Short: "Scan the TCP ports of a host",
		Long: `Scan classifies each port of the target as Open, Closed or Filtered and
fingerprints the services answering on open ports.

Settings come from the configuration file (see "portscout init") and are
overridden by flags. The target may be given as the argument or as
target.ip in the configuration file.

Examples:
  # Scan the default port list with a SYN scan (needs root)
  sudo portscout scan 192.168.0.10

  # CONNECT scan of selected ports, open ports only
  portscout scan 192.168.0.10 --mode CONNECT -p 22,80,443,8000-8100 --console open_only

  # Slow, shuffled scan with 100-300ms between ports
  portscout scan 10.0.0.5 --randomize --jitter-min 100ms --jitter-max 300ms

  # Write a Markdown report and keep the scan in the history database
  portscout scan 10.0.0.5 --markdown -o report.md --db

  # Use a configuration file
  portscout scan -c lab.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScanCmd,
	}

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: ./portscout.yaml or XDG config dir)")

	// Scan behavior flags
	cmd.Flags().StringP("ports", "p", config.DefaultPorts,
		"Ports to scan, e.g. 20-25,53,80")
	cmd.Flags().String("mode", string(config.ModeSYN),
		"Scan mode: SYN or CONNECT")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each connection attempt or SYN probe")
	cmd.Flags().Duration("jitter-min", 0,
		"Minimum random delay between ports")
	cmd.Flags().Duration("jitter-max", 0,
		"Maximum random delay between ports")
	cmd.Flags().BoolP("randomize", "r", false,
		"Scan ports in random order")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of ports scanned concurrently (1 = sequential)")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy (host:port) for CONNECT scans and service detection")

	// Service detection flags
	cmd.Flags().Bool("no-service-detection", false,
		"Do not fingerprint open ports")
	cmd.Flags().Duration("service-timeout", config.DefaultServiceTimeout,
		"Timeout for each step of service detection")
	cmd.Flags().Bool("no-protocol-handlers", false,
		"Identify services from banners only")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent sent by the HTTP handler")

	// Console flags
	cmd.Flags().String("console", string(config.OutputAll),
		"Port lines to print: all, open_only or none")
	cmd.Flags().Bool("no-color", false,
		"Disable colored output")
	cmd.Flags().String("log-format", config.LogFormatText,
		"Log format: text or json")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// History flags
	cmd.Flags().Bool("db", false,
		"Save the report in the scan history database")
	cmd.Flags().String("db-dir", "",
		"Scan history directory (implies --db, default: "+config.XDGDataDir()+")")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	// Warnings raised while reading the config file go to a plain stderr
	// logger; the configured logger does not exist yet.
	bootstrap := log.NewSecureLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))

	cfg, err := buildConfig(cmd, args, bootstrap)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScan(ctx, cfg, scanIO{
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		color:  !noColor,
	}, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig layers defaults, the configuration file, and flags, in that
// order. Only flags the user actually set override file values.
func buildConfig(cmd *cobra.Command, args []string, logger *slog.Logger) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit --config must exist; otherwise the lookup is best effort.
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		file.Apply(cfg, logger)
		logger.Debug("configuration file loaded", "path", path)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if len(args) == 1 {
		cfg.TargetIP = args[0]
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every changed flag onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := flags.Changed

	var err error
	if changed("ports") {
		if cfg.Ports, err = flags.GetString("ports"); err != nil {
			return err
		}
	}
	if changed("mode") {
		name, err := flags.GetString("mode")
		if err != nil {
			return err
		}
		if cfg.Mode, err = config.ParseScanMode(name); err != nil {
			return err
		}
	}
	if changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if changed("jitter-min") {
		if cfg.JitterMin, err = flags.GetDuration("jitter-min"); err != nil {
			return err
		}
	}
	if changed("jitter-max") {
		if cfg.JitterMax, err = flags.GetDuration("jitter-max"); err != nil {
			return err
		}
	}
	if changed("randomize") {
		if cfg.RandomizeOrder, err = flags.GetBool("randomize"); err != nil {
			return err
		}
	}
	if changed("workers") {
		if cfg.Workers, err = flags.GetInt("workers"); err != nil {
			return err
		}
	}
	if changed("proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return err
		}
	}
	if changed("no-service-detection") {
		off, err := flags.GetBool("no-service-detection")
		if err != nil {
			return err
		}
		cfg.ServiceDetection = !off
	}
	if changed("service-timeout") {
		if cfg.ServiceTimeout, err = flags.GetDuration("service-timeout"); err != nil {
			return err
		}
	}
	if changed("no-protocol-handlers") {
		off, err := flags.GetBool("no-protocol-handlers")
		if err != nil {
			return err
		}
		cfg.ProtocolHandlers = !off
	}
	if changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return err
		}
	}
	if changed("console") {
		name, err := flags.GetString("console")
		if err != nil {
			return err
		}
		if cfg.ConsoleOutput, err = config.ParseConsoleOutput(name); err != nil {
			return err
		}
	}
	if changed("log-format") {
		if cfg.LogFormat, err = flags.GetString("log-format"); err != nil {
			return err
		}
	}
	if cmd.Root().PersistentFlags().Changed("verbose") || changed("verbose") {
		cfg.Verbose = getVerboseFlag(cmd)
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}

	if cfg.SaveToDB, err = flags.GetBool("db"); err != nil {
		return err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return err
	}
	if cfg.DBDir != "" {
		cfg.SaveToDB = true
	} else {
		cfg.DBDir = config.XDGDataDir()
	}
	return nil
}

// scanIO holds the destinations of a scan run.
type scanIO struct {
	out    io.Writer
	errOut io.Writer

	// color allows ANSI colors; they are only used on a terminal.
	color bool
}

// runScan executes one scan with a validated configuration.
func runScan(ctx context.Context, cfg *config.Config, sio scanIO, logger *slog.Logger) error {
	target, err := model.NewScanTarget(cfg.TargetIP, cfg.Ports, logger)
	if err != nil {
		return err
	}

	dialer, err := newDialer(ctx, cfg)
	if err != nil {
		return err
	}

	scanner, err := portscan.Select(cfg.Mode,
		portscan.WithTimeout(cfg.Timeout),
		portscan.WithDialer(dialer),
		portscan.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if cfg.ProxyAddress != "" && scanner.Mode() == config.ModeSYN {
		logger.Warn("SYN probes are sent directly; the proxy is only used for service detection",
			"proxy", cfg.ProxyAddress)
	}

	orchOpts := []pipeline.OrchestratorOption{
		pipeline.WithJitter(cfg.JitterMin, cfg.JitterMax),
		pipeline.WithRandomOrder(cfg.RandomizeOrder),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithOrchestratorLogger(logger),
	}
	if cfg.ServiceDetection {
		det, err := newDetector(cfg, logger)
		if err != nil {
			return err
		}
		orchOpts = append(orchOpts, pipeline.WithServiceDetection(det, cfg.ServiceTimeout))
	}
	orch := pipeline.NewOrchestrator(scanner, orchOpts...)

	// Open the history database before scanning so a bad --db-dir fails
	// fast instead of after a long scan.
	var db *database.HistoryDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close() //nolint:errcheck
	}

	// A report printed to stdout must stay machine-readable, so the live
	// table moves to stderr.
	tableOut := sio.out
	if (cfg.JSONReport || cfg.MarkdownReport) && cfg.ReportFile == "" {
		tableOut = sio.errOut
	}
	console := report.NewConsoleWriter(tableOut,
		report.WithFilter(cfg.ConsoleOutput),
		report.WithColor(sio.color && isTerminal(tableOut)),
	)

	header := model.NewScanReport(target.IP, string(scanner.Mode()), cfg.ServiceDetection)
	if err := console.WriteHeader(header); err != nil {
		return err
	}

	result := orch.Run(ctx, target, func(r model.PortResult) {
		if err := console.WriteResult(r); err != nil {
			logger.Error("failed to print result", "port", r.Port, "error", err)
		}
	})

	if err := console.WriteSummary(result); err != nil {
		return err
	}

	if err := outputReport(cfg, result, sio.out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if db != nil {
		// Partial scans are stored too; they are marked as cancelled.
		id, err := db.SaveScanReport(context.WithoutCancel(ctx), result)
		if err != nil {
			return fmt.Errorf("failed to save scan report: %w", err)
		}
		fmt.Fprintf(tableOut, "[*] Saved as scan #%d in %s\n", id, db.Path())
	}

	if result.Cancelled {
		return errInterrupted
	}
	return nil
}

// newDialer returns the dialer used for TCP connections. With a proxy
// configured, the proxy is checked first so a dead proxy does not turn
// every port into Filtered.
func newDialer(ctx context.Context, cfg *config.Config) (proxy.ContextDialer, error) {
	if cfg.ProxyAddress != "" {
		if status := netutil.CheckProxy(ctx, cfg.ProxyAddress, cfg.Timeout); status != netutil.ProxyStatusOK {
			return nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Err())
		}
	}
	return netutil.NewDialer(cfg.ProxyAddress, cfg.Timeout)
}

// newDetector builds the service detector for cfg.
func newDetector(cfg *config.Config, logger *slog.Logger) (*detector.Detector, error) {
	dialer, err := netutil.NewDialer(cfg.ProxyAddress, cfg.ServiceTimeout)
	if err != nil {
		return nil, err
	}

	registry := protocol.NewRegistry(nil)
	if cfg.ProtocolHandlers {
		registry = protocol.DefaultRegistry()
	}
	logger.Debug("protocol handlers registered", "ports", registry.Ports())

	return detector.New(
		detector.WithDialer(dialer),
		detector.WithRegistry(registry),
		detector.WithUserAgent(cfg.UserAgent),
		detector.WithLogger(logger),
	), nil
}

// outputReport writes the JSON or Markdown report, if one was requested,
// to the report file or to stdout.
func outputReport(cfg *config.Config, scanReport *model.ScanReport, stdout io.Writer) error {
	if !cfg.JSONReport && !cfg.MarkdownReport {
		return nil
	}

	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports reveal the exposure of the target; keep them private (0600).
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		output = f
	}

	var w report.Writer
	if cfg.JSONReport {
		w = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	} else {
		w = report.NewMarkdownWriter(output)
	}
	_, err := w.Write(scanReport)
	return err
}

// isTerminal reports whether w is a terminal that accepts colors.
func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
