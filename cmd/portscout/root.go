package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitInterrupted is the conventional exit status after SIGINT.
const exitInterrupted = 130

// errInterrupted is returned by the scan command when a signal stopped the
// scan early. The partial results have already been printed.
var errInterrupted = errors.New("scan interrupted")

// NewRootCmd creates the root command for portscout.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portscout",
		Short: "TCP port scanner with service fingerprinting",
		Long: `portscout scans the TCP ports of one host and identifies the services
listening on open ports.

Ports are classified with a half-open SYN scan (raw sockets, needs root or
CAP_NET_RAW) or a full CONNECT scan. Open ports are fingerprinted with
protocol-aware probes for SSH, Telnet, DNS, HTTP, SMB and TLS, and a banner
signature matcher for everything else.

Only scan hosts you are authorized to test.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	os.Exit(exitCode(NewRootCmd().Execute()))
}

// exitCode reports err on stderr and maps it to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return exitInterrupted
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}
