package model

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/portscout/internal/validate"
)

// ScanTarget is one host and the set of TCP ports to probe on it.
type ScanTarget struct {
	// IP is a validated IPv4 or IPv6 literal.
	IP string `json:"ip"`

	// Ports holds unique ports in ascending order.
	Ports []int `json:"ports"`
}

// NewScanTarget validates ip, parses the port specification and returns the
// target. An invalid IP is an error. Invalid ports or ranges are skipped and
// reported on logger as warnings; an empty resulting port set is an error.
func NewScanTarget(ip, portSpec string, logger *slog.Logger) (*ScanTarget, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ip = strings.TrimSpace(ip)
	if !validate.IsValidIP(ip) {
		return nil, fmt.Errorf("invalid target IP address %q", ip)
	}

	ports, skipped := ParsePorts(portSpec)
	for _, token := range skipped {
		logger.Warn("skipping invalid port specification", "token", token)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no valid ports in specification %q", portSpec)
	}

	return &ScanTarget{IP: ip, Ports: ports}, nil
}

// ParsePorts parses a comma separated list of ports and "start-end" ranges.
// It returns the unique valid ports in ascending order and the tokens that
// were rejected. Empty tokens are ignored.
//
//	ParsePorts("20-22,80")  // [20 21 22 80], nil
//	ParsePorts("70000,22")  // [22], ["70000"]
func ParsePorts(spec string) ([]int, []string) {
	seen := make(map[int]struct{})
	var skipped []string

	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if start, end, ok := strings.Cut(token, "-"); ok {
			lo, errLo := strconv.Atoi(strings.TrimSpace(start))
			hi, errHi := strconv.Atoi(strings.TrimSpace(end))
			if errLo != nil || errHi != nil || lo > hi ||
				!validate.IsValidPort(lo) || !validate.IsValidPort(hi) {
				skipped = append(skipped, token)
				continue
			}
			for p := lo; p <= hi; p++ {
				seen[p] = struct{}{}
			}
			continue
		}

		p, err := strconv.Atoi(token)
		if err != nil || !validate.IsValidPort(p) {
			skipped = append(skipped, token)
			continue
		}
		seen[p] = struct{}{}
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	slices.Sort(ports)
	return ports, skipped
}
