package validate

import (
	"net/netip"
	"regexp"
	"strings"
)

// MinPort and MaxPort bound the valid TCP port range.
const (
	MinPort = 0
	MaxPort = 65535
)

// domainPattern matches dot-separated labels ending in an alphabetic TLD.
var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9-]{1,63}\.)+[a-zA-Z]{2,}$`)

// IsValidIP reports whether s is a literal IPv4 or IPv6 address.
// Zones ("fe80::1%eth0") are accepted because netip parses them.
func IsValidIP(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

// IsValidPort reports whether port lies in [0, 65535].
func IsValidPort(port int) bool {
	return port >= MinPort && port <= MaxPort
}

// IsValidDomain reports whether s looks like a fully qualified domain name.
func IsValidDomain(s string) bool {
	if len(s) > 253 {
		return false
	}
	return domainPattern.MatchString(s)
}
