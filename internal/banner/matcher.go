package banner

import (
	"regexp"
	"slices"
	"strings"
)

// Result strings and limits used when no signature matches.
const (
	// EmptyBanner is returned when the service sent nothing.
	EmptyBanner = "Open (Empty Banner)"

	// SMBFallback is returned for port 445 when the text mentions SMB or Samba.
	SMBFallback = "SMB (Windows/Samba)"

	mysqlPreviewLen   = 30
	unknownPreviewLen = 40
)

// Signature pairs a service name with the pattern that identifies it.
// When Pattern has a capture group, the first group becomes the detail
// shown in parentheses.
type Signature struct {
	Service string
	Pattern *regexp.Regexp
}

// defaultSignatures is evaluated in order; the first match wins.
// The SSH entry precedes MySQL because an SSH identification line such as
// "SSH-2.0-OpenSSH_8.9p1" also contains a version-like numeric token.
var defaultSignatures = []Signature{
	{Service: "SSH", Pattern: regexp.MustCompile(`(?i)(SSH-[\d.]+-[^\r\n]+)`)},
	{Service: "HTTP", Pattern: regexp.MustCompile(`(?i)Server:\s*([^\r\n]+)`)},
	{Service: "SMTP", Pattern: regexp.MustCompile(`(?i)220[\s-]+([-.\w\s]+?\s+ESMTP[^\r\n]*)`)},
	{Service: "FTP", Pattern: regexp.MustCompile(`(?i)220\s+([-.\w\s()]+)`)},
	{Service: "MySQL", Pattern: regexp.MustCompile(`(?i)(\d\.\d\.\d+[\w\-.+]*)`)},
	{Service: "POP3", Pattern: regexp.MustCompile(`(?i)\+OK\s+(.*)`)},
	// Reply to the PING the detector sends to 6379. "-NOAUTH" means the
	// server requires a password; "+PONG" means it does not.
	{Service: "Redis", Pattern: regexp.MustCompile(`^(\+PONG|-NOAUTH[^\r\n]*)`)},
}

// DefaultSignatures returns a copy of the built-in signature list.
func DefaultSignatures() []Signature {
	return slices.Clone(defaultSignatures)
}

// Matcher classifies decoded banners. A Matcher holds no mutable state and
// is safe for concurrent use.
type Matcher struct {
	signatures []Signature
}

// NewMatcher returns a Matcher using sigs in the given order.
// With no arguments the built-in signatures are used.
func NewMatcher(sigs ...Signature) *Matcher {
	if len(sigs) == 0 {
		sigs = defaultSignatures
	}
	return &Matcher{signatures: slices.Clone(sigs)}
}

var defaultMatcher = NewMatcher()

// Match classifies text with the built-in signatures.
func Match(text string, port int) string {
	return defaultMatcher.Match(text, port)
}

// Match classifies text received on port.
//
// Output forms:
//
//	"SMTP (mail.example.com ESMTP Postfix)"  signature with a capture group
//	"SMB (Windows/Samba)"                    port 445 mentioning SMB or Samba
//	"MySQL (<first 30 chars>...)"            port 3306, anything longer than 5 chars
//	"Unknown (<first 40 chars>...)"          no match
//	"Open (Empty Banner)"                    nothing but whitespace
func (m *Matcher) Match(text string, port int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return EmptyBanner
	}

	for _, sig := range m.signatures {
		match := sig.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if len(match) < 2 {
			return sig.Service
		}
		return sig.Service + " (" + trimDetail(match[1]) + ")"
	}

	switch {
	case port == 445 && (strings.Contains(text, "SMB") || strings.Contains(text, "Samba")):
		return SMBFallback
	case port == 3306 && len(text) > 5:
		return "MySQL (" + Preview(text, mysqlPreviewLen) + ")"
	}

	flat := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, "\r", ""), "\n", " "))
	return "Unknown (" + Preview(flat, unknownPreviewLen) + ")"
}

// Unknown formats an arbitrary failure detail the way unmatched banners are
// reported.
func Unknown(detail string) string {
	return "Unknown (" + detail + ")"
}

// trimDetail strips surrounding whitespace and one enclosing pair of
// parentheses, so "(vsFTPd 3.0.3)" becomes "vsFTPd 3.0.3" while
// "Apache/2.4.41 (Ubuntu)" is kept whole.
func trimDetail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
