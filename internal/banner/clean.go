package banner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// MinRunLength is the shortest printable run kept when reducing binary
// data to text.
const MinRunLength = 4

// reprLimit is the number of leading bytes shown by Clean when a payload
// contains no printable run at all.
const reprLimit = 20

// Clean decodes data leniently:
//
//  1. valid UTF-8 is returned unchanged;
//  2. otherwise the printable ASCII runs of at least MinRunLength bytes are
//     joined with single spaces;
//  3. otherwise an escaped representation of the first 20 bytes is returned,
//     for example b'\x00\x01\xff'.
//
// Clean never fails and returns "" only for empty input.
func Clean(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if utf8.Valid(data) {
		return string(data)
	}
	if found := PrintableRuns(data, MinRunLength); len(found) > 0 {
		return strings.Join(found, " ")
	}
	return Repr(data[:min(len(data), reprLimit)])
}

// PrintableRuns returns every maximal run of printable ASCII bytes
// (0x20 through 0x7e) that is at least minLen bytes long.
func PrintableRuns(data []byte, minLen int) []string {
	var found []string
	start := -1
	for i, b := range data {
		if isPrintable(b) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			found = append(found, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		found = append(found, string(data[start:]))
	}
	return found
}

// Printable keeps only the printable ASCII bytes of data.
func Printable(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		if isPrintable(c) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DropInvalid decodes data as UTF-8 and silently discards ill-formed
// sequences instead of replacing them with U+FFFD.
func DropInvalid(data []byte) string {
	t := transform.Chain(
		runes.ReplaceIllFormed(),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })),
	)
	out, _, err := transform.Bytes(t, data)
	if err != nil {
		return Printable(data)
	}
	return string(out)
}

// Repr renders data as a quoted byte literal: printable ASCII stays as-is,
// tab, newline, carriage return, quote and backslash are escaped, and
// everything else becomes \xNN.
func Repr(data []byte) string {
	const hexDigits = "0123456789abcdef"

	var b strings.Builder
	b.WriteString("b'")
	for _, c := range data {
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if isPrintable(c) {
				b.WriteByte(c)
				continue
			}
			b.WriteString(`\x`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Preview returns the first n runes of s followed by "...". The marker is
// always added so fallback labels read the same whether or not s was cut.
func Preview(s string, n int) string {
	return Head(s, n) + "..."
}

// Head returns the first n runes of s.
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func isPrintable(c byte) bool {
	return c >= 0x20 && c <= 0x7e
}
