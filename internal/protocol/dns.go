package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/nao1215/portscout/internal/banner"
)

// versionQueryID is the transaction ID of the version.bind query.
const versionQueryID = 0x1234

const dnsHeaderLen = 12

var errDNSMalformed = errors.New("malformed")

// DNS asks a DNS server over TCP for its software version with the
// conventional CHAOS-class TXT query for "version.bind".
type DNS struct {
	cfg Config
}

// NewDNS creates a DNS handler.
func NewDNS(cfg Config) *DNS {
	return &DNS{cfg: cfg.withDefaults()}
}

// Name returns "dns".
func (d *DNS) Name() string {
	return "dns"
}

// VersionQuery returns the length-prefixed DNS-over-TCP message asking for
// version.bind (class CH, type TXT, recursion desired).
func VersionQuery() ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = versionQueryID
	msg.RecursionDesired = true
	msg.Question = []dns.Question{{
		Name:   "version.bind.",
		Qtype:  dns.TypeTXT,
		Qclass: dns.ClassCHAOS,
	}}

	packed, err := msg.Pack()
	if err != nil {
		return nil, err
	}
	framed := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(packed)), uint16(len(packed))) //nolint:gosec // a single question is far below 64 KiB
	return append(framed, packed...), nil
}

// Handle sends the query and reads one length-prefixed response. A response
// cut short by the peer is returned as far as it arrived.
func (d *DNS) Handle(ctx context.Context, conn net.Conn) RawResult {
	stop := bindContext(ctx, conn)
	defer stop()

	query, err := VersionQuery()
	if err != nil {
		return ErrorResult("DNS (Query Error: " + err.Error() + ")")
	}
	if err := writeAll(conn, query, d.cfg.Timeout); err != nil {
		return BytesResult(nil)
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.cfg.Timeout)) //nolint:errcheck
	var prefix [2]byte
	if _, err := io.ReadFull(conn, prefix[:]); err != nil {
		return BytesResult(nil)
	}

	body := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	n, _ := io.ReadFull(conn, body) //nolint:errcheck
	return BytesResult(body[:n])
}

// Parse walks the response by hand so that truncated or slightly malformed
// answers still yield whatever version text is present.
func (d *DNS) Parse(raw RawResult) string {
	if raw.Kind == KindError {
		return raw.Err
	}
	return parseVersionResponse(raw.Data)
}

func parseVersionResponse(data []byte) string {
	switch {
	case len(data) == 0:
		return "DNS (No Response)"
	case len(data) < dnsHeaderLen:
		return "DNS (Parse Error)"
	}

	answers := binary.BigEndian.Uint16(data[6:8])

	// Question: QNAME, QTYPE, QCLASS.
	pos, err := skipName(data, dnsHeaderLen)
	if err != nil {
		return "DNS (Malformed)"
	}
	pos += 4

	if answers == 0 || pos >= len(data) {
		return "DNS (No Answer)"
	}

	// Answer: NAME, TYPE, CLASS, TTL, RDLENGTH, RDATA.
	pos, err = skipName(data, pos)
	if err != nil {
		return "DNS (Malformed)"
	}
	pos += 8
	if pos+2 > len(data) {
		return "DNS (Malformed)"
	}
	rdLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2
	if pos+rdLen > len(data) {
		return "DNS (Malformed)"
	}

	version := banner.Printable(txtStrings(data[pos : pos+rdLen]))
	if version == "" {
		return "DNS Version: (Empty)"
	}
	return "DNS Version: " + version
}

// skipName returns the offset just past the domain name starting at pos.
// A compression pointer (top two bits set) occupies two bytes and ends the
// name.
func skipName(data []byte, pos int) (int, error) {
	for {
		if pos >= len(data) {
			return 0, errDNSMalformed
		}
		l := int(data[pos])
		switch {
		case l == 0:
			return pos + 1, nil
		case l&0xc0 == 0xc0:
			if pos+2 > len(data) {
				return 0, errDNSMalformed
			}
			return pos + 2, nil
		default:
			pos += 1 + l
		}
	}
}

// txtStrings concatenates the character-strings of TXT RDATA. A length byte
// that overruns the RDATA takes whatever is left.
func txtStrings(rdata []byte) []byte {
	var out []byte
	for i := 0; i < len(rdata); {
		l := int(rdata[i])
		i++
		end := min(i+l, len(rdata))
		out = append(out, rdata[i:end]...)
		i = end
	}
	return out
}
