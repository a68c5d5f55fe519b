package protocol

import (
	"bytes"
	"context"
	"net"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/portscout/internal/banner"
)

// Telnet command bytes (RFC 854).
const (
	telnetSE   = 0xf0
	telnetSB   = 0xfa
	telnetWILL = 0xfb
	telnetWONT = 0xfc
	telnetDO   = 0xfd
	telnetDONT = 0xfe
	telnetIAC  = 0xff
)

const (
	telnetMaxReads    = 5
	telnetReadTimeout = time.Second
	telnetSettleDelay = 500 * time.Millisecond
)

// stopMarkers end the read loop early: the server has reached a prompt or
// already named itself.
var stopMarkers = [][]byte{
	[]byte("login:"),
	[]byte("Ubuntu"),
	[]byte("Metasploitable"),
}

// osKeywords mark banner lines worth reporting.
var osKeywords = []string{
	"Ubuntu",
	"Debian",
	"Linux",
	"CentOS",
	"FreeBSD",
	"Metasploitable",
}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+`)

// Telnet negotiates just enough of the Telnet protocol to make the server
// print its login banner. Every option the server asks for is refused.
type Telnet struct {
	cfg         Config
	maxReads    int
	readTimeout time.Duration
	settleDelay time.Duration
}

// NewTelnet creates a Telnet handler.
func NewTelnet(cfg Config) *Telnet {
	return &Telnet{
		cfg:         cfg.withDefaults(),
		maxReads:    telnetMaxReads,
		readTimeout: telnetReadTimeout,
		settleDelay: telnetSettleDelay,
	}
}

// Name returns "telnet".
func (t *Telnet) Name() string {
	return "telnet"
}

// Handle reads up to five chunks. Chunks that carry option negotiation are
// answered with refusals and not kept; a read timeout nudges the server with
// an empty line.
func (t *Telnet) Handle(ctx context.Context, conn net.Conn) RawResult {
	stop := bindContext(ctx, conn)
	defer stop()

	var collected []byte
	buf := make([]byte, recvSize)

	for range t.maxReads {
		if ctx.Err() != nil {
			break
		}

		_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout)) //nolint:errcheck
		n, err := conn.Read(buf)
		if n == 0 {
			if err != nil && isTimeout(err) && ctx.Err() == nil {
				if werr := writeAll(conn, []byte("\r\n"), t.cfg.Timeout); werr != nil {
					break
				}
				continue
			}
			break
		}

		chunk := buf[:n]
		if hasStopMarker(chunk) {
			collected = append(collected, chunk...)
			break
		}

		if bytes.IndexByte(chunk, telnetIAC) >= 0 {
			if reply := refuseOptions(chunk); len(reply) > 0 {
				if werr := writeAll(conn, reply, t.cfg.Timeout); werr != nil {
					break
				}
				if sleepContext(ctx, t.settleDelay) != nil {
					break
				}
				continue
			}
		}

		collected = append(collected, chunk...)
		if err != nil && !isTimeout(err) {
			break
		}
	}

	return BytesResult(collected)
}

// Parse strips negotiation bytes and extracts prompt, OS and version lines.
func (t *Telnet) Parse(raw RawResult) string {
	if raw.Kind == KindError {
		return raw.Err
	}
	if len(raw.Data) == 0 {
		return "Telnet (No Response)"
	}

	text := banner.DropInvalid(stripIAC(raw.Data))
	lines := strings.Split(text, "\n")

	var info []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || isASCIIArt(line) {
			continue
		}
		if strings.Contains(line, "login:") || hasOSKeyword(line) || versionPattern.MatchString(line) {
			if !slices.Contains(info, line) {
				info = append(info, line)
			}
		}
	}
	if len(info) > 0 {
		return "Telnet (" + strings.Join(info, " | ") + ")"
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if len(line) > 2 && !strings.HasPrefix(line, "_") {
			return "Telnet (" + line + ")"
		}
	}
	return "Telnet (Unknown Banner)"
}

func hasStopMarker(chunk []byte) bool {
	for _, m := range stopMarkers {
		if bytes.Contains(chunk, m) {
			return true
		}
	}
	return false
}

func hasOSKeyword(line string) bool {
	for _, k := range osKeywords {
		if strings.Contains(line, k) {
			return true
		}
	}
	return false
}

// refuseOptions answers every IAC DO with IAC WONT and every IAC WILL with
// IAC DONT. Other commands get no reply.
func refuseOptions(chunk []byte) []byte {
	var reply []byte
	for i := 0; i < len(chunk); {
		if chunk[i] != telnetIAC {
			i++
			continue
		}
		if i+2 >= len(chunk) {
			i++
			continue
		}
		switch cmd, opt := chunk[i+1], chunk[i+2]; cmd {
		case telnetDO:
			reply = append(reply, telnetIAC, telnetWONT, opt)
		case telnetWILL:
			reply = append(reply, telnetIAC, telnetDONT, opt)
		}
		i += 3
	}
	return reply
}

// stripIAC removes Telnet command sequences from data: subnegotiation blocks
// (IAC SB ... IAC SE), three-byte option commands (IAC WILL/WONT/DO/DONT opt)
// and two-byte commands. No 0xff byte survives.
func stripIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if data[i] != telnetIAC {
			out = append(out, data[i])
			i++
			continue
		}
		if i+1 >= len(data) {
			break
		}

		switch cmd := data[i+1]; {
		case cmd == telnetSB:
			end := bytes.Index(data[i+2:], []byte{telnetIAC, telnetSE})
			if end < 0 {
				i += 2
				continue
			}
			i += 2 + end + 2
		case cmd >= telnetWILL && cmd <= telnetDONT:
			i = min(i+3, len(data))
		case cmd >= telnetSE:
			i += 2
		default:
			i++
		}
	}
	return out
}

// isASCIIArt reports whether drawing characters outnumber alphanumerics.
func isASCIIArt(line string) bool {
	var art, alnum int
	for _, r := range line {
		switch {
		case r == '_' || r == '|' || r == '\\' || r == '/':
			art++
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			alnum++
		}
	}
	return art > alnum
}
