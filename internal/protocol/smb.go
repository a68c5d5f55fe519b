package protocol

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"

	"github.com/nao1215/portscout/internal/banner"
)

const (
	smbMaxResponse      = 1024
	smbDetectedLen      = 40
	smbCommandNegotiate = 0x72
)

// smbDialects are offered in the negotiate request, oldest first.
var smbDialects = []string{
	"PC NETWORK PROGRAM 1.0",
	"LANMAN1.0",
	"Windows for Workgroups 3.1a",
	"LM1.2X002",
	"LANMAN2.1",
	"NT LM 0.12",
}

// smbNoise marks strings that echo the protocol rather than describe the host.
var smbNoise = []string{"SMB", "LANMAN", "LM"}

// SMB sends an SMBv1 Negotiate Protocol request and reports the readable
// strings of the reply. Samba appends its version there in plain ASCII;
// Windows reports the domain and host names in UTF-16LE.
type SMB struct {
	cfg Config
}

// NewSMB creates an SMB handler.
func NewSMB(cfg Config) *SMB {
	return &SMB{cfg: cfg.withDefaults()}
}

// Name returns "smb".
func (s *SMB) Name() string {
	return "smb"
}

// NegotiateRequest returns an SMBv1 Negotiate Protocol request offering
// every dialect in smbDialects, wrapped in a NetBIOS session message.
func NegotiateRequest() []byte {
	var dialects []byte
	for _, d := range smbDialects {
		dialects = append(dialects, 0x02)
		dialects = append(dialects, d...)
		dialects = append(dialects, 0x00)
	}

	smb := make([]byte, 0, 35+len(dialects))
	smb = append(smb, 0xff, 'S', 'M', 'B')
	smb = append(smb, smbCommandNegotiate)
	smb = append(smb, 0, 0, 0, 0)         // status
	smb = append(smb, 0x18)               // flags: canonicalized paths, case insensitive
	smb = append(smb, 0x01, 0x28)         // flags2 (little endian 0x2801)
	smb = append(smb, 0, 0)               // PID high
	smb = append(smb, make([]byte, 8)...) // signature
	smb = append(smb, 0, 0)               // reserved
	smb = append(smb, 0, 0)               // TID
	smb = append(smb, 0x2f, 0x4b)         // PID
	smb = append(smb, 0, 0)               // UID
	smb = append(smb, 0, 0)               // MID
	smb = append(smb, 0)                  // word count

	smb = binary.LittleEndian.AppendUint16(smb, uint16(len(dialects))) //nolint:gosec // fixed dialect list
	smb = append(smb, dialects...)

	// NetBIOS session message: type 0, 24-bit big-endian length.
	frame := []byte{0x00, byte(len(smb) >> 16), byte(len(smb) >> 8), byte(len(smb))}
	return append(frame, smb...)
}

// Handle sends the negotiate request and reads the NetBIOS header and as
// much of the message as fits in 1024 bytes.
func (s *SMB) Handle(ctx context.Context, conn net.Conn) RawResult {
	stop := bindContext(ctx, conn)
	defer stop()

	if err := writeAll(conn, NegotiateRequest(), s.cfg.Timeout); err != nil {
		return BytesResult(nil)
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout)) //nolint:errcheck
	header := make([]byte, 4)
	n, err := io.ReadFull(conn, header)
	if err != nil {
		return BytesResult(header[:n])
	}

	length := int(header[1])<<16 | int(header[2])<<8 | int(header[3])
	body := make([]byte, min(length, smbMaxResponse-len(header)))
	m, _ := io.ReadFull(conn, body) //nolint:errcheck
	return BytesResult(append(header, body[:m]...))
}

// Parse reports the readable strings of the negotiate response.
func (s *SMB) Parse(raw RawResult) string {
	if raw.Kind == KindError {
		return raw.Err
	}
	if len(raw.Data) == 0 {
		return "SMB (No Response)"
	}

	found := smbStrings(raw.Data)
	if len(found) == 0 {
		return "SMB (Unknown Version)"
	}

	var meaningful []string
	for _, str := range found {
		if !isSMBNoise(str) {
			meaningful = append(meaningful, str)
		}
	}
	if len(meaningful) > 0 {
		return "SMB (" + strings.Join(meaningful, ", ") + ")"
	}
	return "SMB Detected (" + banner.Preview(strings.Join(found, " "), smbDetectedLen) + ")"
}

// smbStrings returns the printable ASCII runs followed by the UTF-16LE runs,
// each at least banner.MinRunLength characters long, without duplicates.
func smbStrings(data []byte) []string {
	found := banner.PrintableRuns(data, banner.MinRunLength)
	for _, str := range utf16Runs(data, banner.MinRunLength) {
		if !slices.Contains(found, str) {
			found = append(found, str)
		}
	}
	return found
}

// utf16Runs finds runs of little-endian UTF-16 code units whose high byte is
// zero and low byte is printable ASCII.
func utf16Runs(data []byte, minChars int) []string {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

	var runs []string
	for i := 0; i+1 < len(data); {
		j := i
		for j+1 < len(data) && data[j] >= 0x20 && data[j] <= 0x7e && data[j+1] == 0 {
			j += 2
		}
		if (j-i)/2 < minChars {
			i++
			continue
		}
		if decoded, err := decoder.Bytes(data[i:j]); err == nil {
			runs = append(runs, string(decoded))
		}
		i = j
	}
	return runs
}

func isSMBNoise(s string) bool {
	for _, n := range smbNoise {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
