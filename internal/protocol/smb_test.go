package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
)

func TestNegotiateRequest(t *testing.T) {
	t.Parallel()

	req := NegotiateRequest()

	if len(req) != 4+133 {
		t.Fatalf("request length = %d, want %d", len(req), 4+133)
	}
	if !bytes.Equal(req[:4], []byte{0x00, 0x00, 0x00, 0x85}) {
		t.Errorf("NetBIOS header = % x", req[:4])
	}
	if !bytes.Equal(req[4:9], []byte{0xff, 'S', 'M', 'B', 0x72}) {
		t.Errorf("SMB header = % x", req[4:9])
	}
	if req[4+13] != 0x18 || req[4+14] != 0x01 || req[4+15] != 0x28 {
		t.Errorf("flags = % x", req[4+13:4+16])
	}
	if req[4+32] != 0 {
		t.Errorf("word count = %d, want 0", req[4+32])
	}
	if bc := binary.LittleEndian.Uint16(req[4+33:]); bc != 98 {
		t.Errorf("byte count = %d, want 98", bc)
	}
	if !bytes.HasSuffix(req, []byte("\x02NT LM 0.12\x00")) {
		t.Errorf("last dialect missing: % x", req[len(req)-12:])
	}
}

// smbResponse wraps an SMB payload in a NetBIOS session header.
func smbResponse(body []byte) []byte {
	msg := append([]byte{0xff, 'S', 'M', 'B', 0x72, 0, 0, 0, 0}, make([]byte, 27)...)
	msg = append(msg, body...)
	return append([]byte{0x00, 0x00, byte(len(msg) >> 8), byte(len(msg))}, msg...)
}

func utf16le(s string) []byte {
	out := make([]byte, 0, 2*len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i], 0x00)
	}
	return out
}

func TestSMBParse(t *testing.T) {
	t.Parallel()

	samba := smbResponse(append([]byte("\x11\x05\x00\x00Unix\x00Samba 3.0.20-Debian\x00\x00"), utf16le("WORKGROUP")...))

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "ascii and utf-16 strings",
			data: samba,
			want: "SMB (Unix, Samba 3.0.20-Debian, WORKGROUP)",
		},
		{
			name: "only protocol strings",
			data: smbResponse([]byte("\x00LANMAN2.1\x00")),
			want: "SMB Detected (SMBr LANMAN2.1...)",
		},
		{
			name: "no readable strings",
			data: []byte{0x00, 0x00, 0x00, 0x04, 0xff, 0x01, 0x02, 0x03},
			want: "SMB (Unknown Version)",
		},
		{
			name: "no bytes",
			data: nil,
			want: "SMB (No Response)",
		},
	}

	h := NewSMB(testConfig(445))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := h.Parse(BytesResult(tt.data)); got != tt.want {
				t.Errorf("Parse() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUTF16Runs(t *testing.T) {
	t.Parallel()

	data := append([]byte{0x01}, utf16le("DESKTOP-01")...)
	data = append(data, 0x00, 0x00)
	data = append(data, utf16le("ab")...)

	runs := utf16Runs(data, 4)
	if len(runs) != 1 || runs[0] != "DESKTOP-01" {
		t.Errorf("utf16Runs() = %q", runs)
	}
}

func TestSMBHandle(t *testing.T) {
	t.Parallel()

	t.Run("reads framed response", func(t *testing.T) {
		t.Parallel()

		received := make(chan []byte, 1)
		conn := serve(t, func(c net.Conn) {
			received <- readN(c, len(NegotiateRequest()))
			_, _ = c.Write(smbResponse([]byte("\x00\x00Unix\x00Samba 4.15.13-Ubuntu\x00"))) //nolint:errcheck
		})

		h := NewSMB(testConfig(445))
		got := h.Parse(h.Handle(context.Background(), conn))
		if got != "SMB (Unix, Samba 4.15.13-Ubuntu)" {
			t.Errorf("Parse() = %q", got)
		}
		if req := <-received; !bytes.Equal(req, NegotiateRequest()) {
			t.Error("server did not receive the negotiate request")
		}
	})

	t.Run("caps oversized responses", func(t *testing.T) {
		t.Parallel()

		conn := serve(t, func(c net.Conn) {
			_ = readN(c, len(NegotiateRequest()))
			body := bytes.Repeat([]byte("A"), 4000)
			_, _ = c.Write(append([]byte{0x00, 0x00, 0x0f, 0xa0}, body...)) //nolint:errcheck
		})

		raw := NewSMB(testConfig(445)).Handle(context.Background(), conn)
		if len(raw.Data) != smbMaxResponse {
			t.Errorf("read %d bytes, want %d", len(raw.Data), smbMaxResponse)
		}
	})
}
