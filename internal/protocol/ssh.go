package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	// sshClientVersion is the identification string sent to servers.
	sshClientVersion = "SSH-2.0-portscout"

	// sshRecordLimit bounds how much of the inbound stream is kept for
	// KEXINIT parsing. The server's KEXINIT is the first binary packet.
	sshRecordLimit = 64 << 10

	sshMsgKexInit = 20
)

var (
	errAuthProbe        = errors.New("authentication probe only")
	errNoKexInit        = errors.New("no KEXINIT in server stream")
	errShortNameList    = errors.New("truncated name-list")
	errNoIdentification = errors.New("no SSH identification line")
)

// SSHInfo is what the SSH handler learns without authenticating.
type SSHInfo struct {
	// Banner is the server's identification line, e.g. "SSH-2.0-OpenSSH_9.6".
	Banner string

	// AuthMethods lists the authentication methods the server accepted
	// for probing, in the order they were offered.
	AuthMethods []string

	// Ciphers and KEX are the server's own algorithm lists as advertised in
	// its SSH_MSG_KEXINIT (client-to-server direction for ciphers).
	Ciphers []string
	KEX     []string
}

// SSH performs the transport handshake and probes which authentication
// methods the server offers. It never sends a credential.
//
// Design decision: Algorithm lists are read from the server's KEXINIT
// packet rather than from the local configuration because:
//  1. The local lists only describe what this scanner supports
//  2. Weak ciphers are only a finding when the server offers them
//  3. KEXINIT is sent in clear text before any key is agreed
type SSH struct {
	cfg Config
}

// NewSSH creates an SSH handler.
func NewSSH(cfg Config) *SSH {
	return &SSH{cfg: cfg.withDefaults()}
}

// Name returns "ssh".
func (s *SSH) Name() string {
	return "ssh"
}

// Handle runs the handshake on conn. After key exchange x/crypto tries the
// "none" method; each probe callback below is only invoked when the server
// lists that method, records it, and aborts without sending anything.
func (s *SSH) Handle(ctx context.Context, conn net.Conn) RawResult {
	stop := bindContext(ctx, conn)
	defer stop()
	_ = conn.SetDeadline(time.Now().Add(s.cfg.Timeout)) //nolint:errcheck

	rec := newRecordingConn(conn, sshRecordLimit)
	probe := &authProbe{}
	var kexDone atomic.Bool

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	client, chans, reqs, err := ssh.NewClientConn(rec, addr, s.clientConfig(probe, &kexDone))
	if err == nil {
		// The server let us in with "none".
		probe.record("none") //nolint:errcheck
		go ssh.DiscardRequests(reqs)
		go func() {
			for ch := range chans {
				_ = ch.Reject(ssh.Prohibited, "") //nolint:errcheck
			}
		}()
		_ = client.Close() //nolint:errcheck
	}
	if !kexDone.Load() {
		return ErrorResult("SSH Error (Handshake failed: " + handshakeDetail(err) + ")")
	}

	stream := rec.Bytes()
	info := &SSHInfo{AuthMethods: probe.methods()}
	info.Banner, _ = identification(stream) //nolint:errcheck
	if kex, err := parseKexInit(stream); err == nil {
		info.Ciphers = kex.ciphers
		info.KEX = kex.kex
	} else {
		s.cfg.Logger.Debug("ssh kexinit not parsed", "port", s.cfg.Port, "error", err)
	}
	return SSHResult(info)
}

// Parse formats the SSH record:
//
//	SSH (SSH-2.0-OpenSSH_7.4) | Auth: [publickey, password] [WEAK: 3des-cbc]
func (s *SSH) Parse(raw RawResult) string {
	switch raw.Kind {
	case KindError:
		return raw.Err
	case KindSSH:
		if raw.SSH != nil {
			return formatSSH(raw.SSH)
		}
	}
	return "SSH (Parse Error: no handshake record)"
}

func formatSSH(info *SSHInfo) string {
	name := info.Banner
	if name == "" {
		name = "Unknown"
	}

	var weak []string
	for _, c := range info.Ciphers {
		if strings.Contains(c, "arcfour") || strings.Contains(c, "3des") {
			weak = append(weak, c)
		}
	}

	out := fmt.Sprintf("SSH (%s) | Auth: [%s]", name, strings.Join(info.AuthMethods, ", "))
	if len(weak) > 0 {
		out += " [WEAK: " + strings.Join(weak, ",") + "]"
	}
	return out
}

func (s *SSH) clientConfig(probe *authProbe, kexDone *atomic.Bool) *ssh.ClientConfig {
	supported := ssh.SupportedAlgorithms()
	insecure := ssh.InsecureAlgorithms()

	return &ssh.ClientConfig{
		Config: ssh.Config{
			KeyExchanges: slices.Concat(supported.KeyExchanges, insecure.KeyExchanges),
			Ciphers:      slices.Concat(supported.Ciphers, insecure.Ciphers),
			MACs:         slices.Concat(supported.MACs, insecure.MACs),
		},
		User: "portscout",
		Auth: []ssh.AuthMethod{
			ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
				return nil, probe.record("publickey")
			}),
			ssh.PasswordCallback(func() (string, error) {
				return "", probe.record("password")
			}),
			ssh.KeyboardInteractive(func(_, _ string, _ []string, _ []bool) ([]string, error) {
				return nil, probe.record("keyboard-interactive")
			}),
			// Last, since a server mid GSS-API exchange drops the session
			// once the recorder refuses to continue.
			ssh.GSSAPIWithMICAuthMethod(gssapiRecorder{probe: probe}, s.cfg.Host),
		},
		// Host keys are never verified; reaching this callback means key
		// exchange completed.
		HostKeyCallback: func(string, net.Addr, ssh.PublicKey) error {
			kexDone.Store(true)
			return nil
		},
		HostKeyAlgorithms: slices.Concat(supported.HostKeys, insecure.HostKeys),
		BannerCallback:    func(string) error { return nil },
		ClientVersion:     sshClientVersion,
		Timeout:           s.cfg.Timeout,
	}
}

func handshakeDetail(err error) string {
	if err == nil {
		return "connection closed"
	}
	return strings.TrimPrefix(err.Error(), "ssh: handshake failed: ")
}

// authProbe collects the methods whose callbacks were invoked.
type authProbe struct {
	mu      sync.Mutex
	offered []string
}

func (p *authProbe) record(method string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.offered, method) {
		p.offered = append(p.offered, method)
	}
	return errAuthProbe
}

// gssapiRecorder stands in for a Kerberos client. x/crypto starts the
// exchange only after the server listed gssapi-with-mic and accepted the
// krb5 mechanism, so the first call records the method.
type gssapiRecorder struct {
	probe *authProbe
}

func (g gssapiRecorder) InitSecContext(string, []byte, bool) ([]byte, bool, error) {
	return nil, false, g.probe.record("gssapi-with-mic")
}

func (g gssapiRecorder) GetMIC([]byte) ([]byte, error) {
	return nil, errAuthProbe
}

func (g gssapiRecorder) DeleteSecContext() error {
	return nil
}

func (p *authProbe) methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.offered)
}

// recordingConn keeps a copy of the first limit bytes read from the
// underlying connection.
type recordingConn struct {
	net.Conn

	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func newRecordingConn(conn net.Conn, limit int) *recordingConn {
	return &recordingConn{Conn: conn, limit: limit}
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.mu.Lock()
		if room := c.limit - c.buf.Len(); room > 0 {
			c.buf.Write(p[:min(n, room)])
		}
		c.mu.Unlock()
	}
	return n, err
}

// Bytes returns a copy of the recorded stream.
func (c *recordingConn) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

// identification returns the server's "SSH-" line and the offset just past
// it. Servers may send other lines first (RFC 4253 section 4.2).
func identification(stream []byte) (string, int) {
	pos := 0
	for pos < len(stream) {
		end := bytes.IndexByte(stream[pos:], '\n')
		if end < 0 {
			return "", -1
		}
		line := stream[pos : pos+end]
		next := pos + end + 1
		if bytes.HasPrefix(line, []byte("SSH-")) {
			return string(bytes.TrimRight(line, "\r")), next
		}
		pos = next
	}
	return "", -1
}

type kexInit struct {
	kex      []string
	hostKeys []string
	ciphers  []string
}

// parseKexInit decodes the name-lists of the first binary packet after the
// identification line. Layout (RFC 4253 section 7.1): uint32 packet_length,
// byte padding_length, byte SSH_MSG_KEXINIT, byte[16] cookie, then
// name-lists for kex, host key, and ciphers in both directions.
func parseKexInit(stream []byte) (*kexInit, error) {
	_, pos := identification(stream)
	if pos < 0 {
		return nil, errNoIdentification
	}
	packet := stream[pos:]
	if len(packet) < 6 {
		return nil, errNoKexInit
	}
	payload := packet[5:]
	if payload[0] != sshMsgKexInit {
		return nil, errNoKexInit
	}
	payload = payload[1:]
	if len(payload) < 16 {
		return nil, errNoKexInit
	}
	payload = payload[16:]

	lists := make([][]string, 0, 3)
	for range 3 {
		list, rest, err := nameList(payload)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
		payload = rest
	}
	return &kexInit{kex: lists[0], hostKeys: lists[1], ciphers: lists[2]}, nil
}

func nameList(b []byte) ([]string, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errShortNameList
	}
	n := binary.BigEndian.Uint32(b)
	b = b[4:]
	if uint64(n) > uint64(len(b)) {
		return nil, nil, errShortNameList
	}
	if n == 0 {
		return nil, b, nil
	}
	return strings.Split(string(b[:n]), ","), b[n:], nil
}
