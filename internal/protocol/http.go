package protocol

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/portscout/internal/banner"
)

const (
	httpMaxResponse = 8192
	httpTitleLen    = 30
)

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// HTTP sends one GET request and summarizes the response head.
//
// Design decision: We write the request by hand rather than use net/http
// because:
//  1. Only the first 8 KiB of the raw response are needed
//  2. The connection is already open and owned by the caller
//  3. Malformed responses must still be summarized, not rejected
type HTTP struct {
	cfg Config
}

// NewHTTP creates an HTTP handler.
func NewHTTP(cfg Config) *HTTP {
	return &HTTP{cfg: cfg.withDefaults()}
}

// Name returns "http".
func (h *HTTP) Name() string {
	return "http"
}

// Request returns the request bytes sent to the server.
func (h *HTTP) Request() []byte {
	host := h.cfg.Host
	if host == "" {
		host = "localhost"
	}
	if h.cfg.Port != 0 && h.cfg.Port != 80 {
		host = net.JoinHostPort(host, fmt.Sprint(h.cfg.Port))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	return []byte("GET / HTTP/1.1\r\n" +
		"Host: " + host + "\r\n" +
		"User-Agent: " + h.cfg.UserAgent + "\r\n" +
		"Accept: */*\r\n" +
		"Connection: close\r\n" +
		"\r\n")
}

// Handle sends the request and reads until EOF, timeout or 8 KiB.
func (h *HTTP) Handle(ctx context.Context, conn net.Conn) RawResult {
	stop := bindContext(ctx, conn)
	defer stop()

	if err := writeAll(conn, h.Request(), h.cfg.Timeout); err != nil {
		return BytesResult(nil)
	}
	return BytesResult(readUntil(conn, httpMaxResponse, h.cfg.Timeout))
}

// Parse extracts the status code, the Server header and the page title.
func (h *HTTP) Parse(raw RawResult) string {
	if raw.Kind == KindError {
		return raw.Err
	}
	if len(raw.Data) == 0 {
		return "HTTP (No Response)"
	}

	text := banner.DropInvalid(raw.Data)
	lines := strings.Split(text, "\r\n")

	status := "Unknown"
	if fields := strings.Fields(lines[0]); len(fields) > 1 {
		status = fields[1]
	}

	server := "Unknown Server"
	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "server") {
			server = strings.TrimSpace(value)
			break
		}
	}

	title := "No Title"
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		if t := strings.Join(strings.Fields(html.UnescapeString(m[1])), " "); t != "" {
			title = banner.Head(t, httpTitleLen)
		}
	}

	return fmt.Sprintf("HTTP (%s | Status: %s | Title: %s)", server, status, title)
}
