package protocol

import (
	"context"
	"errors"
	"net"
	"time"
)

// recvSize matches the single-read buffer used by the passive handlers.
const recvSize = 4096

// bindContext makes blocking calls on conn return as soon as ctx is done by
// moving the deadline into the past. The returned function detaches the hook.
func bindContext(ctx context.Context, conn net.Conn) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck
	})
}

// readOnce performs a single read of at most limit bytes.
func readOnce(conn net.Conn, limit int, timeout time.Duration) []byte {
	_ = conn.SetReadDeadline(time.Now().Add(timeout)) //nolint:errcheck
	buf := make([]byte, limit)
	n, _ := conn.Read(buf) //nolint:errcheck
	return buf[:n]
}

// readUntil keeps reading until EOF, an error, the deadline, or limit bytes.
// Whatever arrived before the stop condition is returned.
func readUntil(conn net.Conn, limit int, timeout time.Duration) []byte {
	_ = conn.SetReadDeadline(time.Now().Add(timeout)) //nolint:errcheck
	out := make([]byte, 0, min(limit, recvSize))
	chunk := make([]byte, recvSize)
	for len(out) < limit {
		n, err := conn.Read(chunk[:min(len(chunk), limit-len(out))])
		out = append(out, chunk[:n]...)
		if err != nil {
			break
		}
	}
	return out
}

// writeAll sends data with a write deadline.
func writeAll(conn net.Conn, data []byte, timeout time.Duration) error {
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
