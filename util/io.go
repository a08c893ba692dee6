package util

import (
	"net"
	"strings"
	"time"
)

// ReadLimit caps a single read from a peer.  Anything beyond it stays in
// the kernel buffer and is picked up (or not) by the next read.
const ReadLimit = 1024

// ReadOnce performs exactly one bounded read from conn.  A positive
// timeout becomes a read deadline for this call only.  The returned
// slice is a copy and remains valid after the pooled buffer is reused.
func ReadOnce(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	buf := GetBuf()
	defer PutBuf(buf)

	n, err := conn.Read((*buf)[:ReadLimit])
	if n == 0 {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, (*buf)[:n])
	return out, err
}

// WriteAll writes p to conn under a per-call write deadline.
func WriteAll(conn net.Conn, p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
	}
	return conn.Write(p)
}

// Decode turns raw peer bytes into text.  Invalid UTF-8 sequences are
// replaced with U+FFFD; decoding never fails.
func Decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
