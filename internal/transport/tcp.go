package transport

import (
	"context"
	"net"
	"time"
)

// TCPBinder opens plain TCP listeners.  The runtime already sets
// SO_REUSEADDR on Unix, so a restart can rebind while old sockets sit
// in TIME_WAIT.
type TCPBinder struct {
	// KeepAlive is the keep-alive period for accepted connections.
	// Zero uses the runtime default; negative disables keep-alives.
	KeepAlive time.Duration
}

// Bind listens on address over TCP.
func (b *TCPBinder) Bind(ctx context.Context, network, address string) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: b.KeepAlive}
	return lc.Listen(ctx, network, address)
}
