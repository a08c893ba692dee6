// Package transport provides the listening side of the network stack.
// A Binder opens the socket the honeypot accepts on, independent of
// what happens over each accepted connection (which is the capability
// layer's job).
package transport

import (
	"context"
	"net"
)

// Binder opens a listening socket.  Implementations decide the socket
// options; callers only see a net.Listener.
type Binder interface {
	// Bind listens on the given network address.
	Bind(ctx context.Context, network, address string) (net.Listener, error)
}
