// Package capability defines what happens over an accepted connection.
// The listener knows nothing about the fake login script; it hands each
// connection to a Capability, which keeps the accept loop testable with
// trivial handlers.
package capability

import (
	"context"
	"net"
)

// Capability handles a single accepted connection.  Handle owns conn
// and must close it before returning.
type Capability interface {
	Handle(ctx context.Context, conn net.Conn)
}

// Func adapts a plain function to Capability.
type Func func(ctx context.Context, conn net.Conn)

// Handle calls f.
func (f Func) Handle(ctx context.Context, conn net.Conn) { f(ctx, conn) }
