package capability

import (
	"context"
	"net"
	"time"

	"sshlure/internal/event"
	"sshlure/internal/metrics"
	"sshlure/internal/session"
)

// FakeLogin runs the scripted SSH login lure on each connection.
type FakeLogin struct {
	Timeout time.Duration
	Sink    event.Sink
	Metrics *metrics.Collector
}

// Handle runs one session to completion.  The context is not consulted:
// a session in flight always finishes on its own terms, bounded by
// Timeout per operation.
func (f *FakeLogin) Handle(_ context.Context, conn net.Conn) {
	session.New(conn, session.Options{
		Timeout: f.Timeout,
		Sink:    f.Sink,
		Metrics: f.Metrics,
	}).Run()
}
