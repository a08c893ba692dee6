// Package metrics provides lightweight, lock-free counters and gauges
// for tracking honeypot activity.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.  The
// Collector is also an event.Sink: wiring it next to the log sinks keeps
// session and credential counters in step with the event stream.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"sshlure/internal/event"
)

// Collector tracks runtime metrics for a honeypot process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	credentials    atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	sessionErrors  atomic.Int64
	acceptErrors   atomic.Int64
	rejected       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// Emit updates counters from a telemetry event.
func (c *Collector) Emit(e event.Event) {
	if c == nil {
		return
	}
	switch e.Kind {
	case event.KindConnect:
		c.SessionOpened()
	case event.KindClosed:
		c.SessionClosed()
	case event.KindUsernameCaptured, event.KindPasswordCaptured:
		if e.Payload != "" {
			c.credentials.Add(1)
		}
	case event.KindError:
		c.sessionErrors.Add(1)
		c.recordError(e.String())
	case event.KindAcceptError:
		c.acceptErrors.Add(1)
		c.recordError(e.String())
	case event.KindRejected:
		c.rejected.Add(1)
	}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// CredentialsCaptured returns how many non-empty usernames and
// passwords have been captured.
func (c *Collector) CredentialsCaptured() int64 {
	if c == nil {
		return 0
	}
	return c.credentials.Load()
}

// Rejected returns how many connections were turned away by admission
// control.
func (c *Collector) Rejected() int64 {
	if c == nil {
		return 0
	}
	return c.rejected.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a peer.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a peer.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

func (c *Collector) recordError(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// SessionErrors returns the number of session I/O errors.
func (c *Collector) SessionErrors() int64 {
	if c == nil {
		return 0
	}
	return c.sessionErrors.Load()
}

// AcceptErrors returns the number of failed accept calls.
func (c *Collector) AcceptErrors() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime              string `json:"uptime"`
	SessionsActive      int64  `json:"sessions_active"`
	SessionsTotal       int64  `json:"sessions_total"`
	SessionsRejected    int64  `json:"sessions_rejected"`
	CredentialsCaptured int64  `json:"credentials_captured"`
	BytesIn             int64  `json:"bytes_in"`
	BytesOut            int64  `json:"bytes_out"`
	SessionErrors       int64  `json:"session_errors"`
	AcceptErrors        int64  `json:"accept_errors"`
	LastError           string `json:"last_error,omitempty"`
	LastErrorMessage    string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:              time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:      c.sessionsActive.Load(),
		SessionsTotal:       c.sessionsTotal.Load(),
		SessionsRejected:    c.rejected.Load(),
		CredentialsCaptured: c.credentials.Load(),
		BytesIn:             c.bytesIn.Load(),
		BytesOut:            c.bytesOut.Load(),
		SessionErrors:       c.sessionErrors.Load(),
		AcceptErrors:        c.acceptErrors.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
