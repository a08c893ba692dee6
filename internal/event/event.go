// Package event defines the structured telemetry records a honeypot
// produces and the sinks that persist or display them.
//
// A single Sink is created at startup and injected into the listener and
// every session.  Sinks must tolerate concurrent Emit calls from any
// number of sessions without interleaving the contents of two records.
package event

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Severity is the level attached to an event.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarn:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a severity name written by MarshalText.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "INFO":
		*s = SeverityInfo
	case "WARN":
		*s = SeverityWarn
	case "ERROR":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Kind names what happened.
type Kind string

const (
	KindStartup          Kind = "startup"
	KindShutdown         Kind = "shutdown"
	KindAcceptError      Kind = "accept-error"
	KindRejected         Kind = "rejected"
	KindConnect          Kind = "connect"
	KindBannerSent       Kind = "banner-sent"
	KindDataReceived     Kind = "data-received"
	KindUsernameCaptured Kind = "username-captured"
	KindPasswordCaptured Kind = "password-captured"
	KindDenied           Kind = "denied"
	KindError            Kind = "error"
	KindClosed           Kind = "closed"
)

// Event is one structured telemetry record.  Listener-level events leave
// the session and peer fields empty.
type Event struct {
	Time      time.Time         `json:"time"`
	Severity  Severity          `json:"severity"`
	Kind      Kind              `json:"kind"`
	SessionID string            `json:"session_id,omitempty"`
	PeerIP    string            `json:"peer_ip,omitempty"`
	PeerPort  int               `json:"peer_port,omitempty"`
	State     string            `json:"state,omitempty"`
	Message   string            `json:"message"`
	Payload   string            `json:"payload,omitempty"`
	ErrKind   string            `json:"error_kind,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Peer returns "ip:port", or "" for listener-level events.
func (e Event) Peer() string {
	if e.PeerIP == "" {
		return ""
	}
	if strings.Contains(e.PeerIP, ":") {
		return fmt.Sprintf("[%s]:%d", e.PeerIP, e.PeerPort)
	}
	return fmt.Sprintf("%s:%d", e.PeerIP, e.PeerPort)
}

// String renders the event as a single human-readable line, without the
// timestamp and severity (which the sink adds).
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if peer := e.Peer(); peer != "" {
		b.WriteString(" peer=")
		b.WriteString(peer)
	}
	if e.Payload != "" {
		fmt.Fprintf(&b, " payload=%q", e.Payload)
	}
	if e.ErrKind != "" {
		b.WriteString(" error=")
		b.WriteString(e.ErrKind)
	}
	if len(e.Attrs) > 0 {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Attrs[k])
		}
	}
	if e.SessionID != "" {
		b.WriteString(" session=")
		b.WriteString(e.SessionID)
	}
	return b.String()
}

// Sink accepts events.  Implementations must be safe for concurrent use.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})
