// Package session drives one accepted connection through the scripted
// fake-login exchange: banner, client greeting, username prompt,
// password prompt, denial.
//
// A Session owns its net.Conn exclusively.  It shares nothing with other
// sessions except the injected event sink and metrics collector, and it
// always closes its socket exactly once, whatever path it exits by.
package session

import (
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	ncerr "sshlure/internal/errors"
	"sshlure/internal/event"
	"sshlure/internal/fingerprint"
	"sshlure/internal/metrics"
	"sshlure/util"
)

// Wire literals.  These must match byte for byte.
const (
	Banner         = "SSH-2.0-OpenSSH_7.4p1 Debian-10+deb9u7\r\n"
	UsernamePrompt = "username: "
	PasswordPrompt = "password: "
	Denial         = "Access denied\r\n"
)

// State is a step of the scripted exchange.  States only move forward.
type State int

const (
	StateInit State = iota
	StateBannerSent
	StateAwaitGreeting
	StatePromptUser
	StatePromptPass
	StateDenied
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateBannerSent:
		return "BANNER_SENT"
	case StateAwaitGreeting:
		return "AWAIT_GREETING"
	case StatePromptUser:
		return "PROMPT_USER"
	case StatePromptPass:
		return "PROMPT_PASS"
	case StateDenied:
		return "DENIED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Options configures a Session.
type Options struct {
	// Timeout bounds every individual read and write.  Zero disables
	// deadlines, which lets a silent peer hold the session forever.
	Timeout time.Duration
	Sink    event.Sink
	Metrics *metrics.Collector
}

// Session encapsulates the runtime context for a single connection.
type Session struct {
	ID       string
	PeerIP   string
	PeerPort int

	conn      net.Conn
	closeOnce sync.Once
	timeout   time.Duration
	sink      event.Sink
	metrics   *metrics.Collector

	state       State
	greeting    string
	username    string
	password    string
	client      fingerprint.Client
	closeReason string
}

// New creates a Session bound to conn.  The session takes ownership of
// conn; callers must not use or close it afterwards.
func New(conn net.Conn, opts Options) *Session {
	sink := opts.Sink
	if sink == nil {
		sink = event.Discard
	}
	ip, port := util.SplitAddr(conn.RemoteAddr())
	return &Session{
		ID:       uuid.NewString(),
		PeerIP:   ip,
		PeerPort: port,
		conn:     conn,
		timeout:  opts.Timeout,
		sink:     sink,
		metrics:  opts.Metrics,
	}
}

// State returns the current state.  Only meaningful once Run returned
// or from the goroutine running it.
func (s *Session) State() State { return s.state }

// Greeting returns the captured client identification, or "".
func (s *Session) Greeting() string { return s.greeting }

// Username returns the captured username, or "".
func (s *Session) Username() string { return s.username }

// Password returns the captured password, or "".
func (s *Session) Password() string { return s.password }

// Client returns what the greeting revealed about the client software.
func (s *Session) Client() fingerprint.Client { return s.client }

// Run executes the exchange to completion.  It returns after the socket
// has been closed and the closed event emitted.  Any I/O failure ends
// the exchange early; nothing is retried.
func (s *Session) Run() {
	defer s.finish()

	s.emit(event.KindConnect, event.SeverityInfo, "connection attempt", "", nil)

	// INIT → BANNER_SENT
	if err := s.write(Banner); err != nil {
		s.fail(err)
		return
	}
	s.advance(StateBannerSent)
	s.emit(event.KindBannerSent, event.SeverityInfo, "sent fake SSH banner", "", nil)

	// BANNER_SENT → AWAIT_GREETING → PROMPT_USER
	s.advance(StateAwaitGreeting)
	raw, eof, err := s.read()
	if err != nil {
		s.fail(err)
		return
	}
	s.client = fingerprint.Parse(raw)
	s.greeting = s.client.Greeting
	if s.greeting != "" {
		s.emit(event.KindDataReceived, event.SeverityInfo, "received data", s.greeting, s.client.Attrs())
	} else {
		s.emit(event.KindDataReceived, event.SeverityInfo, "no data received", "", nil)
	}
	if eof {
		s.closeReason = "peer disconnected"
		return
	}

	// PROMPT_USER → PROMPT_PASS
	s.advance(StatePromptUser)
	user, eof, err := s.prompt(UsernamePrompt)
	if err != nil {
		s.fail(err)
		return
	}
	if eof {
		s.closeReason = "peer disconnected"
		return
	}
	s.username = user
	if user != "" {
		s.emit(event.KindUsernameCaptured, event.SeverityWarn, "attempted username", user, nil)
	} else {
		s.emit(event.KindUsernameCaptured, event.SeverityInfo, "empty username", "", nil)
	}

	// PROMPT_PASS → DENIED
	s.advance(StatePromptPass)
	pass, eof, err := s.prompt(PasswordPrompt)
	if err != nil {
		s.fail(err)
		return
	}
	if eof {
		s.closeReason = "peer disconnected"
		return
	}
	s.password = pass
	if pass != "" {
		s.emit(event.KindPasswordCaptured, event.SeverityWarn, "attempted password", pass, nil)
	} else {
		s.emit(event.KindPasswordCaptured, event.SeverityInfo, "empty password", "", nil)
	}

	// DENIED → CLOSED
	s.advance(StateDenied)
	if err := s.write(Denial); err != nil {
		s.fail(err)
		return
	}
	s.emit(event.KindDenied, event.SeverityInfo, "sent access denied", "", nil)
}

// ── transitions ──────────────────────────────────────────────────────

// advance moves to next.  Backward moves and re-entry are ignored, so
// once CLOSED the session stays CLOSED.
func (s *Session) advance(next State) {
	if next > s.state {
		s.state = next
	}
}

// fail records an I/O error for the current state.  The deferred finish
// takes the session to CLOSED.
func (s *Session) fail(err error) {
	var ioErr *ncerr.SessionIOError
	if !ncerr.As(err, &ioErr) {
		ioErr = ncerr.WrapSession("io", s.peer(), err)
	}
	e := s.event(event.KindError, event.SeverityError, "error handling client: "+ioErr.Error(), "", nil)
	e.ErrKind = string(ioErr.Kind)
	s.sink.Emit(e)
	s.closeReason = string(ioErr.Kind)
}

// finish closes the socket exactly once and reports the session closed.
func (s *Session) finish() {
	s.closeOnce.Do(func() {
		s.conn.Close() //nolint:errcheck
		s.advance(StateClosed)
		msg := "connection closed"
		if s.closeReason != "" {
			msg += " (" + s.closeReason + ")"
		}
		s.emit(event.KindClosed, event.SeverityInfo, msg, "", nil)
	})
}

// ── I/O ──────────────────────────────────────────────────────────────

// prompt sends text and reads the reply, trimmed.
func (s *Session) prompt(text string) (reply string, eof bool, err error) {
	if err := s.write(text); err != nil {
		return "", false, err
	}
	raw, eof, err := s.read()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(util.Decode(raw)), eof, nil
}

// read performs the single bounded read a state is allowed.  A clean
// EOF with no data is reported through eof rather than as an error.
func (s *Session) read() (data []byte, eof bool, err error) {
	data, err = util.ReadOnce(s.conn, s.timeout)
	s.metrics.BytesReceived(int64(len(data)))
	switch {
	case err == nil, len(data) > 0:
		return data, false, nil
	case ncerr.Is(err, io.EOF):
		return nil, true, nil
	default:
		return nil, false, ncerr.WrapSession("read", s.peer(), err)
	}
}

func (s *Session) write(text string) error {
	n, err := util.WriteAll(s.conn, []byte(text), s.timeout)
	s.metrics.BytesSent(int64(n))
	if err != nil {
		return ncerr.WrapSession("write", s.peer(), err)
	}
	return nil
}

// ── events ───────────────────────────────────────────────────────────

func (s *Session) peer() string { return util.FormatAddr(s.PeerIP, s.PeerPort) }

func (s *Session) event(kind event.Kind, sev event.Severity, msg, payload string, attrs map[string]string) event.Event {
	return event.Event{
		Time:      time.Now().UTC(),
		Severity:  sev,
		Kind:      kind,
		SessionID: s.ID,
		PeerIP:    s.PeerIP,
		PeerPort:  s.PeerPort,
		State:     s.state.String(),
		Message:   msg,
		Payload:   payload,
		Attrs:     attrs,
	}
}

func (s *Session) emit(kind event.Kind, sev event.Severity, msg, payload string, attrs map[string]string) {
	s.sink.Emit(s.event(kind, sev, msg, payload, attrs))
}
