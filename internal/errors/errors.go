// Package errors provides domain-specific error types for sshlure.
//
// These types carry structured context (operation, address, error kind)
// so the listener and sessions can decide how to react to a failure and
// operators get useful diagnostics in the log.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrTimeout        = errors.New("operation timed out")
	ErrPeerClosed     = errors.New("peer closed the connection")
	ErrListenerClosed = errors.New("listener is closed")
	ErrNotStarted     = errors.New("listener not started")
)

// ── Error kinds ──────────────────────────────────────────────────────

// Kind is a coarse classification of a socket-level failure, recorded
// on error events so log consumers can aggregate without parsing text.
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindReset   Kind = "reset"
	KindEOF     Kind = "eof"
	KindClosed  Kind = "closed"
	KindIO      Kind = "io"
)

// ── Structured error types ───────────────────────────────────────────

// BindError reports that the listening socket could not be created.
// It is fatal at startup and never retried.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// AcceptError reports a failed accept call.  Temporary errors are logged
// and the loop continues; a non-temporary AcceptError ends the loop.
type AcceptError struct {
	Err       error
	Temporary bool
}

func (e *AcceptError) Error() string {
	s := fmt.Sprintf("accept: %v", e.Err)
	if e.Temporary {
		s += " (temporary)"
	}
	return s
}

func (e *AcceptError) Unwrap() error { return e.Err }

// SessionIOError represents a read, write or timeout failure on one
// session's socket.  It never leaves the session's own goroutine.
type SessionIOError struct {
	Op   string // "write", "read"
	Peer string // remote address
	Kind Kind
	Err  error
}

func (e *SessionIOError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Peer, e.Kind, e.Err)
}

func (e *SessionIOError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// WrapBind creates a BindError for addr.
func WrapBind(addr string, err error) *BindError {
	return &BindError{Addr: addr, Err: err}
}

// WrapAccept creates an AcceptError, detecting whether the failure is
// worth another accept.
func WrapAccept(err error) *AcceptError {
	return &AcceptError{Err: err, Temporary: classifyTemporary(err)}
}

// WrapSession creates a SessionIOError, classifying the underlying error.
func WrapSession(op, peer string, err error) *SessionIOError {
	return &SessionIOError{Op: op, Peer: peer, Kind: Classify(err), Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// Classify maps a socket error onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, ErrPeerClosed):
		return KindEOF
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNABORTED):
		return KindReset
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return KindClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindIO
}

// IsTemporary reports whether err represents a condition that may clear
// up on its own, such as running out of file descriptors.
func IsTemporary(err error) bool {
	var ae *AcceptError
	if errors.As(err, &ae) {
		return ae.Temporary
	}
	return classifyTemporary(err)
}

// classifyTemporary inspects standard library error types.  A closed
// listener is never temporary; only resource exhaustion and aborted
// handshakes are worth another accept.
func classifyTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, ErrListenerClosed) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() || opErr.Temporary() { //nolint:staticcheck // Temporary is deprecated but still useful
			return true
		}
	}
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use sshlure/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
