package core

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"sshlure/internal/capability"
	ncerr "sshlure/internal/errors"
	"sshlure/internal/event"
	"sshlure/internal/retry"
	"sshlure/internal/transport"
	"sshlure/util"
)

// Listener binds one TCP endpoint and hands every accepted connection to
// the capability on its own goroutine.  A slow or silent peer never
// delays the accept of the next one.
type Listener struct {
	Host string
	Port int

	// MaxSessions caps concurrent sessions.  Connections over the cap
	// are closed at once and reported as rejected.  Zero means no cap.
	MaxSessions int

	Binder     transport.Binder
	Capability capability.Capability
	Sink       event.Sink
	Logger     *util.Logger

	mu      sync.Mutex
	ln      net.Listener
	slots   chan struct{}
	stopped atomic.Bool
	active  atomic.Int64
	wg      sync.WaitGroup
}

// Start binds the endpoint.  Failure is a *BindError and nothing is
// left open.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	addr := util.FormatAddr(l.Host, l.Port)
	if l.ln != nil {
		return ncerr.WrapBind(addr, ncerr.New("already started"))
	}

	binder := l.Binder
	if binder == nil {
		binder = &transport.TCPBinder{}
	}
	ln, err := binder.Bind(ctx, "tcp", addr)
	if err != nil {
		return ncerr.WrapBind(addr, err)
	}
	l.ln = ln
	if l.MaxSessions > 0 {
		l.slots = make(chan struct{}, l.MaxSessions)
	}

	if l.Logger != nil {
		l.Logger.Verbose("listening on %s (tcp)", ln.Addr())
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Run accepts connections until Stop is called or ctx is done, and then
// returns nil.  Transient accept failures are reported and retried with
// backoff.  Anything else ends the loop with an *AcceptError.
//
// Sessions already running are not interrupted when Run returns; use
// Wait to drain them.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return ncerr.ErrNotStarted
	}

	// Shut the listener down when the context expires.
	stop := context.AfterFunc(ctx, func() { l.Stop() }) //nolint:errcheck
	defer stop()

	// Sessions outlive the accept loop.
	sessCtx := context.WithoutCancel(ctx)
	bo := retry.AcceptBackoff()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if l.stopped.Load() {
				return nil
			}
			aerr := ncerr.WrapAccept(err)
			l.emit(event.Event{
				Kind:     event.KindAcceptError,
				Severity: event.SeverityError,
				Message:  "server error: " + aerr.Error(),
				ErrKind:  string(ncerr.Classify(err)),
			})
			if !aerr.Temporary {
				return aerr
			}
			if bo.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		bo.Reset()

		if !l.acquire() {
			l.reject(conn)
			continue
		}

		l.wg.Add(1)
		l.active.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.active.Add(-1)
			defer l.release()
			l.Capability.Handle(sessCtx, conn)
		}()
	}
}

// Stop closes the listening socket.  It is idempotent and does not touch
// sessions in flight.
func (l *Listener) Stop() error {
	if l.stopped.Swap(true) {
		return nil
	}
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Active returns the number of sessions in flight.
func (l *Listener) Active() int { return int(l.active.Load()) }

// Wait blocks until every session has finished or ctx is done.
func (l *Listener) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── session slots ────────────────────────────────────────────────────

func (l *Listener) acquire() bool {
	if l.slots == nil {
		return true
	}
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *Listener) release() {
	if l.slots != nil {
		<-l.slots
	}
}

func (l *Listener) reject(conn net.Conn) {
	ip, port := util.SplitAddr(conn.RemoteAddr())
	conn.Close() //nolint:errcheck
	l.emit(event.Event{
		Kind:     event.KindRejected,
		Severity: event.SeverityWarn,
		PeerIP:   ip,
		PeerPort: port,
		Message:  "connection rejected: session limit reached",
	})
}

func (l *Listener) emit(e event.Event) {
	if l.Sink == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	l.Sink.Emit(e)
}
