package session

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"sshlure/internal/event"
	"sshlure/internal/metrics"
)

// traceConn records the order of socket operations and counts Close
// calls so tests can check ordering and the close-once guarantee.
type traceConn struct {
	net.Conn
	remote net.Addr

	mu     sync.Mutex
	ops    []string
	closes int
}

func newTraceConn(c net.Conn) *traceConn {
	return &traceConn{
		Conn:   c,
		remote: &net.TCPAddr{IP: net.ParseIP("203.0.113.50"), Port: 50022},
	}
}

func (c *traceConn) record(op string) {
	c.mu.Lock()
	c.ops = append(c.ops, op)
	c.mu.Unlock()
}

func (c *traceConn) Read(p []byte) (int, error) {
	c.record("read")
	return c.Conn.Read(p)
}

func (c *traceConn) Write(p []byte) (int, error) {
	c.record("write:" + string(p))
	return c.Conn.Write(p)
}

func (c *traceConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return c.Conn.Close()
}

func (c *traceConn) RemoteAddr() net.Addr { return c.remote }

func (c *traceConn) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *traceConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// harness runs a session against a scripted peer.
type harness struct {
	t      *testing.T
	peer   net.Conn
	conn   *traceConn
	rec    *event.Recorder
	sess   *Session
	done   chan struct{}
	metric *metrics.Collector
}

// start runs the session over net.Pipe.  A closed pipe end fails the
// other side's deadline calls instead of reading EOF, so tests where the
// peer hangs up use startTCP.
func start(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	server, client := net.Pipe()
	return startOn(t, server, client, timeout)
}

// startTCP runs the session over a loopback TCP pair, where a peer
// hanging up reads as EOF.
func startTCP(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	server, client := tcpPair(t)
	return startOn(t, server, client, timeout)
}

func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err = net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	server, ok := <-accepted
	if !ok {
		client.Close()
		t.Fatal("accept failed")
	}
	return server, client
}

func startOn(t *testing.T, server, client net.Conn, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		peer:   client,
		conn:   newTraceConn(server),
		rec:    event.NewRecorder(),
		done:   make(chan struct{}),
		metric: metrics.New(),
	}
	h.sess = New(h.conn, Options{
		Timeout: timeout,
		Sink:    event.Multi{h.rec, h.metric},
		Metrics: h.metric,
	})
	go func() {
		h.sess.Run()
		close(h.done)
	}()
	t.Cleanup(func() { client.Close() })
	return h
}

func (h *harness) expect(want string) {
	h.t.Helper()
	h.peer.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(h.peer, buf); err != nil {
		h.t.Fatalf("waiting for %q: %v", want, err)
	}
	if string(buf) != want {
		h.t.Fatalf("got %q, want %q", buf, want)
	}
}

func (h *harness) send(s string) {
	h.t.Helper()
	h.peer.SetWriteDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := h.peer.Write([]byte(s)); err != nil {
		h.t.Fatalf("send %q: %v", s, err)
	}
}

func (h *harness) wait() []event.Event {
	h.t.Helper()
	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		h.t.Fatal("session did not finish")
	}
	if n := h.conn.Closes(); n != 1 {
		h.t.Errorf("socket closed %d times, want exactly 1", n)
	}
	return h.rec.Events()
}

func assertKinds(t *testing.T, events []event.Event, want ...event.Kind) {
	t.Helper()
	got := event.Kinds(events)
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", got, want)
		}
	}
}

func assertMonotonic(t *testing.T, events []event.Event) {
	t.Helper()
	order := map[string]int{}
	for s := StateInit; s <= StateClosed; s++ {
		order[s.String()] = int(s)
	}
	prev := -1
	for _, e := range events {
		cur, ok := order[e.State]
		if !ok {
			t.Fatalf("event %s has unknown state %q", e.Kind, e.State)
		}
		if cur <= prev {
			t.Fatalf("state went from %d to %s on %s", prev, e.State, e.Kind)
		}
		prev = cur
	}
}

// ── Scenarios ────────────────────────────────────────────────────────

func TestSession_FullExchange(t *testing.T) {
	h := start(t, 2*time.Second)

	h.expect(Banner)
	h.send("SSH-2.0-PuTTY_Release_0.78\r\n")
	h.expect(UsernamePrompt)
	h.send("admin\r\n")
	h.expect(PasswordPrompt)
	h.send("toor\n")
	h.expect(Denial)

	events := h.wait()
	assertKinds(t, events,
		event.KindConnect,
		event.KindBannerSent,
		event.KindDataReceived,
		event.KindUsernameCaptured,
		event.KindPasswordCaptured,
		event.KindDenied,
		event.KindClosed,
	)
	assertMonotonic(t, events)

	if events[2].Payload != "SSH-2.0-PuTTY_Release_0.78" {
		t.Errorf("greeting payload = %q", events[2].Payload)
	}
	if events[3].Payload != "admin" {
		t.Errorf("username payload = %q", events[3].Payload)
	}
	if events[4].Payload != "toor" {
		t.Errorf("password payload = %q", events[4].Payload)
	}
	if h.sess.Greeting() != "SSH-2.0-PuTTY_Release_0.78" || h.sess.Username() != "admin" || h.sess.Password() != "toor" {
		t.Errorf("captured (%q, %q, %q)", h.sess.Greeting(), h.sess.Username(), h.sess.Password())
	}
	if h.sess.State() != StateClosed {
		t.Errorf("final state = %s", h.sess.State())
	}
	for _, e := range events {
		if e.PeerIP != "203.0.113.50" || e.PeerPort != 50022 || e.SessionID != h.sess.ID {
			t.Errorf("%s event misattributed: %+v", e.Kind, e)
		}
	}

	if got := h.metric.CredentialsCaptured(); got != 2 {
		t.Errorf("credentials metric = %d, want 2", got)
	}
	wantOut := int64(len(Banner) + len(UsernamePrompt) + len(PasswordPrompt) + len(Denial))
	if got := h.metric.TotalBytesOut(); got != wantOut {
		t.Errorf("bytes out = %d, want %d", got, wantOut)
	}
	if h.metric.ActiveSessions() != 0 || h.metric.TotalSessions() != 1 {
		t.Errorf("sessions active=%d total=%d", h.metric.ActiveSessions(), h.metric.TotalSessions())
	}
}

func TestSession_DisconnectAfterBanner(t *testing.T) {
	h := startTCP(t, 2*time.Second)

	h.expect(Banner)
	h.peer.Close()

	events := h.wait()
	assertKinds(t, events,
		event.KindConnect,
		event.KindBannerSent,
		event.KindDataReceived,
		event.KindClosed,
	)
	assertMonotonic(t, events)

	if events[2].Payload != "" || events[2].Message != "no data received" {
		t.Errorf("absence not logged: %+v", events[2])
	}
	if h.sess.Greeting() != "" || h.sess.Username() != "" || h.sess.Password() != "" {
		t.Error("nothing should have been captured")
	}
	if !strings.Contains(events[3].Message, "peer disconnected") {
		t.Errorf("closed message = %q", events[3].Message)
	}
}

func TestSession_TimeoutAtUsernamePrompt(t *testing.T) {
	h := start(t, 150*time.Millisecond)

	h.expect(Banner)
	h.send("SSH-2.0-OpenSSH_8.9\r\n")
	h.expect(UsernamePrompt)
	// Say nothing.

	events := h.wait()
	assertKinds(t, events,
		event.KindConnect,
		event.KindBannerSent,
		event.KindDataReceived,
		event.KindError,
		event.KindClosed,
	)
	assertMonotonic(t, events)

	errEv := events[3]
	if errEv.ErrKind != "timeout" || errEv.Severity != event.SeverityError {
		t.Errorf("error event = %+v", errEv)
	}
	if errEv.State != StatePromptUser.String() {
		t.Errorf("error state = %s, want PROMPT_USER", errEv.State)
	}
	for _, op := range h.conn.Ops() {
		if op == "write:"+Denial {
			t.Error("denial must not be sent after a timeout")
		}
	}
}

// ── Properties ───────────────────────────────────────────────────────

func TestSession_BannerBeforeAnyRead(t *testing.T) {
	h := startTCP(t, 2*time.Second)
	h.expect(Banner)
	h.peer.Close()
	h.wait()

	ops := h.conn.Ops()
	if len(ops) == 0 || ops[0] != "write:"+Banner {
		t.Fatalf("first op = %v, want banner write", ops)
	}
}

func TestSession_EmptyCredentialsAdvance(t *testing.T) {
	h := start(t, 2*time.Second)

	h.expect(Banner)
	h.send("SSH-2.0-x\r\n")
	h.expect(UsernamePrompt)
	h.send("   \r\n")
	h.expect(PasswordPrompt)
	h.send("\t\n")
	h.expect(Denial)

	events := h.wait()
	assertKinds(t, events,
		event.KindConnect,
		event.KindBannerSent,
		event.KindDataReceived,
		event.KindUsernameCaptured,
		event.KindPasswordCaptured,
		event.KindDenied,
		event.KindClosed,
	)
	if events[3].Payload != "" || events[4].Payload != "" {
		t.Error("whitespace-only input must not be captured")
	}
	if h.sess.Username() != "" || h.sess.Password() != "" {
		t.Error("whitespace-only input must not be captured")
	}
	if h.metric.CredentialsCaptured() != 0 {
		t.Errorf("credentials metric = %d", h.metric.CredentialsCaptured())
	}
}

func TestSession_PermissiveDecoding(t *testing.T) {
	h := start(t, 2*time.Second)

	h.expect(Banner)
	h.send("\xff\xfe\r\n")
	h.expect(UsernamePrompt)
	h.send("r\xffot\n")
	h.expect(PasswordPrompt)
	h.send("pa\xc3ss\n")
	h.expect(Denial)
	h.wait()

	if h.sess.Username() != "r\uFFFDot" {
		t.Errorf("username = %q", h.sess.Username())
	}
	if h.sess.Password() != "pa\uFFFDss" {
		t.Errorf("password = %q", h.sess.Password())
	}
}

func TestSession_PeerLeavesAtPasswordPrompt(t *testing.T) {
	h := startTCP(t, 2*time.Second)

	h.expect(Banner)
	h.send("SSH-2.0-x\r\n")
	h.expect(UsernamePrompt)
	h.send("root\n")
	h.expect(PasswordPrompt)
	h.peer.Close()

	events := h.wait()
	assertKinds(t, events,
		event.KindConnect,
		event.KindBannerSent,
		event.KindDataReceived,
		event.KindUsernameCaptured,
		event.KindClosed,
	)
	if h.sess.Username() != "root" || h.sess.Password() != "" {
		t.Errorf("captured (%q, %q)", h.sess.Username(), h.sess.Password())
	}
}

func TestSession_BannerWriteFailure(t *testing.T) {
	server, client := net.Pipe()
	client.Close()

	conn := newTraceConn(server)
	rec := event.NewRecorder()
	s := New(conn, Options{Timeout: time.Second, Sink: rec})
	s.Run()

	events := rec.Events()
	assertKinds(t, events, event.KindConnect, event.KindError, event.KindClosed)
	if events[1].State != StateInit.String() {
		t.Errorf("error state = %s, want INIT", events[1].State)
	}
	if conn.Closes() != 1 {
		t.Errorf("socket closed %d times", conn.Closes())
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
}

func TestSession_NoReentryAfterClose(t *testing.T) {
	server, client := net.Pipe()
	client.Close()
	s := New(newTraceConn(server), Options{Timeout: time.Second})
	s.Run()

	s.advance(StatePromptUser)
	if s.State() != StateClosed {
		t.Errorf("state moved backwards to %s", s.State())
	}
}

func TestSession_IndependentIDs(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		server, client := net.Pipe()
		s := New(server, Options{})
		if seen[s.ID] {
			t.Fatalf("duplicate session id %s", s.ID)
		}
		seen[s.ID] = true
		server.Close()
		client.Close()
	}
}

func TestState_String(t *testing.T) {
	want := []string{"INIT", "BANNER_SENT", "AWAIT_GREETING", "PROMPT_USER", "PROMPT_PASS", "DENIED", "CLOSED"}
	for i, w := range want {
		if got := State(i).String(); got != w {
			t.Errorf("State(%d) = %q, want %q", i, got, w)
		}
	}
	if State(99).String() != "UNKNOWN" {
		t.Error("out-of-range state should be UNKNOWN")
	}
}

// TestSession_RealSSHClient points a real SSH client at the honeypot.
// The handshake cannot succeed, but the client identification line must
// be captured and the socket released.
func TestSession_RealSSHClient(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	rec := event.NewRecorder()
	done := make(chan *Session, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s := New(conn, Options{Timeout: time.Second, Sink: rec})
		s.Run()
		done <- s
	}()

	_, err = ssh.Dial("tcp", ln.Addr().String(), &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.Password("toor")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         2 * time.Second,
	})
	if err == nil {
		t.Fatal("handshake against the honeypot should fail")
	}

	select {
	case s := <-done:
		if !strings.HasPrefix(s.Greeting(), "SSH-2.0-Go") {
			t.Errorf("greeting = %q, want SSH-2.0-Go...", s.Greeting())
		}
		if s.Client().Software != "Go" {
			t.Errorf("software = %q", s.Client().Software)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
	if rec.Count(event.KindClosed) != 1 {
		t.Errorf("closed events = %d, want 1", rec.Count(event.KindClosed))
	}
}
