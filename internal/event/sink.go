package event

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"sshlure/util"
)

// ── LogSink ──────────────────────────────────────────────────────────

// LogSink renders events as text lines through a util.Logger, which
// serializes concurrent writers.
type LogSink struct {
	Logger *util.Logger
}

// NewLogSink returns a sink writing through logger.
func NewLogSink(logger *util.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

// Emit writes e at the logger level matching its severity.
func (s *LogSink) Emit(e Event) {
	switch e.Severity {
	case SeverityError:
		s.Logger.Error("%s", e)
	case SeverityWarn:
		s.Logger.Warn("%s", e)
	default:
		s.Logger.Info("%s", e)
	}
}

// ── JSONSink ─────────────────────────────────────────────────────────

// JSONSink writes one JSON object per line.  A mutex keeps records from
// different sessions from interleaving.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   io.Writer
}

// NewJSONSink returns a sink encoding events onto w.
func NewJSONSink(w io.Writer) *JSONSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONSink{enc: enc, w: w}
}

// Emit encodes e as a single line.  Encoding errors are dropped; the
// event stream must never take a session down.
func (s *JSONSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(e)
}

// Close closes the underlying writer if it is closable.
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// OpenLogFile opens path for appending, creating it if needed.
func OpenLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

// ── Multi ────────────────────────────────────────────────────────────

// Multi fans each event out to every sink in order.  Nil sinks are
// skipped.
type Multi []Sink

// Emit forwards e to every sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// ── Recorder ─────────────────────────────────────────────────────────

// Recorder keeps every event in memory.  It is the sink used by tests to
// assert on what a session or listener reported.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit appends e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Session returns the events recorded for one session, in order.
func (r *Recorder) Session(id string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.SessionID == id {
			out = append(out, e)
		}
	}
	return out
}

// Kinds returns the kinds of the given events, in order.
func Kinds(events []Event) []Kind {
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// Count returns how many recorded events have the given kind.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// WaitFor blocks until at least n events of kind have been recorded or
// done is closed.  It reports whether the count was reached.
func (r *Recorder) WaitFor(kind Kind, n int, done <-chan struct{}) bool {
	for {
		if r.Count(kind) >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-done:
			return r.Count(kind) >= n
		}
	}
}
