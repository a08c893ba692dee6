package core

import (
	"context"
	"fmt"
	"time"

	"sshlure/config"
	"sshlure/internal/capability"
	ncerr "sshlure/internal/errors"
	"sshlure/internal/event"
	"sshlure/internal/metrics"
	"sshlure/internal/transport"
	"sshlure/util"
)

// Build constructs the honeypot Mode from the given configuration.
// sink receives every event; collector may be nil.
func Build(cfg *config.Config, logger *util.Logger, sink event.Sink, collector *metrics.Collector) (Mode, error) {
	if cfg == nil {
		return nil, ncerr.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = event.Discard
	}

	return &HoneypotMode{
		Listener: &Listener{
			Host:        cfg.Host,
			Port:        cfg.Port,
			MaxSessions: cfg.MaxSessions,
			Binder:      &transport.TCPBinder{KeepAlive: -1},
			Capability: &capability.FakeLogin{
				Timeout: cfg.ReadTimeout,
				Sink:    sink,
				Metrics: collector,
			},
			Sink:   sink,
			Logger: logger,
		},
		ShutdownGrace: cfg.ShutdownGrace,
		Sink:          sink,
		Logger:        logger,
	}, nil
}

// HoneypotMode runs the listener until ctx is cancelled and then drains
// the sessions still in flight.
type HoneypotMode struct {
	Listener      *Listener
	ShutdownGrace time.Duration
	Sink          event.Sink
	Logger        *util.Logger
}

// Run binds, serves, and drains.  A bind failure is logged as an
// error-severity startup event and then returned so the caller can exit
// non-zero.
func (m *HoneypotMode) Run(ctx context.Context) error {
	if err := m.Listener.Start(ctx); err != nil {
		m.Sink.Emit(event.Event{
			Time:     time.Now().UTC(),
			Severity: event.SeverityError,
			Kind:     event.KindStartup,
			Message:  "Honeypot server failed to start: " + err.Error(),
			ErrKind:  "bind",
		})
		return err
	}

	m.emit(event.KindStartup, fmt.Sprintf(
		"Honeypot server starting on %s (simulating SSH service)", m.Listener.Addr()))

	runErr := m.Listener.Run(ctx)
	m.Listener.Stop() //nolint:errcheck

	m.emit(event.KindShutdown, "Shutting down honeypot server")

	if err := m.drain(); err != nil && m.Logger != nil {
		m.Logger.Warn("%d session(s) still running after %s; exiting anyway",
			m.Listener.Active(), m.ShutdownGrace)
	}
	return runErr
}

// drain waits up to ShutdownGrace for in-flight sessions.
func (m *HoneypotMode) drain() error {
	if m.Listener.Active() == 0 {
		return nil
	}
	if m.Logger != nil {
		m.Logger.Info("waiting up to %s for %d session(s)", m.ShutdownGrace, m.Listener.Active())
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.ShutdownGrace)
	defer cancel()
	return m.Listener.Wait(ctx)
}

func (m *HoneypotMode) emit(kind event.Kind, msg string) {
	m.Sink.Emit(event.Event{
		Time:     time.Now().UTC(),
		Severity: event.SeverityInfo,
		Kind:     kind,
		Message:  msg,
	})
}
