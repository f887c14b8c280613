// Package session supervises the control-channel connection: pairing,
// credential persistence and reconnection.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/metrics"
)

var (
	ErrLoggedOut    = errors.New("control session logged out")
	ErrNotConnected = errors.New("control session not connected")
)

type Manager struct {
	log       *slog.Logger
	dialer    Dialer
	challenge *PairingChallenge
	metrics   *metrics.Metrics
	backoff   Backoff
	inbound   chan InboundMessage

	onChallenge func(code string)

	mu    sync.RWMutex
	state State
	conn  Conn
}

func NewManager(log *slog.Logger, dialer Dialer, challenge *PairingChallenge, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		log:       log,
		dialer:    dialer,
		challenge: challenge,
		metrics:   m,
		backoff:   DefaultBackoff(),
		inbound:   make(chan InboundMessage, 64),
		state:     StateUnauthenticated,
	}
	m.SessionState.Set(float64(StateUnauthenticated))
	return mgr
}

// OnChallenge registers fn to be called with every new pairing code.
func (m *Manager) OnChallenge(fn func(code string)) {
	m.onChallenge = fn
}

func (m *Manager) SetBackoff(b Backoff) {
	m.backoff = b
}

// Inbound delivers text messages received on the control channel.
func (m *Manager) Inbound() <-chan InboundMessage {
	return m.inbound
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Send replies on the current connection.
func (m *Manager) Send(ctx context.Context, to, text string) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(ctx, to, text)
}

// Run bootstraps the session and keeps it alive until ctx is done or the
// account is logged out remotely, in which case it returns ErrLoggedOut.
func (m *Manager) Run(ctx context.Context) error {
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := m.dialer.Dial(ctx)
		if err != nil {
			delay := m.backoff.Delay(failures)
			failures++
			m.log.Error("failed to start control session",
				slog.Int("attempt", failures),
				slog.Duration("retry_in", delay),
				sl.Err(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()

		m.log.Info("control session started", slog.Bool("has_credentials", conn.HasCredentials()))

		cause := m.serve(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()

		if err := ctx.Err(); err != nil {
			return err
		}

		if cause == CauseLoggedOut {
			m.challenge.Clear()
			m.setState(StateLoggedOut)
			m.log.Warn("control session logged out; pair again to restore it")
			return ErrLoggedOut
		}

		m.setState(StateDisconnected)
		m.log.Info("control session closed, reconnecting")
	}
}

// serve processes events of one connection until it closes.
func (m *Manager) serve(ctx context.Context, conn Conn) CloseCause {
	events := conn.Events()

	for {
		select {
		case <-ctx.Done():
			return CauseOther
		case ev, ok := <-events:
			if !ok {
				return CauseOther
			}

			switch ev.Kind {
			case EventCredentialsUpdated:
				if err := conn.SaveCredentials(ctx); err != nil {
					m.log.Error("failed to save session credentials", sl.Err(err))
				}
			case EventQR:
				if m.State() == StateAuthenticated {
					continue
				}
				m.challenge.Set(ev.QRCode)
				m.setState(StatePairing)
				m.log.Info("pairing challenge updated; scan it at /qr")
				if m.onChallenge != nil {
					m.onChallenge(ev.QRCode)
				}
			case EventConnected:
				m.challenge.Clear()
				m.setState(StateAuthenticated)
			case EventClosed:
				if ev.Err != nil {
					m.log.Warn("control connection closed", sl.Err(ev.Err))
				}
				return ev.Cause
			case EventMessage:
				m.log.Info("message received", slog.String("from", ev.Message.From))
				select {
				case m.inbound <- ev.Message:
				case <-ctx.Done():
					return CauseOther
				}
			}
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev == s {
		return
	}
	m.metrics.SessionState.Set(float64(s))
	m.metrics.SessionChanges.WithLabelValues(s.String()).Inc()
	m.log.Info("control session state changed",
		slog.String("from", prev.String()),
		slog.String("to", s.String()),
	)
}
