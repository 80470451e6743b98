// internal/ledger/supervisor.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrTerminal is returned once reconnection attempts are exhausted. The
// process must treat this as fatal and stop issuing network calls.
var ErrTerminal = errors.New("ledger: connection permanently lost")

// SupervisorConfig configures the connection supervisor.
type SupervisorConfig struct {
	URL            string
	Account        string        // replayed into the stream subscription
	ReconnectDelay time.Duration // fixed delay between reconnection attempts
	MaxAttempts    int           // bounded attempt count before terminal fault
}

// Supervisor owns the single live Session. All consumers borrow it through
// Acquire and reacquire on each use; only the supervisor mutates connection
// state. Construct one instance and inject it - never reach for a global.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *zap.Logger

	mu      sync.RWMutex
	session *Session
	state   State

	// Collapses concurrent connection attempts into one
	group singleflight.Group

	handlerMu sync.RWMutex
	handlers  []func(TxEvent)

	fatal    chan error
	terminal bool
	closed   bool
}

// NewSupervisor creates the supervisor. Connection is established lazily on
// the first Acquire.
func NewSupervisor(cfg SupervisorConfig, logger *zap.Logger) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger.Named("supervisor"),
		fatal:  make(chan error, 1),
	}
}

// OnTransaction registers a handler for validated transaction stream events.
// Handlers run on the read loop and must not block; slow work belongs on its
// own goroutine. Subscriptions registered here survive reconnections.
func (s *Supervisor) OnTransaction(h func(TxEvent)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Acquire returns the live session, establishing one if absent or dead.
// Concurrent callers during an in-flight attempt share the same result.
func (s *Supervisor) Acquire(ctx context.Context) (*Session, error) {
	s.mu.RLock()
	if s.terminal {
		s.mu.RUnlock()
		return nil, ErrTerminal
	}
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	if s.state == StateConnected && s.session != nil && s.session.Alive() {
		sess := s.session
		s.mu.RUnlock()
		return sess, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do("connect", func() (any, error) {
		return s.establish(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Fatal delivers the terminal fault once reconnection is exhausted.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// Close shuts the supervisor down and suppresses any further reconnection.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	sess := s.session
	s.session = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// establish dials, replays the stream subscription, and only then flips the
// state to Connected. A bare reconnect without resubscription would silently
// starve the acquisition trigger of its event feed.
func (s *Supervisor) establish(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return nil, ErrTerminal
	}
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state == StateConnected && s.session != nil && s.session.Alive() {
		sess := s.session
		s.mu.Unlock()
		return sess, nil
	}
	if old := s.session; old != nil {
		old.Close()
		s.session = nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	sess, err := dialSession(ctx, s.cfg.URL, s.dispatchEvent, s.logger.Named("session"))
	if err != nil {
		s.setState(StateDisconnected)
		return nil, err
	}

	if err := s.replaySubscriptions(ctx, sess); err != nil {
		sess.Close()
		s.setState(StateDisconnected)
		return nil, fmt.Errorf("resubscribe: %w", err)
	}

	s.mu.Lock()
	s.session = sess
	s.state = StateConnected
	s.mu.Unlock()

	go s.watch(sess)

	s.logger.Info("🔌 Connected to ledger", zap.String("url", s.cfg.URL))
	return sess, nil
}

// replaySubscriptions re-arms the transaction stream before the session is
// handed to anyone.
func (s *Supervisor) replaySubscriptions(ctx context.Context, sess *Session) error {
	params := map[string]any{
		"streams": []string{"transactions"},
	}
	if s.cfg.Account != "" {
		params["accounts"] = []string{s.cfg.Account}
	}
	_, err := sess.Call(ctx, "subscribe", params)
	return err
}

// watch waits for the session to fault and drives the reconnection loop.
func (s *Supervisor) watch(sess *Session) {
	err, ok := <-sess.Err()
	if !ok {
		return
	}

	s.mu.Lock()
	if s.closed || s.session != sess {
		s.mu.Unlock()
		return
	}
	s.session = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.logger.Warn("⚡ Connection dropped", zap.Error(err))
	s.reconnect()
}

// reconnect retries with a fixed delay up to the configured attempt bound.
// On exhaustion the supervisor goes terminal: no silent half-alive state.
func (s *Supervisor) reconnect() {
	attempt := 0
	op := func() (*Session, error) {
		attempt++
		s.logger.Info("Attempting reconnection",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts))

		v, err, _ := s.group.Do("connect", func() (any, error) {
			return s.establish(context.Background())
		})
		if err != nil {
			if errors.Is(err, ErrTerminal) || errors.Is(err, ErrSessionClosed) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return v.(*Session), nil
	}

	_, err := backoff.Retry(
		context.Background(),
		op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.ReconnectDelay)),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
	)
	if err == nil {
		s.logger.Info("✅ Reconnected and resubscribed")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	s.state = StateDisconnected
	s.mu.Unlock()

	s.logger.Error("💥 Reconnection attempts exhausted", zap.Error(err))
	select {
	case s.fatal <- fmt.Errorf("%w: %v", ErrTerminal, err):
	default:
	}
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) dispatchEvent(ev TxEvent) {
	s.handlerMu.RLock()
	handlers := s.handlers
	s.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
