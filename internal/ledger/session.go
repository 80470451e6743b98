// internal/ledger/session.go
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrSessionClosed is returned for calls on a closed session.
	ErrSessionClosed = errors.New("ledger: session closed")

	// ErrCallTimeout is returned when the server does not answer a command in time.
	ErrCallTimeout = errors.New("ledger: call timed out")
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
	callTimeout      = 15 * time.Second
)

// Session is a single live streaming connection to the ledger network.
// It is owned exclusively by the Supervisor; every other component borrows
// it through Supervisor.Acquire and never keeps it across suspension points.
type Session struct {
	conn   *websocket.Conn
	logger *zap.Logger

	// Write serialization
	writeMu sync.Mutex

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan *response
	cmdID     int64

	// Stream events are handed to onEvent from the read loop; the handler
	// must not block.
	onEvent func(TxEvent)

	errCh chan error
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// dialSession establishes a websocket connection and starts the read loop.
func dialSession(ctx context.Context, url string, onEvent func(TxEvent), logger *zap.Logger) (*Session, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	s := &Session{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan *response),
		onEvent: onEvent,
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
	}

	go s.readLoop()

	logger.Debug("websocket connected", zap.String("url", url))
	return s, nil
}

// Call sends a command and waits for its correlated response.
func (s *Session) Call(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.mu.Unlock()

	id := atomic.AddInt64(&s.cmdID, 1)
	respCh := make(chan *response, 1)

	s.pendingMu.Lock()
	s.pending[id] = respCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	data, err := json.Marshal(request{ID: id, Command: command, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", command, err)
	}

	s.writeMu.Lock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", command, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	case <-time.After(callTimeout):
		return nil, fmt.Errorf("%s: %w", command, ErrCallTimeout)
	case resp := <-respCh:
		if resp.Status == "error" {
			return nil, fmt.Errorf("ledger: %s failed: %s (%s)", command, resp.ErrorMessage, resp.ErrorCode)
		}
		return resp.Result, nil
	}
}

// Err reports the read-loop failure that killed the session.
func (s *Session) Err() <-chan error {
	return s.errCh
}

// Alive reports whether the session can still serve calls.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.conn.Close()
}

// readLoop routes command responses to waiters and stream entries to onEvent.
func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			deliberate := s.closed
			s.closed = true
			s.mu.Unlock()

			if !deliberate {
				select {
				case s.errCh <- err:
				default:
				}
			}
			s.failPending(err)
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			s.logger.Warn("unparseable frame dropped", zap.Error(err))
			continue
		}

		switch {
		case resp.Type == "response":
			s.routeResponse(&resp)
		case resp.Type == "transaction":
			var ev TxEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				s.logger.Warn("malformed transaction event dropped", zap.Error(err))
				continue
			}
			if s.onEvent != nil {
				s.onEvent(ev)
			}
		default:
			s.logger.Debug("ignoring frame", zap.String("type", resp.Type))
		}
	}
}

func (s *Session) routeResponse(resp *response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// failPending wakes every in-flight Call after the connection dies.
func (s *Session) failPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for id, ch := range s.pending {
		select {
		case ch <- &response{ID: id, Status: "error", ErrorCode: "connectionDropped", ErrorMessage: err.Error()}:
		default:
		}
		delete(s.pending, id)
	}
}
