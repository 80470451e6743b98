// internal/notify/dispatcher_test.go
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ledgersnipe/xrpl-bot/internal/events"
)

type recordingSink struct {
	mu       sync.Mutex
	msgs     []Message
	times    []time.Time
	failKind string
}

func (s *recordingSink) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times = append(s.times, time.Now())
	if s.failKind != "" && msg.Kind == s.failKind {
		return errors.New("sink unavailable")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *recordingSink) attempts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

func newTestDispatcher(t *testing.T, sink Sink, pacing time.Duration) *Dispatcher {
	d := NewDispatcher(sink, &DispatcherConfig{Pacing: pacing}, zaptest.NewLogger(t))
	t.Cleanup(d.Close)
	return d
}

func TestDispatcherDeliversInEnqueueOrder(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(t, sink, 10*time.Millisecond)

	d.Enqueue(NewMessage("a", "first", nil))
	d.Enqueue(NewMessage("b", "second", nil))
	d.Enqueue(NewMessage("c", "third", nil))

	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	msgs := sink.delivered()
	assert.Equal(t, "a", msgs[0].Kind)
	assert.Equal(t, "b", msgs[1].Kind)
	assert.Equal(t, "c", msgs[2].Kind)
}

func TestDispatcherPacesDeliveries(t *testing.T) {
	const pacing = 40 * time.Millisecond

	sink := &recordingSink{}
	d := newTestDispatcher(t, sink, pacing)

	d.Enqueue(NewMessage("a", "first", nil))
	d.Enqueue(NewMessage("b", "second", nil))
	d.Enqueue(NewMessage("c", "third", nil))

	require.Eventually(t, func() bool {
		return len(sink.attempts()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	times := sink.attempts()
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, pacing,
			"delivery %d started before the pacing delay elapsed", i)
	}
}

func TestDispatcherDropsFailedDeliveryAndContinues(t *testing.T) {
	sink := &recordingSink{failKind: "b"}
	d := newTestDispatcher(t, sink, 5*time.Millisecond)

	d.Enqueue(NewMessage("a", "first", nil))
	d.Enqueue(NewMessage("b", "second", nil))
	d.Enqueue(NewMessage("c", "third", nil))

	require.Eventually(t, func() bool {
		return len(sink.attempts()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// b was attempted once, failed, and dropped; a and c made it through.
	msgs := sink.delivered()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Kind)
	assert.Equal(t, "c", msgs[1].Kind)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherRestartsAfterIdle(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(t, sink, 5*time.Millisecond)

	d.Enqueue(NewMessage("a", "first", nil))
	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Let the worker go idle before the next enqueue.
	time.Sleep(30 * time.Millisecond)

	d.Enqueue(NewMessage("b", "after idle", nil))
	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "b", sink.delivered()[1].Kind)
}

func TestDispatcherCloseDropsQueue(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, &DispatcherConfig{Pacing: time.Hour}, zaptest.NewLogger(t))

	d.Enqueue(NewMessage("a", "first", nil))
	d.Enqueue(NewMessage("b", "never delivered", nil))
	d.Close()

	d.Enqueue(NewMessage("c", "after close", nil))
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcherDeliverNowBypassesQueue(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, &DispatcherConfig{Pacing: time.Hour}, zaptest.NewLogger(t))

	// The worker delivers "a", then sits in its pacing wait with "b" queued.
	d.Enqueue(NewMessage("a", "first", nil))
	d.Enqueue(NewMessage("b", "stuck behind pacing", nil))
	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, d.DeliverNow(context.Background(), NewMessage("terminal", "urgent", nil)))

	msgs := sink.delivered()
	require.Len(t, msgs, 2)
	assert.Equal(t, "terminal", msgs[1].Kind)

	d.Close()
	assert.Error(t, d.DeliverNow(context.Background(), NewMessage("late", "after close", nil)))
}

func TestTerminalFaultDeliveredBeforeClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, &DispatcherConfig{Pacing: time.Hour}, zaptest.NewLogger(t))

	bus := events.NewBus(zaptest.NewLogger(t), 10)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bus.Shutdown(ctx)
	}()
	BindBus(bus, d)

	bus.PublishSync(context.Background(), events.ConnectionTerminalEvent{
		BaseEvent: events.BaseEvent{EventType: events.ConnectionTerminal, EventTime: time.Now().UTC()},
		Reason:    "reconnect attempts exhausted",
	})
	d.Close()

	msgs := sink.delivered()
	require.Len(t, msgs, 1)
	assert.Equal(t, "connection_terminal", msgs[0].Kind)
	assert.Contains(t, msgs[0].Text, "reconnect attempts exhausted")
}

func TestWebhookSinkPostsJSON(t *testing.T) {
	received := make(chan Message, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg Message
		require.NoError(t, json.Unmarshal(body, &msg))
		received <- msg
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	msg := NewMessage("acquired", "Acquired 1000 ABC for 10 XRP", map[string]interface{}{
		"currency": "ABC",
	})
	require.NoError(t, sink.Send(context.Background(), msg))

	select {
	case got := <-received:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "acquired", got.Kind)
		assert.Equal(t, "ABC", got.Fields["currency"])
	case <-time.After(time.Second):
		t.Fatal("webhook never received the notification")
	}
}
