// internal/notify/dispatcher.go
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message is a single outbound notification.
type Message struct {
	ID        string                 `json:"id"`
	Kind      string                 `json:"kind"`
	Text      string                 `json:"text"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewMessage creates a notification with a fresh id and timestamp.
func NewMessage(kind, text string, fields map[string]interface{}) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      kind,
		Text:      text,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
}

// Sink delivers a single notification to its destination.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookSink posts notifications as JSON to an HTTP endpoint.
type WebhookSink struct {
	client *resty.Client
	url    string
}

// NewWebhookSink creates a sink that POSTs to the given webhook URL.
func NewWebhookSink(url string) *WebhookSink {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &WebhookSink{client: client, url: url}
}

func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	_, err := s.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(s.url)
	return err
}

// LogSink writes notifications to the log. Used when no webhook is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notify_sink")}
}

func (s *LogSink) Send(_ context.Context, msg Message) error {
	s.logger.Info("📣 "+msg.Text, zap.String("kind", msg.Kind))
	return nil
}

// DispatcherConfig contains dispatcher settings.
type DispatcherConfig struct {
	// Pacing is the mandatory delay observed after every delivery attempt.
	Pacing time.Duration
}

// Dispatcher queues notifications and delivers them one at a time, in
// order, with a fixed pause after each attempt. Enqueue never blocks:
// the queue is unbounded and the worker is started lazily.
type Dispatcher struct {
	sink   Sink
	pacing time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	queue   []Message
	running bool
	closed  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(sink Sink, cfg *DispatcherConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		pacing: cfg.Pacing,
		logger: logger.Named("notify"),
		stopCh: make(chan struct{}),
	}
}

// Enqueue appends a notification to the delivery queue. It returns
// immediately; delivery happens on a background worker.
func (d *Dispatcher) Enqueue(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping notification",
			zap.String("kind", msg.Kind))
		return
	}

	d.queue = append(d.queue, msg)
	if !d.running {
		d.running = true
		d.wg.Add(1)
		go d.drain()
	}
}

// DeliverNow pushes a notification through the sink synchronously,
// bypassing the queue and its pacing. Close drops whatever is still
// queued, so a message that must survive an imminent shutdown goes
// through here.
func (d *Dispatcher) DeliverNow(ctx context.Context, msg Message) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return errors.New("dispatcher closed")
	}

	if err := d.sink.Send(ctx, msg); err != nil {
		d.logger.Error("Immediate notification delivery failed",
			zap.String("kind", msg.Kind),
			zap.String("id", msg.ID),
			zap.Error(err))
		return err
	}
	return nil
}

// drain delivers queued notifications until the queue is empty, then
// exits. A later Enqueue starts a fresh worker.
func (d *Dispatcher) drain() {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 || d.closed {
			d.running = false
			d.mu.Unlock()
			return
		}
		msg := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := d.sink.Send(ctx, msg); err != nil {
			// Single attempt per notification. Failures are logged and
			// the message is dropped so the queue keeps moving.
			d.logger.Error("Notification delivery failed",
				zap.String("kind", msg.Kind),
				zap.String("id", msg.ID),
				zap.Error(err))
		} else {
			d.logger.Debug("Notification delivered",
				zap.String("kind", msg.Kind),
				zap.String("id", msg.ID))
		}
		cancel()

		// Pacing applies after every attempt, success or failure.
		select {
		case <-time.After(d.pacing):
		case <-d.stopCh:
		}
	}
}

// Pending returns the number of queued, undelivered notifications.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close stops accepting notifications and waits for the worker to
// finish its current delivery.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	dropped := len(d.queue)
	d.queue = nil
	close(d.stopCh)
	d.mu.Unlock()

	if dropped > 0 {
		d.logger.Warn("Dropping undelivered notifications on shutdown",
			zap.Int("count", dropped))
	}
	d.wg.Wait()
}
