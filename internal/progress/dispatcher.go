package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

const DefaultBufferSize = 256

type envelope struct {
	eventType interfaces.EventType
	event     *models.ProgressEvent
}

// Dispatcher delivers progress events to the event service from a single
// goroutine. Send never waits on subscribers; when the buffer is full the
// event is dropped and counted. Events reach subscribers in Send order.
type Dispatcher struct {
	events interfaces.EventService
	logger arbor.ILogger
	queue  chan envelope
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	sequence int64

	sent      atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher starts the delivery goroutine. bufferSize <= 0 uses DefaultBufferSize.
func NewDispatcher(events interfaces.EventService, logger arbor.ILogger, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	d := &Dispatcher{
		events: events,
		logger: logger,
		queue:  make(chan envelope, bufferSize),
		done:   make(chan struct{}),
	}
	common.SafeGo(logger, "progress-dispatcher", d.run)
	return d
}

// Send queues event without blocking and reports whether it was accepted
func (d *Dispatcher) Send(eventType interfaces.EventType, event *models.ProgressEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}

	// Sequence is assigned under the lock so it matches delivery order
	d.sequence++
	event.Sequence = d.sequence
	event.Timestamp = time.Now()

	select {
	case d.queue <- envelope{eventType: eventType, event: event}:
		d.sent.Add(1)
		return true
	default:
		total := d.dropped.Add(1)
		d.logger.Warn().
			Str("post_id", event.PostID).
			Str("event", string(event.Type)).
			Int64("dropped_total", total).
			Msg("Progress buffer full, event dropped")
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		d.deliver(env)
		d.delivered.Add(1)
	}
}

func (d *Dispatcher) deliver(env envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("post_id", env.event.PostID).
				Msg("Progress delivery panicked")
		}
	}()
	if d.events == nil {
		return
	}
	if err := d.events.PublishSync(context.Background(), interfaces.Event{Type: env.eventType, Payload: env.event}); err != nil {
		d.logger.Warn().
			Err(err).
			Str("post_id", env.event.PostID).
			Str("event", string(env.event.Type)).
			Msg("Progress event not delivered")
	}
}

// Flush waits until every accepted event has been delivered or timeout passes
func (d *Dispatcher) Flush(timeout time.Duration) bool {
	target := d.sent.Load()
	deadline := time.Now().Add(timeout)
	for d.delivered.Load() < target {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
	return true
}

// Dropped returns the number of events discarded because the buffer was full
// or the dispatcher was closed
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits up to timeout for the buffer to drain
func (d *Dispatcher) Close(timeout time.Duration) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(timeout):
		d.logger.Warn().Int64("pending", d.sent.Load()-d.delivered.Load()).Msg("Progress dispatcher closed with undelivered events")
	}
}
