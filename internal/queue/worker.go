package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

// JobHandler handles one task type. Handlers own their retry decisions; the
// message is deleted once the handler returns, whatever the result.
type JobHandler func(ctx context.Context, msg *models.QueueMessage) error

// Backoff configuration for idle polling
const minBackoff = 100 * time.Millisecond

// WorkerPool manages a pool of workers that process queue messages
type WorkerPool struct {
	queueMgr interfaces.QueueManager
	config   Config
	handlers map[models.TaskType]JobHandler
	logger   arbor.ILogger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr interfaces.QueueManager, config Config, logger arbor.ILogger) *WorkerPool {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &WorkerPool{
		queueMgr: queueMgr,
		config:   config,
		handlers: make(map[models.TaskType]JobHandler),
		logger:   logger,
	}
}

// RegisterHandler registers a task type handler. Call before Start.
func (wp *WorkerPool) RegisterHandler(taskType models.TaskType, handler JobHandler) {
	wp.handlers[taskType] = handler
	wp.logger.Debug().
		Str("task_type", string(taskType)).
		Msg("Job handler registered")
}

// Start launches the workers; they run until Stop or until ctx is cancelled
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		wp.logger.Warn().Msg("Worker pool already running")
		return
	}

	ctx, wp.cancel = context.WithCancel(ctx)
	wp.running = true

	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight jobs to return
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	cancel := wp.cancel
	wp.mu.Unlock()

	wp.logger.Info().Msg("Stopping worker pool")
	cancel()
	wp.wg.Wait()
	wp.logger.Info().Msg("Worker pool stopped")
}

func (wp *WorkerPool) worker(ctx context.Context, workerID int) {
	defer wp.wg.Done()

	// Spread workers across the poll interval
	stagger := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", stagger).
		Msg("Worker started")

	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			wp.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		default:
		}

		if wp.processNext(ctx, workerID) {
			backoff = minBackoff
			continue
		}

		select {
		case <-ctx.Done():
			wp.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wp.config.PollInterval {
			backoff = wp.config.PollInterval
		}
	}
}

// processNext handles one message. Returns false when the queue had nothing visible.
func (wp *WorkerPool) processNext(ctx context.Context, workerID int) bool {
	msg, deleteFn, err := wp.queueMgr.Receive(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoMessage) && ctx.Err() == nil {
			wp.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Msg("Failed to receive message")
		}
		return false
	}

	defer func() {
		if err := deleteFn(); err != nil {
			wp.logger.Warn().
				Err(err).
				Str("message_id", msg.ID).
				Msg("Failed to delete message")
		}
	}()

	handler, ok := wp.handlers[msg.Type]
	if !ok {
		wp.logger.Error().
			Str("type", string(msg.Type)).
			Str("message_id", msg.ID).
			Msg("No handler registered for task type")
		return true
	}

	wp.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", string(msg.Type)).
		Str("post_id", msg.PostID).
		Int("attempt", msg.Attempt).
		Int("worker_id", workerID).
		Msg("Processing message")

	start := time.Now()
	stopHeartbeat := wp.keepHidden(ctx, msg.ID)
	err = wp.run(ctx, handler, msg)
	stopHeartbeat()
	duration := time.Since(start)

	if err != nil {
		wp.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("type", string(msg.Type)).
			Str("post_id", msg.PostID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
		return true
	}

	wp.logger.Info().
		Str("message_id", msg.ID).
		Str("type", string(msg.Type)).
		Str("post_id", msg.PostID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job completed")
	return true
}

// keepHidden extends the message's visibility at half the timeout while its
// handler runs, so a long publish is never seen as abandoned and redelivered
func (wp *WorkerPool) keepHidden(ctx context.Context, messageID string) func() {
	timeout := wp.config.VisibilityTimeout
	if timeout <= 0 {
		return func() {}
	}
	interval := timeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := wp.queueMgr.Extend(context.WithoutCancel(ctx), messageID, timeout); err != nil {
					wp.logger.Warn().
						Err(err).
						Str("message_id", messageID).
						Msg("Failed to extend message visibility")
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

// run converts a handler panic into an error so the worker keeps going
func (wp *WorkerPool) run(ctx context.Context, handler JobHandler, msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			wp.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Str("message_id", msg.ID).
				Msg("Recovered from panic in job handler")
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, msg)
}
