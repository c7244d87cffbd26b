// Package progress emits per-post job progress onto the event service.
package progress

import (
	"sync"

	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
)

// Notifier reports one job run for one post. Events are handed to the
// dispatcher, so emission never waits on subscribers and never returns an error.
type Notifier struct {
	dispatcher *Dispatcher
	postID     string
	userID     string
	taskType   models.TaskType

	mu       sync.Mutex
	last     int
	finished bool
}

// NewNotifier creates a notifier scoped to postID and taskType; a nil dispatcher discards events
func NewNotifier(dispatcher *Dispatcher, postID, userID string, taskType models.TaskType) *Notifier {
	return &Notifier{
		dispatcher: dispatcher,
		postID:     postID,
		userID:     userID,
		taskType:   taskType,
	}
}

// Started opens the run at 0%
func (n *Notifier) Started(message string) {
	n.mu.Lock()
	n.last = 0
	n.finished = false
	n.mu.Unlock()

	n.emit(interfaces.EventProgress, &models.ProgressEvent{
		Type:     models.ProgressStarted,
		Progress: 0,
		Message:  message,
	})
}

// Progress reports percent complete. Values are clamped to 0..100 and never go
// backwards within a run. Updates after Completed or Failed are ignored.
func (n *Notifier) Progress(percent int, message string) {
	n.mu.Lock()
	if n.finished {
		n.mu.Unlock()
		return
	}
	percent = clamp(percent)
	if percent < n.last {
		percent = n.last
	}
	n.last = percent
	n.mu.Unlock()

	n.emit(interfaces.EventProgress, &models.ProgressEvent{
		Type:     models.ProgressUpdate,
		Progress: percent,
		Message:  message,
	})
}

// Completed closes the run successfully at 100%
func (n *Notifier) Completed(message string, result interface{}) {
	n.mu.Lock()
	n.finished = true
	n.last = 100
	n.mu.Unlock()

	n.emit(interfaces.EventProgress, &models.ProgressEvent{
		Type:     models.ProgressCompleted,
		Progress: 100,
		Message:  message,
		Result:   result,
	})
}

// Failed closes the run with an error. retryCount is the number of attempts made so far.
func (n *Notifier) Failed(errMessage string, retryCount int, message string) {
	n.mu.Lock()
	n.finished = true
	last := n.last
	n.mu.Unlock()

	n.emit(interfaces.EventProgress, &models.ProgressEvent{
		Type:       models.ProgressFailed,
		Progress:   last,
		Message:    message,
		Error:      errMessage,
		RetryCount: retryCount,
	})
}

// StatusUpdate reports a post status transition
func (n *Notifier) StatusUpdate(oldStatus, newStatus models.PostStatus) {
	n.emit(interfaces.EventPostStatus, &models.ProgressEvent{
		Type:      models.ProgressStatusUpdate,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
}

func (n *Notifier) emit(eventType interfaces.EventType, event *models.ProgressEvent) {
	if n.dispatcher == nil {
		return
	}
	event.PostID = n.postID
	event.UserID = n.userID
	if event.TaskType == "" {
		event.TaskType = n.taskType
	}
	n.dispatcher.Send(eventType, event)
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
