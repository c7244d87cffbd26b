package models

import "time"

// ProgressType names a progress event on the wire
type ProgressType string

const (
	ProgressStarted      ProgressType = "task_started"
	ProgressUpdate       ProgressType = "task_progress"
	ProgressCompleted    ProgressType = "task_completed"
	ProgressFailed       ProgressType = "task_failed"
	ProgressStatusUpdate ProgressType = "status_update"
)

// IsTerminal reports whether the event closes a job run
func (t ProgressType) IsTerminal() bool {
	return t == ProgressCompleted || t == ProgressFailed
}

// ProgressEvent is broadcast to clients watching a post. It never carries credentials.
type ProgressEvent struct {
	Type       ProgressType `json:"type"`
	PostID     string       `json:"post_id"`
	UserID     string       `json:"user_id,omitempty"`
	TaskType   TaskType     `json:"task_type,omitempty"`
	Progress   int          `json:"progress"`
	Message    string       `json:"message,omitempty"`
	Result     interface{}  `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	RetryCount int          `json:"retry_count,omitempty"`
	OldStatus  PostStatus   `json:"old_status,omitempty"`
	NewStatus  PostStatus   `json:"new_status,omitempty"`
	Sequence   int64        `json:"sequence"`
	Timestamp  time.Time    `json:"timestamp"`
}
