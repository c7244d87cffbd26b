package models

import (
	"errors"
	"time"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// TaskType routes a queued job to its handler
type TaskType string

const (
	TaskGenerate TaskType = "generate"
	TaskPublish  TaskType = "publish"
)

// QueueMessage is the structure stored in the queue
type QueueMessage struct {
	ID         string    `json:"id"`
	Type       TaskType  `json:"type"`
	PostID     string    `json:"post_id"`
	ChainID    string    `json:"chain_id"` // Shared by every attempt of one job
	Attempt    int       `json:"attempt"`  // 1-based
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobOutcome is the structured result of one job attempt. Orchestrator callers only ever see this.
type JobOutcome struct {
	PostID       string             `json:"post_id"`
	TaskType     TaskType           `json:"task_type"`
	Attempt      int                `json:"attempt"`
	Success      bool               `json:"success"`
	Retrying     bool               `json:"retrying"`
	RetryIn      time.Duration      `json:"retry_in,omitempty"`
	ManualReview bool               `json:"manual_review,omitempty"`
	ErrorKind    string             `json:"error_kind,omitempty"`
	Error        string             `json:"error,omitempty"`
	Result       *PublicationResult `json:"result,omitempty"`
}
