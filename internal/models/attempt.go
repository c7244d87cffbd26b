package models

import "time"

// AttemptStatus is the state of a publish attempt chain
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSuccess    AttemptStatus = "success"
	AttemptFailed     AttemptStatus = "failed"
)

// AttemptLog is one row per publish attempt chain, reset at the start of each attempt
type AttemptLog struct {
	ID              string        `json:"id"` // Chain ID
	PostID          string        `json:"post_id" badgerhold:"index"`
	Status          AttemptStatus `json:"status"`
	Attempt         int           `json:"attempt"`
	MaxAttempts     int           `json:"max_attempts"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	ScreenshotPath  string        `json:"screenshot_path,omitempty"`
	ManualReview    bool          `json:"manual_review,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
}
