package jobs

import (
	"errors"
	"time"

	"github.com/ternarybob/salonpress/internal/portal"
)

// ErrNotRetryable marks failures that another attempt cannot fix
var ErrNotRetryable = errors.New("not retryable")

// RetryPolicy bounds an attempt chain. A chain makes at most MaxRetries+1 attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration // multiplied by the number of the attempt that failed
}

// Decision is the outcome of a failed attempt
type Decision struct {
	Retry        bool
	Delay        time.Duration
	ManualReview bool
}

// MaxAttempts returns the total attempts a chain may make
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay returns the wait before the attempt that follows attempt
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff * time.Duration(attempt)
}

// Decide classifies err from attempt (1-based).
// Robot detection and anything after the commit click go to manual review and are never retried.
func (p RetryPolicy) Decide(attempt int, err error) Decision {
	if err == nil {
		return Decision{}
	}

	var ae *portal.AutomationError
	if errors.As(err, &ae) {
		if ae.ManualReview() {
			return Decision{ManualReview: true}
		}
		if !ae.Retryable() {
			return Decision{}
		}
	}
	if errors.Is(err, ErrNotRetryable) {
		return Decision{}
	}
	if attempt >= p.MaxAttempts() {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Delay(attempt)}
}
