package jobs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/salonpress/internal/portal"
)

func TestRetryPolicyBoundsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Backoff: 120 * time.Second}
	assert.Equal(t, 3, policy.MaxAttempts())

	err := portal.UploadError("image 1 failed after 2 attempts", nil)

	first := policy.Decide(1, err)
	assert.True(t, first.Retry)
	assert.Equal(t, 120*time.Second, first.Delay)

	second := policy.Decide(2, err)
	assert.True(t, second.Retry)
	assert.Equal(t, 240*time.Second, second.Delay)

	third := policy.Decide(3, err)
	assert.False(t, third.Retry)
	assert.False(t, third.ManualReview)
}

func TestRetryPolicyNeverRetries(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Backoff: time.Minute}

	committed := portal.GenericPublicationError("Publication status unclear", nil)
	committed.Committed = true

	tests := []struct {
		name   string
		err    error
		manual bool
	}{
		{"robot detection", portal.RobotDetectionError("captcha shown"), true},
		{"wrapped robot detection", fmt.Errorf("attempt: %w", portal.RobotDetectionError("blocked")), true},
		{"after commit", committed, true},
		{"not retryable", fmt.Errorf("no account: %w", ErrNotRetryable), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(1, tt.err)
			assert.False(t, d.Retry)
			assert.Equal(t, tt.manual, d.ManualReview)
		})
	}
}

func TestRetryPolicyForeignErrors(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Backoff: 60 * time.Second}

	d := policy.Decide(1, errors.New("model overloaded"))
	assert.True(t, d.Retry)
	assert.Equal(t, 60*time.Second, d.Delay)

	assert.Equal(t, Decision{}, policy.Decide(1, nil))
	assert.Equal(t, 1, RetryPolicy{MaxRetries: -1}.MaxAttempts())
}
