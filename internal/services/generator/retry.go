package generator

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// Provider calls are retried in place only for rate limits; other failures go
// back to the job, which has its own backoff.
const (
	maxRateLimitRetries = 2
	initialBackoff      = 15 * time.Second
	maxBackoff          = 60 * time.Second
)

// IsRateLimitError matches 429 and quota errors from either provider
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(s, "rate_limit") ||
		strings.Contains(s, "quota")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs"
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested delay, or 0
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}
	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}
	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func backoffFor(attempt int, err error) time.Duration {
	base := initialBackoff
	if d := ExtractRetryDelay(err); d > 0 {
		base = d + time.Second
	}
	backoff := base * time.Duration(attempt+1)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

// withRateLimitRetry runs call, waiting out rate limits
func withRateLimitRetry(ctx context.Context, logger arbor.ILogger, provider string, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		text, err := call()
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !IsRateLimitError(err) || attempt == maxRateLimitRetries {
			break
		}

		backoff := backoffFor(attempt, err)
		logger.Warn().
			Str("provider", provider).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("Rate limited, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}
