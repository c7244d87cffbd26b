package queue

import (
	"time"

	"github.com/ternarybob/salonpress/internal/common"
)

// Config holds configuration for the queue manager
type Config struct {
	// PollInterval is the longest a worker idles between empty polls
	PollInterval time.Duration

	// Concurrency is the number of concurrent workers
	Concurrency int

	// VisibilityTimeout is how long a received message stays hidden
	VisibilityTimeout time.Duration

	// MaxReceive is how many times a message may be delivered before it is dropped
	MaxReceive int

	// QueueName namespaces the queue keys in Badger
	QueueName string
}

// NewDefaultConfig creates a queue configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		PollInterval:      1 * time.Second,
		Concurrency:       4,
		VisibilityTimeout: 20 * time.Minute,
		MaxReceive:        1,
		QueueName:         "salonpress_jobs",
	}
}

// NewConfig converts the [queue] section of the service configuration
func NewConfig(c common.QueueConfig) Config {
	config := NewDefaultConfig()
	config.PollInterval = common.ParseDuration(c.PollInterval, config.PollInterval)
	config.VisibilityTimeout = common.ParseDuration(c.VisibilityTimeout, config.VisibilityTimeout)
	if c.Concurrency > 0 {
		config.Concurrency = c.Concurrency
	}
	if c.MaxReceive > 0 {
		config.MaxReceive = c.MaxReceive
	}
	if c.QueueName != "" {
		config.QueueName = c.QueueName
	}
	return config
}
