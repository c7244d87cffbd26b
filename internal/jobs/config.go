package jobs

import (
	"time"

	"github.com/ternarybob/salonpress/internal/common"
)

// Config holds orchestration settings derived from the service configuration
type Config struct {
	Publish         RetryPolicy
	Generate        RetryPolicy
	PublishTimeout  time.Duration
	GenerateTimeout time.Duration
	TitleLimit      int
	CategoryCode    string
	ImageDir        string
}

// NewConfig reads the [publish] and [generate] sections
func NewConfig(c *common.Config) Config {
	return Config{
		Publish: RetryPolicy{
			MaxRetries: c.Publish.MaxRetries,
			Backoff:    common.ParseDuration(c.Publish.RetryBackoff, 120*time.Second),
		},
		Generate: RetryPolicy{
			MaxRetries: c.Generate.MaxRetries,
			Backoff:    common.ParseDuration(c.Generate.RetryBackoff, 60*time.Second),
		},
		PublishTimeout:  common.ParseDuration(c.Publish.JobTimeout, 10*time.Minute),
		GenerateTimeout: common.ParseDuration(c.Generate.JobTimeout, 3*time.Minute),
		TitleLimit:      c.Publish.TitleLimit,
		CategoryCode:    c.Publish.CategoryCode,
		ImageDir:        c.Publish.ImageDir,
	}
}
