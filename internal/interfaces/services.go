package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/salonpress/internal/models"
)

// QueueManager manages the persistent job queue
type QueueManager interface {
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error
	// Receive claims the next visible message; the returned func deletes it
	Receive(ctx context.Context) (*models.QueueMessage, func() error, error)
	Extend(ctx context.Context, messageID string, duration time.Duration) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// Publisher runs one publication inside its own browser session
type Publisher interface {
	Publish(ctx context.Context, req *models.PublicationRequest, progress func(percent int, message string)) (*models.PublicationResult, error)
}

// ContentGenerator drafts blog variations from a prompt
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string, imageCount int) ([]models.GeneratedVariation, error)
	Name() string
}

// SalonScraper reads public salon listings
type SalonScraper interface {
	Stylists(ctx context.Context, salonURL string) ([]models.Stylist, error)
	Coupons(ctx context.Context, salonURL string) ([]string, error)
}
