package handlers

import (
	"context"

	"github.com/ternarybob/salonpress/internal/models"
)

// PostJobSubmitter starts background work on a post
type PostJobSubmitter interface {
	SubmitPublish(ctx context.Context, postID string) (string, error)
	SubmitGenerate(ctx context.Context, postID string) (string, error)
	SelectVariation(ctx context.Context, postID string, index int) (*models.BlogPost, error)
}
