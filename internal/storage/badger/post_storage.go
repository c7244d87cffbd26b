package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const maxConflictRetries = 5

// PostStorage implements the PostStorage interface for Badger
type PostStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPostStorage creates a new PostStorage instance
func NewPostStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PostStorage {
	return &PostStorage{
		db:     db,
		logger: logger,
	}
}

// SavePost inserts or replaces a post, stamping timestamps
func (s *PostStorage) SavePost(ctx context.Context, post *models.BlogPost) error {
	if post.ID == "" {
		return fmt.Errorf("post ID is required")
	}
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	if err := s.db.Store().Upsert(post.ID, post); err != nil {
		return fmt.Errorf("failed to save post: %w", err)
	}
	return nil
}

// GetPost returns the post with id, or ErrNotFound
func (s *PostStorage) GetPost(ctx context.Context, id string) (*models.BlogPost, error) {
	var post models.BlogPost
	if err := s.db.Store().Get(id, &post); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

// UpdateStatus moves a post to status. A non-empty errorMessage is recorded; moving
// to any non-failed status clears the previous error.
func (s *PostStorage) UpdateStatus(ctx context.Context, id string, status models.PostStatus, errorMessage string) (models.PostStatus, error) {
	before, err := s.TransitionStatus(ctx, id, status, errorMessage, nil)
	if err != nil {
		return "", err
	}
	return before.Status, nil
}

// TransitionStatus reads the post, runs check against it and writes the new status
// in one transaction. A check error aborts the write and is returned unchanged.
// Concurrent transitions of the same post conflict; the loser is re-run so its
// check sees the winner's status.
func (s *PostStorage) TransitionStatus(ctx context.Context, id string, status models.PostStatus, errorMessage string, check func(*models.BlogPost) error) (*models.BlogPost, error) {
	var before models.BlogPost
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Store().Badger().Update(func(txn *badger.Txn) error {
			var post models.BlogPost
			if err := s.db.Store().TxGet(txn, id, &post); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return interfaces.ErrNotFound
				}
				return fmt.Errorf("failed to get post: %w", err)
			}
			before = post
			if check != nil {
				if err := check(&post); err != nil {
					return err
				}
			}

			post.Status = status
			if status == models.PostStatusFailed {
				post.ErrorMessage = errorMessage
			} else {
				post.ErrorMessage = ""
			}
			post.UpdatedAt = time.Now()
			if err := s.db.Store().TxUpdate(txn, id, &post); err != nil {
				return fmt.Errorf("failed to update post status: %w", err)
			}
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("post_id", id).
		Str("old_status", string(before.Status)).
		Str("new_status", string(status)).
		Msg("Post status updated")
	return &before, nil
}

// ListByUser returns a user's posts, newest first
func (s *PostStorage) ListByUser(ctx context.Context, userID string) ([]*models.BlogPost, error) {
	var posts []models.BlogPost
	query := badgerhold.Where("UserID").Eq(userID).Index("UserID").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&posts, query); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return toPointers(posts), nil
}

// ListFailedBefore returns failed posts last updated before cutoff
func (s *PostStorage) ListFailedBefore(ctx context.Context, cutoff time.Time) ([]*models.BlogPost, error) {
	var posts []models.BlogPost
	query := badgerhold.Where("Status").Eq(models.PostStatusFailed).Index("Status").
		And("UpdatedAt").Lt(cutoff)
	if err := s.db.Store().Find(&posts, query); err != nil {
		return nil, fmt.Errorf("failed to list failed posts: %w", err)
	}
	return toPointers(posts), nil
}

// DeletePost removes a post; deleting a missing post returns ErrNotFound
func (s *PostStorage) DeletePost(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.BlogPost{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func toPointers(posts []models.BlogPost) []*models.BlogPost {
	out := make([]*models.BlogPost, len(posts))
	for i := range posts {
		out[i] = &posts[i]
	}
	return out
}
