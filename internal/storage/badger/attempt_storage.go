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

// AttemptLogStorage implements the AttemptLogStorage interface for Badger
type AttemptLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAttemptLogStorage creates a new AttemptLogStorage instance
func NewAttemptLogStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AttemptLogStorage {
	return &AttemptLogStorage{
		db:     db,
		logger: logger,
	}
}

// StartAttempt writes log as in_progress, clearing outcome fields left by an earlier attempt
func (s *AttemptLogStorage) StartAttempt(ctx context.Context, log *models.AttemptLog) error {
	if log.ID == "" || log.PostID == "" {
		return fmt.Errorf("attempt log needs chain and post IDs")
	}
	log.Status = models.AttemptInProgress
	log.ErrorKind = ""
	log.ErrorMessage = ""
	log.ScreenshotPath = ""
	log.ManualReview = false
	log.CompletedAt = nil
	log.DurationSeconds = 0
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}

	if err := s.db.Store().Upsert(log.ID, log); err != nil {
		return fmt.Errorf("failed to start attempt log: %w", err)
	}
	return nil
}

// FinalizeAttempt records the outcome of the in-progress attempt
func (s *AttemptLogStorage) FinalizeAttempt(ctx context.Context, log *models.AttemptLog) error {
	return s.db.Store().Badger().Update(func(txn *badger.Txn) error {
		var current models.AttemptLog
		if err := s.db.Store().TxGet(txn, log.ID, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return interfaces.ErrNotFound
			}
			return fmt.Errorf("failed to load attempt log: %w", err)
		}
		if current.Status != models.AttemptInProgress || current.Attempt != log.Attempt {
			return interfaces.ErrAttemptFinalized
		}

		now := time.Now()
		log.CompletedAt = &now
		log.StartedAt = current.StartedAt
		log.DurationSeconds = now.Sub(current.StartedAt).Seconds()
		if err := s.db.Store().TxUpdate(txn, log.ID, log); err != nil {
			return fmt.Errorf("failed to finalize attempt log: %w", err)
		}
		return nil
	})
}

// GetAttempt returns the attempt log of a chain
func (s *AttemptLogStorage) GetAttempt(ctx context.Context, chainID string) (*models.AttemptLog, error) {
	var log models.AttemptLog
	if err := s.db.Store().Get(chainID, &log); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attempt log: %w", err)
	}
	return &log, nil
}

// ListByPost returns every attempt chain of a post, newest first
func (s *AttemptLogStorage) ListByPost(ctx context.Context, postID string) ([]*models.AttemptLog, error) {
	var logs []models.AttemptLog
	query := badgerhold.Where("PostID").Eq(postID).Index("PostID").SortBy("StartedAt").Reverse()
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list attempt logs: %w", err)
	}
	out := make([]*models.AttemptLog, len(logs))
	for i := range logs {
		out[i] = &logs[i]
	}
	return out, nil
}

// DeleteByPost removes every attempt log of a post
func (s *AttemptLogStorage) DeleteByPost(ctx context.Context, postID string) error {
	if err := s.db.Store().DeleteMatching(&models.AttemptLog{}, badgerhold.Where("PostID").Eq(postID).Index("PostID")); err != nil {
		return fmt.Errorf("failed to delete attempt logs: %w", err)
	}
	return nil
}
