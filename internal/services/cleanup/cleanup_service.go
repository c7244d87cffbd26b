package cleanup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
)

// Service periodically removes failed posts past the retention window
type Service struct {
	posts     interfaces.PostStorage
	attempts  interfaces.AttemptLogStorage
	cron      *cron.Cron
	schedule  string
	retention time.Duration
	logger    arbor.ILogger
	mu        sync.Mutex // serializes runs
	running   bool
}

// NewService creates a cleanup service. Schedules carry a seconds field.
func NewService(storage interfaces.StorageManager, config *common.CleanupConfig, logger arbor.ILogger) *Service {
	days := config.RetentionDays
	if days <= 0 {
		days = 30
	}
	return &Service{
		posts:     storage.PostStorage(),
		attempts:  storage.AttemptLogStorage(),
		cron:      cron.New(cron.WithSeconds()),
		schedule:  config.Schedule,
		retention: time.Duration(days) * 24 * time.Hour,
		logger:    logger,
	}
}

// Start registers the cleanup job and starts the cron runner
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("cleanup scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", s.schedule).Dur("retention", s.retention).Msg("Cleanup scheduler started")
	return nil
}

// Stop stops the cron runner and waits for a running cleanup to finish
func (s *Service) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Cleanup scheduler stopped")
}

// RunOnce deletes failed posts last updated before the retention cutoff,
// with their attempt logs, and returns how many posts went
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention)
	posts, err := s.posts.ListFailedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired posts: %w", err)
	}

	deleted := 0
	for _, post := range posts {
		if err := s.attempts.DeleteByPost(ctx, post.ID); err != nil {
			s.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to delete attempt logs")
			continue
		}
		if err := s.posts.DeletePost(ctx, post.ID); err != nil {
			s.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to delete expired post")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Str("cutoff", cutoff.Format(time.RFC3339)).Msg("Expired failed posts removed")
	}
	return deleted, nil
}
