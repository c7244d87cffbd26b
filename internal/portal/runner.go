package portal

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/models"
	"golang.org/x/time/rate"
)

// Runner publishes each request in its own browser session
type Runner struct {
	session   SessionConfig
	catalogue *Catalogue
	opts      ClientOptions
	shots     *Screenshotter
	logger    arbor.ILogger

	launches *rate.Limiter
	slots    chan struct{}
}

// NewRunner limits browser launches to perMinute and concurrent sessions to maxSessions
func NewRunner(session SessionConfig, catalogue *Catalogue, opts ClientOptions, shots *Screenshotter, perMinute, maxSessions int, logger arbor.ILogger) *Runner {
	if perMinute <= 0 {
		perMinute = 6
	}
	if maxSessions <= 0 {
		maxSessions = 1
	}
	return &Runner{
		session:   session,
		catalogue: catalogue,
		opts:      opts,
		shots:     shots,
		logger:    logger,
		launches:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		slots:     make(chan struct{}, maxSessions),
	}
}

func (r *Runner) acquire(ctx context.Context) (func(), error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := r.launches.Wait(ctx); err != nil {
		<-r.slots
		return nil, err
	}
	return func() { <-r.slots }, nil
}

// Publish runs the full flow. The session is closed before Publish returns.
func (r *Runner) Publish(ctx context.Context, req *models.PublicationRequest, progress func(percent int, message string)) (*models.PublicationResult, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, GenericPublicationError("no browser session available", err)
	}
	defer release()

	var result *models.PublicationResult
	err = WithSession(ctx, r.session, r.logger, func(page Page) error {
		client := NewClient(page, r.catalogue, r.opts, r.shots, r.logger)
		res, err := client.Publish(ctx, req, progress)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
