// Package jobs runs publish and generate jobs: one attempt per queue message,
// with retry decisions, attempt logs, post status and progress events kept here.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
	"github.com/ternarybob/salonpress/internal/portal"
	"github.com/ternarybob/salonpress/internal/progress"
)

var (
	// ErrInvalidState is returned when a post cannot accept the requested job
	ErrInvalidState = errors.New("post is not in a state that allows this operation")
	// ErrNoAccount is returned when the post owner has no portal credentials stored
	ErrNoAccount = errors.New("no portal account stored for user")
)

const manualReviewHint = "possibly published, verify manually"

// Orchestrator is the single place that persists attempt outcomes, decides
// retries and emits terminal progress events
type Orchestrator struct {
	posts       interfaces.PostStorage
	attempts    interfaces.AttemptLogStorage
	credentials interfaces.CredentialStorage
	queue       interfaces.QueueManager
	publisher   interfaces.Publisher
	generator   interfaces.ContentGenerator
	dispatcher  *progress.Dispatcher
	config      Config
	logger      arbor.ILogger
}

// NewOrchestrator creates an orchestrator. generator may be nil when no provider is configured.
func NewOrchestrator(
	storage interfaces.StorageManager,
	queue interfaces.QueueManager,
	publisher interfaces.Publisher,
	generator interfaces.ContentGenerator,
	events interfaces.EventService,
	config Config,
	logger arbor.ILogger,
) *Orchestrator {
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Minute
	}
	if config.GenerateTimeout <= 0 {
		config.GenerateTimeout = 3 * time.Minute
	}
	return &Orchestrator{
		posts:       storage.PostStorage(),
		attempts:    storage.AttemptLogStorage(),
		credentials: storage.CredentialStorage(),
		queue:       queue,
		publisher:   publisher,
		generator:   generator,
		dispatcher:  progress.NewDispatcher(events, logger, progress.DefaultBufferSize),
		config:      config,
		logger:      logger,
	}
}

func (o *Orchestrator) notifier(post *models.BlogPost, taskType models.TaskType) *progress.Notifier {
	return progress.NewNotifier(o.dispatcher, post.ID, post.UserID, taskType)
}

// FlushEvents waits up to timeout for queued progress events to reach subscribers
func (o *Orchestrator) FlushEvents(timeout time.Duration) bool {
	return o.dispatcher.Flush(timeout)
}

// Close stops progress delivery, giving queued events up to timeout to drain
func (o *Orchestrator) Close(timeout time.Duration) {
	o.dispatcher.Close(timeout)
}

func inFlight(status models.PostStatus) bool {
	return status == models.PostStatusPublishing || status == models.PostStatusGenerating
}

// SubmitPublish moves a post to publishing and queues attempt 1 of a new chain.
// It returns the chain ID.
func (o *Orchestrator) SubmitPublish(ctx context.Context, postID string) (string, error) {
	post, err := o.posts.GetPost(ctx, postID)
	if err != nil {
		return "", err
	}
	if err := publishable(post); err != nil {
		return "", err
	}
	if _, err := o.credentials.GetAccount(ctx, post.UserID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return "", ErrNoAccount
		}
		return "", err
	}

	// Re-checked inside the write so two submits cannot both start a chain
	post, err = o.posts.TransitionStatus(ctx, postID, models.PostStatusPublishing, "", publishable)
	if err != nil {
		return "", err
	}
	old := post.Status
	o.notifier(post, models.TaskPublish).StatusUpdate(old, models.PostStatusPublishing)

	chainID := uuid.New().String()
	msg := models.QueueMessage{Type: models.TaskPublish, PostID: postID, ChainID: chainID, Attempt: 1}
	if err := o.queue.Enqueue(ctx, msg); err != nil {
		o.restoreStatus(ctx, post, models.PostStatusPublishing, old)
		return "", fmt.Errorf("failed to queue publish job: %w", err)
	}

	o.logger.Info().Str("post_id", postID).Str("chain_id", chainID).Msg("Publish job submitted")
	return chainID, nil
}

// SubmitGenerate moves a post to generating and queues attempt 1
func (o *Orchestrator) SubmitGenerate(ctx context.Context, postID string) (string, error) {
	post, err := o.posts.TransitionStatus(ctx, postID, models.PostStatusGenerating, "", generatable)
	if err != nil {
		return "", err
	}
	old := post.Status
	o.notifier(post, models.TaskGenerate).StatusUpdate(old, models.PostStatusGenerating)

	chainID := uuid.New().String()
	msg := models.QueueMessage{Type: models.TaskGenerate, PostID: postID, ChainID: chainID, Attempt: 1}
	if err := o.queue.Enqueue(ctx, msg); err != nil {
		o.restoreStatus(ctx, post, models.PostStatusGenerating, old)
		return "", fmt.Errorf("failed to queue generate job: %w", err)
	}

	o.logger.Info().Str("post_id", postID).Str("chain_id", chainID).Msg("Generate job submitted")
	return chainID, nil
}

func publishable(post *models.BlogPost) error {
	if inFlight(post.Status) {
		return fmt.Errorf("%w: post is %s", ErrInvalidState, post.Status)
	}
	if post.Status == models.PostStatusPublished {
		return fmt.Errorf("%w: post is already published", ErrInvalidState)
	}
	if strings.TrimSpace(post.Title) == "" || strings.TrimSpace(post.Body) == "" {
		return fmt.Errorf("%w: post has no title or body", ErrInvalidState)
	}
	return nil
}

func generatable(post *models.BlogPost) error {
	if inFlight(post.Status) || post.Status == models.PostStatusPublished {
		return fmt.Errorf("%w: post is %s", ErrInvalidState, post.Status)
	}
	if strings.TrimSpace(post.AIPrompt) == "" {
		return fmt.Errorf("%w: post has no AI prompt", ErrInvalidState)
	}
	return nil
}

func (o *Orchestrator) restoreStatus(ctx context.Context, post *models.BlogPost, from, to models.PostStatus) {
	if _, err := o.posts.UpdateStatus(ctx, post.ID, to, post.ErrorMessage); err != nil {
		o.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to restore post status")
		return
	}
	o.notifier(post, "").StatusUpdate(from, to)
}

// SelectVariation applies a generated variation to the post and marks it ready
func (o *Orchestrator) SelectVariation(ctx context.Context, postID string, index int) (*models.BlogPost, error) {
	post, err := o.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusSelecting && post.Status != models.PostStatusReady {
		return nil, fmt.Errorf("%w: post is %s", ErrInvalidState, post.Status)
	}
	if index < 0 || index >= len(post.Variations) {
		return nil, fmt.Errorf("%w: variation %d does not exist", ErrInvalidState, index)
	}

	old := post.Status
	chosen := post.Variations[index]
	post.Title = chosen.Title
	post.Body = chosen.Content
	post.SelectedVariation = index
	post.Status = models.PostStatusReady
	if err := o.posts.SavePost(ctx, post); err != nil {
		return nil, err
	}
	if old != post.Status {
		o.notifier(post, models.TaskGenerate).StatusUpdate(old, post.Status)
	}
	return post, nil
}

// HandlePublish is the queue handler for publish messages
func (o *Orchestrator) HandlePublish(ctx context.Context, msg *models.QueueMessage) error {
	outcome := o.RunPublish(ctx, *msg)
	o.logOutcome(outcome)
	return nil
}

// HandleGenerate is the queue handler for generate messages
func (o *Orchestrator) HandleGenerate(ctx context.Context, msg *models.QueueMessage) error {
	outcome := o.RunGenerate(ctx, *msg)
	o.logOutcome(outcome)
	return nil
}

func (o *Orchestrator) logOutcome(outcome *models.JobOutcome) {
	event := o.logger.Info()
	if !outcome.Success {
		event = o.logger.Warn().Str("error_kind", outcome.ErrorKind).Str("error", outcome.Error)
	}
	event.
		Str("post_id", outcome.PostID).
		Str("task_type", string(outcome.TaskType)).
		Int("attempt", outcome.Attempt).
		Bool("success", outcome.Success).
		Bool("retrying", outcome.Retrying).
		Bool("manual_review", outcome.ManualReview).
		Msg("Job attempt finished")
}

// RunPublish performs one publish attempt. It never returns a raw error; every
// failure is recorded on the attempt log and reported through the outcome.
func (o *Orchestrator) RunPublish(ctx context.Context, msg models.QueueMessage) *models.JobOutcome {
	outcome := &models.JobOutcome{PostID: msg.PostID, TaskType: models.TaskPublish, Attempt: msg.Attempt}
	if msg.ChainID == "" {
		msg.ChainID = msg.ID
	}
	if msg.Attempt < 1 {
		msg.Attempt = 1
		outcome.Attempt = 1
	}

	// Outcome bookkeeping must survive the job timeout
	persistCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, o.config.PublishTimeout)
	defer cancel()

	post, err := o.posts.GetPost(persistCtx, msg.PostID)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to load post: %v", err)
		return outcome
	}
	if post.Status == models.PostStatusPublished {
		// A duplicate message must not publish twice
		outcome.Error = "post is already published"
		return outcome
	}

	log := &models.AttemptLog{
		ID:          msg.ChainID,
		PostID:      post.ID,
		Attempt:     msg.Attempt,
		MaxAttempts: o.config.Publish.MaxAttempts(),
	}
	if err := o.attempts.StartAttempt(persistCtx, log); err != nil {
		o.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to start attempt log")
	}

	notifier := o.notifier(post, models.TaskPublish)
	if post.Status != models.PostStatusPublishing {
		if old, err := o.posts.UpdateStatus(persistCtx, post.ID, models.PostStatusPublishing, ""); err == nil {
			notifier.StatusUpdate(old, models.PostStatusPublishing)
		}
	}
	notifier.Started(fmt.Sprintf("Publishing (attempt %d of %d)", msg.Attempt, log.MaxAttempts))

	result, err := o.publish(ctx, post, notifier)
	if err != nil {
		return o.publishFailed(persistCtx, post, msg, log, notifier, outcome, err)
	}

	now := time.Now()
	post.Status = models.PostStatusPublished
	post.PortalURL = result.URL
	post.ScreenshotPath = result.ScreenshotPath
	post.PublishedAt = &now
	post.ErrorMessage = ""
	if err := o.posts.SavePost(persistCtx, post); err != nil {
		// The portal accepted the post; running it again could publish a duplicate
		message := fmt.Sprintf("publication succeeded but could not be recorded (%v): %s", err, manualReviewHint)
		log.Status = models.AttemptFailed
		log.ErrorKind = "persistence"
		log.ErrorMessage = message
		log.ScreenshotPath = result.ScreenshotPath
		log.ManualReview = true
		o.finalize(persistCtx, log)

		notifier.Failed(message, msg.Attempt, manualReviewHint)
		outcome.ManualReview = true
		outcome.ErrorKind = "persistence"
		outcome.Error = message
		outcome.Result = result
		return outcome
	}

	log.Status = models.AttemptSuccess
	log.ScreenshotPath = result.ScreenshotPath
	o.finalize(persistCtx, log)

	notifier.StatusUpdate(models.PostStatusPublishing, models.PostStatusPublished)
	notifier.Completed(result.Message, result)

	outcome.Success = true
	outcome.Result = result
	return outcome
}

// publish builds the request and runs it. The decrypted secret lives only for this call.
func (o *Orchestrator) publish(ctx context.Context, post *models.BlogPost, notifier *progress.Notifier) (*models.PublicationResult, error) {
	account, err := o.credentials.GetAccount(ctx, post.UserID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNoAccount, ErrNotRetryable)
		}
		return nil, fmt.Errorf("failed to load portal account: %w", err)
	}
	cred, err := o.credentials.OpenCredential(ctx, post.UserID)
	if err != nil {
		if errors.Is(err, interfaces.ErrCredentialUnreadable) {
			return nil, fmt.Errorf("failed to open portal credentials: %w: %w", err, ErrNotRetryable)
		}
		return nil, fmt.Errorf("failed to open portal credentials: %w", err)
	}
	defer cred.Wipe()

	salonID := post.SalonID
	if salonID == "" {
		salonID = account.SalonID
	}

	req := &models.PublicationRequest{
		PostID:       post.ID,
		Title:        portal.TruncateTitle(strings.TrimSpace(post.Title), o.config.TitleLimit),
		Body:         post.Body,
		Images:       o.imagePaths(post.Images),
		StylistID:    post.StylistID,
		CouponName:   post.CouponName,
		SalonID:      salonID,
		CategoryCode: o.config.CategoryCode,
		Credentials:  *cred,
	}
	defer req.Credentials.Wipe()

	result, err := o.publisher.Publish(ctx, req, notifier.Progress)
	if err != nil {
		return nil, err
	}
	if result == nil || !result.Success {
		message := "Publication failed"
		if result != nil && result.Message != "" {
			message = result.Message
		}
		return nil, portal.GenericPublicationError(message, nil)
	}
	return result, nil
}

func (o *Orchestrator) imagePaths(images []string) []string {
	out := make([]string, len(images))
	for i, img := range images {
		if filepath.IsAbs(img) || o.config.ImageDir == "" {
			out[i] = img
			continue
		}
		out[i] = filepath.Join(o.config.ImageDir, img)
	}
	return out
}

func (o *Orchestrator) publishFailed(
	ctx context.Context,
	post *models.BlogPost,
	msg models.QueueMessage,
	log *models.AttemptLog,
	notifier *progress.Notifier,
	outcome *models.JobOutcome,
	err error,
) *models.JobOutcome {
	decision := o.config.Publish.Decide(msg.Attempt, err)
	kind, message, screenshot := describe(err)
	if decision.ManualReview {
		message = fmt.Sprintf("%s (%s)", message, reviewHint(err))
	}

	log.Status = models.AttemptFailed
	log.ErrorKind = kind
	log.ErrorMessage = message
	log.ScreenshotPath = screenshot
	log.ManualReview = decision.ManualReview
	o.finalize(ctx, log)

	outcome.ErrorKind = kind
	outcome.Error = message
	outcome.ManualReview = decision.ManualReview

	var ae *portal.AutomationError
	if errors.As(err, &ae) && ae.AlertsOperators() {
		o.logger.Error().
			Str("post_id", post.ID).
			Str("stage", string(ae.Stage)).
			Str("url", ae.LastURL).
			Msg("Portal control missing, selector catalogue may need an update")
	}

	if decision.Retry && o.scheduleRetry(ctx, msg, decision.Delay) {
		notifier.Failed(message, msg.Attempt, fmt.Sprintf("Retrying in %s", decision.Delay))
		outcome.Retrying = true
		outcome.RetryIn = decision.Delay
		return outcome
	}

	notifier.Failed(message, msg.Attempt, "Publication failed")
	if old, err := o.posts.UpdateStatus(ctx, post.ID, models.PostStatusFailed, message); err == nil {
		notifier.StatusUpdate(old, models.PostStatusFailed)
	} else {
		o.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to mark post failed")
	}
	return outcome
}

func (o *Orchestrator) scheduleRetry(ctx context.Context, msg models.QueueMessage, delay time.Duration) bool {
	next := models.QueueMessage{
		Type:    msg.Type,
		PostID:  msg.PostID,
		ChainID: msg.ChainID,
		Attempt: msg.Attempt + 1,
	}
	if err := o.queue.EnqueueWithDelay(ctx, next, delay); err != nil {
		o.logger.Error().
			Err(err).
			Str("post_id", msg.PostID).
			Int("next_attempt", next.Attempt).
			Msg("Failed to schedule retry")
		return false
	}
	o.logger.Info().
		Str("post_id", msg.PostID).
		Str("task_type", string(msg.Type)).
		Int("next_attempt", next.Attempt).
		Dur("delay", delay).
		Msg("Retry scheduled")
	return true
}

func (o *Orchestrator) finalize(ctx context.Context, log *models.AttemptLog) {
	if err := o.attempts.FinalizeAttempt(ctx, log); err != nil {
		o.logger.Warn().
			Err(err).
			Str("chain_id", log.ID).
			Int("attempt", log.Attempt).
			Msg("Failed to finalize attempt log")
	}
}

// describe extracts kind, message and screenshot from err for logs and events
func describe(err error) (kind, message, screenshot string) {
	var ae *portal.AutomationError
	if errors.As(err, &ae) {
		return string(ae.Kind), ae.Error(), ae.ScreenshotPath
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", "job timed out: " + err.Error(), ""
	}
	return "internal", err.Error(), ""
}

func reviewHint(err error) string {
	var ae *portal.AutomationError
	if errors.As(err, &ae) && ae.Committed {
		return manualReviewHint
	}
	return "robot detection, manual review required"
}

// RunGenerate performs one generation attempt
func (o *Orchestrator) RunGenerate(ctx context.Context, msg models.QueueMessage) *models.JobOutcome {
	outcome := &models.JobOutcome{PostID: msg.PostID, TaskType: models.TaskGenerate, Attempt: msg.Attempt}
	if msg.Attempt < 1 {
		msg.Attempt = 1
		outcome.Attempt = 1
	}

	persistCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, o.config.GenerateTimeout)
	defer cancel()

	post, err := o.posts.GetPost(persistCtx, msg.PostID)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to load post: %v", err)
		return outcome
	}

	notifier := o.notifier(post, models.TaskGenerate)
	notifier.Started(fmt.Sprintf("Generating (attempt %d of %d)", msg.Attempt, o.config.Generate.MaxAttempts()))

	variations, err := o.generate(ctx, post, notifier)
	if err != nil {
		return o.generateFailed(persistCtx, post, msg, notifier, outcome, err)
	}
	notifier.Progress(90, "Saving drafts")

	old := post.Status
	post.Variations = variations
	post.ErrorMessage = ""
	if len(variations) == 1 {
		post.Title = variations[0].Title
		post.Body = variations[0].Content
		post.SelectedVariation = 0
		post.Status = models.PostStatusReady
	} else {
		post.SelectedVariation = -1
		post.Status = models.PostStatusSelecting
	}
	if err := o.posts.SavePost(persistCtx, post); err != nil {
		return o.generateFailed(persistCtx, post, msg, notifier, outcome, fmt.Errorf("failed to save drafts: %w", err))
	}

	notifier.StatusUpdate(old, post.Status)
	notifier.Completed(fmt.Sprintf("%d drafts generated", len(variations)), variations)
	outcome.Success = true
	return outcome
}

func (o *Orchestrator) generate(ctx context.Context, post *models.BlogPost, notifier *progress.Notifier) ([]models.GeneratedVariation, error) {
	if o.generator == nil {
		return nil, fmt.Errorf("no content generator configured: %w", ErrNotRetryable)
	}
	if strings.TrimSpace(post.AIPrompt) == "" {
		return nil, fmt.Errorf("post has no AI prompt: %w", ErrNotRetryable)
	}

	notifier.Progress(10, fmt.Sprintf("Requesting drafts from %s", o.generator.Name()))
	variations, err := o.generator.Generate(ctx, post.AIPrompt, len(post.Images))
	if err != nil {
		return nil, err
	}
	if len(variations) == 0 {
		return nil, errors.New("generator returned no drafts")
	}

	out := make([]models.GeneratedVariation, 0, len(variations))
	for _, v := range variations {
		if strings.TrimSpace(portal.StripPlaceholders(v.Content)) == "" {
			continue
		}
		out = append(out, models.GeneratedVariation{
			Title:   portal.TruncateTitle(strings.TrimSpace(v.Title), o.config.TitleLimit),
			Content: portal.NormalizePlaceholders(v.Content, len(post.Images)),
		})
	}
	if len(out) == 0 {
		return nil, errors.New("generator returned only empty drafts")
	}
	return out, nil
}

func (o *Orchestrator) generateFailed(
	ctx context.Context,
	post *models.BlogPost,
	msg models.QueueMessage,
	notifier *progress.Notifier,
	outcome *models.JobOutcome,
	err error,
) *models.JobOutcome {
	decision := o.config.Generate.Decide(msg.Attempt, err)
	kind, message, _ := describe(err)
	outcome.ErrorKind = kind
	outcome.Error = message

	if decision.Retry && o.scheduleRetry(ctx, msg, decision.Delay) {
		notifier.Failed(message, msg.Attempt, fmt.Sprintf("Retrying in %s", decision.Delay))
		outcome.Retrying = true
		outcome.RetryIn = decision.Delay
		return outcome
	}

	notifier.Failed(message, msg.Attempt, "Generation failed")
	if old, err := o.posts.UpdateStatus(ctx, post.ID, models.PostStatusFailed, message); err == nil {
		notifier.StatusUpdate(old, models.PostStatusFailed)
	} else {
		o.logger.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to mark post failed")
	}
	return outcome
}
