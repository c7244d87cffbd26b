package portal

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/models"
)

// ProgressFunc receives percent-complete updates from a publish run
type ProgressFunc func(percent int, message string)

// ClientOptions holds the portal URL and the per-step waits
type ClientOptions struct {
	LoginURL     string
	CategoryCode string
	TitleLimit   int

	SettleTimeout       time.Duration
	RedirectTimeout     time.Duration
	HopTimeout          time.Duration
	FieldTimeout        time.Duration
	CouponTimeout       time.Duration
	ThumbnailTimeout    time.Duration
	SubmitTimeout       time.Duration
	ModalTimeout        time.Duration
	ImageCountTimeout   time.Duration
	UnboundImageTimeout time.Duration

	StabilizePause   time.Duration
	SalonPause       time.Duration
	UploadAttempts   int
	UploadRetryPause time.Duration
}

// DefaultClientOptions returns the waits the portal is known to need
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		LoginURL:            "https://salonboard.com/login/",
		CategoryCode:        "BL02",
		TitleLimit:          25,
		SettleTimeout:       30 * time.Second,
		RedirectTimeout:     15 * time.Second,
		HopTimeout:          15 * time.Second,
		FieldTimeout:        10 * time.Second,
		CouponTimeout:       5 * time.Second,
		ThumbnailTimeout:    30 * time.Second,
		SubmitTimeout:       20 * time.Second,
		ModalTimeout:        30 * time.Second,
		ImageCountTimeout:   8 * time.Second,
		UnboundImageTimeout: 10 * time.Second,
		StabilizePause:      2 * time.Second,
		SalonPause:          3 * time.Second,
		UploadAttempts:      2,
		UploadRetryPause:    time.Second,
	}
}

// Client automates one publication on an already started page
type Client struct {
	page      Page
	catalogue *Catalogue
	opts      ClientOptions
	shots     *Screenshotter
	logger    arbor.ILogger
	editor    Editor
	jitter    func() time.Duration

	stage     Stage
	committed bool
}

// NewClient binds the stages to page. A Client serves a single run.
func NewClient(page Page, catalogue *Catalogue, opts ClientOptions, shots *Screenshotter, logger arbor.ILogger) *Client {
	if opts.UploadAttempts < 1 {
		opts.UploadAttempts = 1
	}
	return &Client{
		page:      page,
		catalogue: catalogue,
		opts:      opts,
		shots:     shots,
		logger:    logger,
		editor:    newDOMEditor(page, catalogue),
		jitter: func() time.Duration {
			return 500*time.Millisecond + rand.N(time.Second)
		},
		stage: StageIdle,
	}
}

// Stage returns the current state machine position
func (c *Client) Stage() Stage {
	return c.stage
}

func (c *Client) advance(to Stage) {
	if !c.stage.canAdvance(to) {
		c.logger.Warn().Str("from", string(c.stage)).Str("to", string(to)).Msg("Ignoring backwards stage transition")
		return
	}
	c.logger.Debug().Str("from", string(c.stage)).Str("to", string(to)).Msg("Stage transition")
	c.stage = to
}

// fail stamps stage, commit state, url and a screenshot onto err and moves to Failed
func (c *Client) fail(ctx context.Context, err error) *AutomationError {
	ae := AsAutomationError(err)
	if ae.Stage == "" {
		ae.Stage = c.stage
	}
	if c.committed {
		ae.Committed = true
	}
	if ae.LastURL == "" {
		ae.LastURL = c.currentURL(ctx)
	}
	if ae.ScreenshotPath == "" {
		ae.ScreenshotPath = c.shots.Capture(ctx, c.page, "error_"+string(ae.Stage))
	}
	c.advance(StageFailed)

	c.logger.Error().
		Str("kind", string(ae.Kind)).
		Str("stage", string(ae.Stage)).
		Str("url", ae.LastURL).
		Str("screenshot", ae.ScreenshotPath).
		Bool("committed", ae.Committed).
		Err(ae.Cause).
		Msg(ae.Message)
	return ae
}

func (c *Client) currentURL(ctx context.Context) string {
	u, err := c.page.URL(ctx)
	if err != nil {
		return ""
	}
	return u
}

// postNavigation runs after every step that loads a page
func (c *Client) postNavigation(ctx context.Context) error {
	if sel, ok := resolve(ctx, c.page, c.catalogue.RobotMarkers); ok {
		shot := c.shots.Capture(ctx, c.page, "robot_detection")
		e := RobotDetectionError("robot check present on page")
		e.ScreenshotPath = shot
		e.LastURL = c.currentURL(ctx)
		c.logger.Warn().Str("marker", sel).Str("url", e.LastURL).Msg("Robot detection marker found")
		return e
	}
	c.hideBlockers(ctx)
	return nil
}

// hideBlockers is best-effort; overlays that fail to hide are ignored
func (c *Client) hideBlockers(ctx context.Context) {
	if len(c.catalogue.Blockers) == 0 {
		return
	}
	css := ""
	for _, sel := range c.catalogue.Blockers {
		css += sel + " { display: none !important; visibility: hidden !important; }\n"
	}
	if err := c.page.AddStyle(ctx, css); err != nil {
		c.logger.Debug().Err(err).Msg("Blocker style injection failed")
	}
}

// Publish drives login through success detection. A successful return means the
// portal confirmed the post; any failure is an *AutomationError.
func (c *Client) Publish(ctx context.Context, req *models.PublicationRequest, progress ProgressFunc) (*models.PublicationResult, error) {
	report := func(percent int, message string) {
		if progress != nil {
			progress(percent, message)
		}
	}

	if err := req.Validate(c.opts.TitleLimit); err != nil {
		return nil, c.fail(ctx, GenericPublicationError("invalid publication request", err))
	}

	report(5, "Logging in")
	if err := c.Login(ctx, req.Credentials.LoginID, req.Credentials.Secret); err != nil {
		return nil, c.fail(ctx, err)
	}
	report(15, "Logged in")

	if err := c.SelectSalon(ctx, req.SalonID); err != nil {
		return nil, c.fail(ctx, err)
	}
	report(20, "Salon selected")

	if err := c.NavigateToBlogForm(ctx); err != nil {
		return nil, c.fail(ctx, err)
	}
	report(30, "Blog form opened")

	c.advance(StageFillingContent)
	if err := c.FillTitle(ctx, req.Title); err != nil {
		return nil, c.fail(ctx, err)
	}
	report(35, "Title entered")

	if req.StylistID != "" {
		c.SelectStylist(ctx, req.StylistID)
	}
	category := req.CategoryCode
	if category == "" {
		category = c.opts.CategoryCode
	}
	c.SelectCategory(ctx, category)
	if req.CouponName != "" {
		c.SelectCoupon(ctx, req.CouponName)
	}
	report(40, "Form fields set")

	fill, err := c.FillContent(ctx, req.Body, req.Images, func(done, total int) {
		report(40+40*done/total, "Uploaded image")
	})
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	report(80, "Content entered")
	c.shots.Capture(ctx, c.page, "before_confirm")

	c.advance(StageConfirming)
	if err := c.Confirm(ctx); err != nil {
		return nil, c.fail(ctx, err)
	}
	c.CheckFormErrors(ctx)
	c.shots.Capture(ctx, c.page, "confirm_page")
	report(85, "Confirmation page reached")

	c.advance(StageCommitting)
	if err := c.Commit(ctx); err != nil {
		return nil, c.fail(ctx, err)
	}
	report(90, "Post submitted")

	shot := c.shots.Capture(ctx, c.page, "completed")
	obs := c.observe(ctx)
	det := c.catalogue.DetectSuccess(obs)
	c.logger.Info().
		Str("url", obs.URL).
		Bool("on_complete", det.OnComplete).
		Bool("on_confirm", det.OnConfirm).
		Bool("phrase", det.PhraseMatched).
		Bool("back_control", obs.HasBackControl).
		Msg("Publication outcome observed")

	if !det.Success {
		e := GenericPublicationError(det.Message, nil)
		e.ScreenshotPath = shot
		e.LastURL = obs.URL
		return nil, c.fail(ctx, e)
	}

	c.advance(StageCompleted)
	report(95, det.Message)
	return &models.PublicationResult{
		Success:         true,
		URL:             obs.URL,
		ScreenshotPath:  shot,
		Message:         det.Message,
		ReducedFidelity: fill.ReducedFidelity,
	}, nil
}

// observe gathers the page state DetectSuccess needs
func (c *Client) observe(ctx context.Context) Observation {
	obs := Observation{URL: c.currentURL(ctx)}
	if text, err := c.page.BodyText(ctx); err == nil {
		obs.Text = text
	}
	if html, err := c.page.HTML(ctx); err == nil {
		obs.HTML = html
	}
	obs.HasBackControl = anyPresent(ctx, c.page, c.catalogue.Success.BackControls) || c.hasBackLinkText(ctx)
	return obs
}

func (c *Client) hasBackLinkText(ctx context.Context) bool {
	texts := c.catalogue.Success.BackLinkTexts
	if len(texts) == 0 {
		return false
	}
	var found bool
	err := c.page.Eval(ctx, `(function(){
		var texts = `+jsStringArray(texts)+`;
		return Array.prototype.some.call(document.querySelectorAll('a'), function(a) {
			return texts.indexOf((a.textContent || '').trim()) >= 0;
		});
	})()`, &found)
	return err == nil && found
}
