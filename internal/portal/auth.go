package portal

import (
	"context"
	"strings"
)

// Login signs in and returns once the portal shows a signed-in page.
// The secret is only handed to the password field; it is never logged.
func (c *Client) Login(ctx context.Context, loginID string, secret []byte) error {
	c.advance(StageLoggingIn)
	c.logger.Info().Str("login_url", c.opts.LoginURL).Msg("Logging in to portal")

	if err := c.page.Navigate(ctx, c.opts.LoginURL); err != nil {
		if isTimeout(err) {
			return LoginError("login page did not load", err)
		}
		return LoginError("failed to open login page", err)
	}
	if err := c.postNavigation(ctx); err != nil {
		return err
	}

	login := c.catalogue.Login
	userSel, ok := resolve(ctx, c.page, login.UserID)
	if !ok {
		return ElementNotFoundError("login id field not found", c.currentURL(ctx), nil)
	}
	passSel, ok := resolve(ctx, c.page, login.Password)
	if !ok {
		return ElementNotFoundError("password field not found", c.currentURL(ctx), nil)
	}
	submitSel, ok := resolve(ctx, c.page, login.Submit)
	if !ok {
		return ElementNotFoundError("login button not found", c.currentURL(ctx), nil)
	}

	if err := c.page.Fill(ctx, userSel, loginID); err != nil {
		return LoginError("failed to enter login id", err)
	}
	if err := c.page.Fill(ctx, passSel, string(secret)); err != nil {
		return LoginError("failed to enter password", nil)
	}
	if err := c.page.Click(ctx, submitSel); err != nil {
		return LoginError("failed to submit login form", err)
	}

	if err := c.page.WaitReady(ctx, c.opts.SettleTimeout); err != nil {
		if ctx.Err() != nil {
			return LoginError("login interrupted", ctx.Err())
		}
		c.logger.Warn().Err(err).Msg("Page after login did not report ready")
	}
	if err := c.page.Sleep(ctx, c.opts.StabilizePause); err != nil {
		return LoginError("login interrupted", err)
	}
	if err := c.postNavigation(ctx); err != nil {
		return err
	}

	return c.verifyLogin(ctx)
}

func (c *Client) verifyLogin(ctx context.Context) error {
	login := c.catalogue.Login

	if anyPresent(ctx, c.page, login.SuccessIndicators) {
		c.logger.Info().Msg("Login successful")
		return nil
	}

	url := c.currentURL(ctx)
	if c.catalogue.redirectRe != nil && c.catalogue.redirectRe.MatchString(url) {
		c.logger.Debug().Str("url", url).Msg("Login redirect in progress")
		if c.catalogue.finalURLRe != nil {
			if err := c.page.WaitURL(ctx, c.catalogue.finalURLRe, c.opts.RedirectTimeout); err != nil {
				return LoginError("login redirect did not complete", err)
			}
			if err := c.postNavigation(ctx); err != nil {
				return err
			}
		}
		if anyPresent(ctx, c.page, login.SuccessIndicators) {
			c.logger.Info().Msg("Login successful after redirect")
			return nil
		}
		url = c.currentURL(ctx)
	}

	if sel, ok := resolve(ctx, c.page, login.ErrorMessages); ok {
		text, _ := c.page.Text(ctx, sel)
		text = strings.TrimSpace(text)
		if text == "" {
			text = "portal rejected the login"
		}
		return LoginError(text, nil)
	}

	if anyPresent(ctx, c.page, login.Captcha) {
		e := RobotDetectionError("captcha shown after login")
		e.ScreenshotPath = c.shots.Capture(ctx, c.page, "login_captcha")
		e.LastURL = url
		return e
	}

	if login.LoginURLMarker != "" && strings.Contains(url, login.LoginURLMarker) {
		return LoginError("still on login page", nil)
	}

	// Off the login page with no error shown
	c.logger.Info().Str("url", url).Msg("Login assumed successful")
	return nil
}

// SelectSalon picks salonID on the chooser screen. Accounts with one salon never see it.
func (c *Client) SelectSalon(ctx context.Context, salonID string) error {
	c.advance(StageSelectingSalon)

	chooser := c.catalogue.Salon.Chooser
	if n, err := c.page.Count(ctx, chooser); err != nil || n == 0 {
		c.logger.Debug().Msg("Salon chooser not shown")
		return nil
	}
	if salonID == "" {
		return SalonSelectionError("salon chooser shown but no salon id configured")
	}

	c.logger.Info().Str("salon_id", salonID).Msg("Selecting salon")
	c.shots.Capture(ctx, c.page, "before_salon_selection")

	target := ""
	for _, sel := range []string{c.catalogue.SalonByID(salonID), c.catalogue.SalonByHref(salonID)} {
		if n, err := c.page.Count(ctx, sel); err == nil && n > 0 {
			target = sel
			break
		}
	}
	if target == "" {
		c.logCandidateSalons(ctx)
		e := SalonSelectionError("salon " + salonID + " not found on chooser")
		e.ScreenshotPath = c.shots.Capture(ctx, c.page, "salon_selection_failed")
		return e
	}

	if err := c.page.Sleep(ctx, c.jitter()); err != nil {
		return err
	}
	if err := c.page.Click(ctx, target); err != nil {
		e := SalonSelectionError("failed to click salon link")
		e.Cause = err
		return e
	}

	if err := c.page.WaitReady(ctx, c.opts.HopTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("Salon page load timed out, continuing")
	}
	if err := c.page.Sleep(ctx, c.opts.SalonPause); err != nil {
		return err
	}
	if n, _ := c.page.Count(ctx, chooser); n > 0 {
		c.logger.Warn().Msg("Still on salon chooser, waiting longer")
		if err := c.page.Sleep(ctx, c.opts.StabilizePause); err != nil {
			return err
		}
	}
	if err := c.postNavigation(ctx); err != nil {
		return err
	}

	c.logger.Info().Str("salon_id", salonID).Msg("Salon selected")
	return nil
}

func (c *Client) logCandidateSalons(ctx context.Context) {
	links := c.catalogue.Salon.CandidateLinks
	n, err := c.page.Count(ctx, links)
	if err != nil {
		return
	}
	c.logger.Error().Int("links", n).Msg("Requested salon not on chooser")
	for i := 0; i < n && i < 5; i++ {
		id, _ := c.page.Attr(ctx, links, i, "id")
		href, _ := c.page.Attr(ctx, links, i, "href")
		c.logger.Error().Int("index", i).Str("id", id).Str("href", href).Msg("Salon candidate")
	}
}
