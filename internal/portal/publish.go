package portal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NavigateToBlogForm walks the menu hops to the new-post form. A hop whose control
// is missing is skipped when the browser is already at that hop or a later one.
func (c *Client) NavigateToBlogForm(ctx context.Context) error {
	c.advance(StageNavigatingForm)

	hops := c.catalogue.Navigation
	for i, hop := range hops {
		sel, ok := resolve(ctx, c.page, hop.Selectors)
		if !ok {
			url := c.currentURL(ctx)
			if reachedHop(hops[i:], url) {
				c.logger.Debug().Str("hop", hop.Name).Str("url", url).Msg("Navigation hop already satisfied")
				continue
			}
			return ElementNotFoundError(fmt.Sprintf("navigation control %s not found", hop.Name), url, nil)
		}

		if err := c.page.Click(ctx, sel); err != nil {
			return ElementNotFoundError(fmt.Sprintf("navigation control %s not clickable", hop.Name), c.currentURL(ctx), err)
		}
		if err := c.page.WaitURL(ctx, hop.urlRe, c.opts.HopTimeout); err != nil {
			return ElementNotFoundError(fmt.Sprintf("navigation %s did not reach expected page", hop.Name), c.currentURL(ctx), err)
		}
		if err := c.page.WaitReady(ctx, c.opts.HopTimeout); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.postNavigation(ctx); err != nil {
			return err
		}
		if err := c.page.Sleep(ctx, time.Second); err != nil {
			return err
		}
		c.logger.Debug().Str("hop", hop.Name).Msg("Navigation hop complete")
	}

	title, ok := resolve(ctx, c.page, c.catalogue.Form.Title)
	if !ok {
		title = c.catalogue.Form.Title[0]
	}
	if err := c.page.WaitVisible(ctx, title, c.opts.FieldTimeout); err != nil {
		return ElementNotFoundError("blog form did not load", c.currentURL(ctx), err)
	}
	c.logger.Info().Msg("Blog form ready")
	return nil
}

func reachedHop(hops []NavHop, url string) bool {
	for _, hop := range hops {
		if hop.urlRe != nil && hop.urlRe.MatchString(url) {
			return true
		}
	}
	return false
}

// FillTitle enters the already truncated title
func (c *Client) FillTitle(ctx context.Context, title string) error {
	sel, ok := resolve(ctx, c.page, c.catalogue.Form.Title)
	if !ok {
		return ElementNotFoundError("title field not found", c.currentURL(ctx), nil)
	}
	if err := c.page.Fill(ctx, sel, title); err != nil {
		return GenericPublicationError("failed to enter title", err)
	}
	return nil
}

// SelectStylist is best-effort; the portal accepts posts without a stylist
func (c *Client) SelectStylist(ctx context.Context, stylistID string) bool {
	return c.selectOption(ctx, "stylist", c.catalogue.Form.Stylist, stylistID)
}

// SelectCategory is best-effort
func (c *Client) SelectCategory(ctx context.Context, code string) bool {
	if code == "" {
		return false
	}
	return c.selectOption(ctx, "category", c.catalogue.Form.Category, code)
}

func (c *Client) selectOption(ctx context.Context, field string, candidates Candidates, value string) bool {
	sel, ok := resolve(ctx, c.page, candidates)
	if !ok {
		c.logger.Warn().Str("field", field).Msg("Select field not found")
		return false
	}
	if err := c.page.SelectValue(ctx, sel, value); err != nil {
		c.logger.Warn().Str("field", field).Str("value", value).Err(err).Msg("Could not select option")
		return false
	}
	c.logger.Debug().Str("field", field).Str("value", value).Msg("Option selected")
	return true
}

// SelectCoupon attaches the first coupon whose label contains name
func (c *Client) SelectCoupon(ctx context.Context, name string) bool {
	if name == "" {
		return false
	}
	coupon := c.catalogue.Coupon

	trigger, ok := resolve(ctx, c.page, coupon.Trigger)
	if !ok {
		c.logger.Warn().Msg("Coupon picker not found")
		return false
	}
	if err := c.page.Click(ctx, trigger); err != nil {
		c.logger.Warn().Err(err).Msg("Coupon picker did not open")
		return false
	}
	if err := c.page.WaitVisible(ctx, coupon.Modal, c.opts.CouponTimeout); err != nil {
		c.logger.Warn().Err(err).Msg("Coupon modal did not appear")
		return false
	}

	var clicked bool
	err := c.page.Eval(ctx, fmt.Sprintf(`(function(){
		var want = %s;
		var label = Array.prototype.find.call(document.querySelectorAll(%s), function(l) {
			return (l.textContent || '').indexOf(want) >= 0;
		});
		if (!label) { return false; }
		label.click();
		return true;
	})()`, jsString(name), jsString(coupon.Labels)), &clicked)
	if err != nil || !clicked {
		c.logger.Warn().Str("coupon", name).Err(err).Msg("Coupon not found")
		return false
	}

	apply, ok := resolve(ctx, c.page, coupon.Apply)
	if !ok {
		c.logger.Warn().Msg("Coupon apply button not found")
		return false
	}
	if err := c.page.Click(ctx, apply); err != nil {
		c.logger.Warn().Err(err).Msg("Coupon apply failed")
		return false
	}
	_ = c.page.Sleep(ctx, 500*time.Millisecond)
	c.logger.Info().Str("coupon", name).Msg("Coupon selected")
	return true
}

// Confirm moves the form to the portal's confirmation page
func (c *Client) Confirm(ctx context.Context) error {
	sel, ok := resolve(ctx, c.page, c.catalogue.Actions.Confirm)
	if !ok {
		return ElementNotFoundError("confirm button not found", c.currentURL(ctx), nil)
	}
	if err := c.page.Click(ctx, sel); err != nil {
		return ElementNotFoundError("confirm button not clickable", c.currentURL(ctx), err)
	}
	if err := c.page.WaitReady(ctx, c.opts.SettleTimeout); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := c.page.Sleep(ctx, c.opts.StabilizePause); err != nil {
		return err
	}
	return c.postNavigation(ctx)
}

// CheckFormErrors logs any validation messages the portal shows; it never fails
func (c *Client) CheckFormErrors(ctx context.Context) {
	for _, sel := range c.catalogue.Actions.FormErrors {
		n, err := c.page.Count(ctx, sel)
		if err != nil || n == 0 {
			continue
		}
		text, _ := c.page.Text(ctx, sel)
		if text = strings.TrimSpace(text); text != "" {
			c.logger.Warn().Str("selector", sel).Str("text", text).Msg("Form shows validation message")
		}
	}
}

// Commit clicks the publish control. From here on the post may be live, so any
// failure is flagged as committed and will not be retried.
func (c *Client) Commit(ctx context.Context) error {
	sel, ok := resolve(ctx, c.page, c.catalogue.Actions.Commit)
	if !ok {
		return ElementNotFoundError("publish button not found", c.currentURL(ctx), nil)
	}
	c.committed = true
	if err := c.page.Click(ctx, sel); err != nil {
		return GenericPublicationError("publish click failed, verify manually", err)
	}
	if err := c.page.WaitReady(ctx, c.opts.SettleTimeout); err != nil && ctx.Err() != nil {
		return GenericPublicationError("interrupted after publish click, verify manually", ctx.Err())
	}
	if err := c.page.Sleep(ctx, c.opts.StabilizePause); err != nil {
		return GenericPublicationError("interrupted after publish click, verify manually", err)
	}
	return c.postNavigation(ctx)
}
