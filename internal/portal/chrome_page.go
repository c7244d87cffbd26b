package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
)

const pollInterval = 250 * time.Millisecond

var errOptionMissing = errors.New("option not present")

// chromePage implements Page on a chromedp tab context
type chromePage struct {
	tabCtx        context.Context
	actionTimeout time.Duration
	navTimeout    time.Duration
}

func newChromePage(tabCtx context.Context, actionTimeout, navTimeout time.Duration) *chromePage {
	return &chromePage{tabCtx: tabCtx, actionTimeout: actionTimeout, navTimeout: navTimeout}
}

// run executes actions on the tab bounded by timeout and by the caller's ctx
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if runCtx.Err() != nil {
			return fmt.Errorf("%w after %s", context.DeadlineExceeded, timeout)
		}
		return err
	}
	return nil
}

func (p *chromePage) eval(ctx context.Context, script string, out interface{}) error {
	return p.run(ctx, p.actionTimeout, chromedp.Evaluate(script, out))
}

// poll evaluates a boolean script until it is true or timeout elapses
func (p *chromePage) poll(ctx context.Context, timeout time.Duration, script string) error {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := p.eval(ctx, script, &ok); err == nil && ok {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", context.DeadlineExceeded, timeout)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.navTimeout, chromedp.Navigate(url))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, p.actionTimeout, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := p.eval(ctx, fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n)
	return n, err
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, p.actionTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *chromePage) Fill(ctx context.Context, selector, value string) error {
	notify := fmt.Sprintf(`(function(){
		var el = document.querySelector(%s);
		if (!el) { return false; }
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, jsString(selector))
	var ok bool
	return p.run(ctx, p.actionTimeout,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(notify, &ok),
	)
}

func (p *chromePage) SelectValue(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(function(){
		var el = document.querySelector(%s);
		if (!el || !el.options) { return false; }
		var want = %s;
		var found = Array.prototype.some.call(el.options, function(o) { return o.value === want; });
		if (!found) { return false; }
		el.value = want;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, jsString(selector), jsString(value))
	var ok bool
	if err := p.eval(ctx, script, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("select %s value %q: %w", selector, value, errOptionMissing)
	}
	return nil
}

func (p *chromePage) SetFiles(ctx context.Context, selector string, files []string) error {
	abs := make([]string, len(files))
	for i, f := range files {
		a, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		abs[i] = a
	}
	return p.run(ctx, p.actionTimeout, chromedp.SetUploadFiles(selector, abs, chromedp.ByQuery))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitHidden treats a detached element as hidden
func (p *chromePage) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	return p.poll(ctx, timeout, fmt.Sprintf(`(function(){
		var el = document.querySelector(%s);
		if (!el) { return true; }
		var s = window.getComputedStyle(el);
		return s.display === 'none' || s.visibility === 'hidden' || (el.offsetWidth === 0 && el.offsetHeight === 0);
	})()`, jsString(selector)))
}

func (p *chromePage) WaitReady(ctx context.Context, timeout time.Duration) error {
	return p.poll(ctx, timeout, `document.readyState === 'interactive' || document.readyState === 'complete'`)
}

func (p *chromePage) WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if u, err := p.URL(ctx); err == nil && pattern.MatchString(u) {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("url did not match %s: %w", pattern, context.DeadlineExceeded)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (p *chromePage) Eval(ctx context.Context, script string, out interface{}) error {
	return p.eval(ctx, script, out)
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var s string
	err := p.eval(ctx, fmt.Sprintf(`(function(){
		var el = document.querySelector(%s);
		return el ? (el.innerText || el.textContent || '') : '';
	})()`, jsString(selector)), &s)
	return s, err
}

func (p *chromePage) Attr(ctx context.Context, selector string, index int, name string) (string, error) {
	var s string
	err := p.eval(ctx, fmt.Sprintf(`(function(){
		var el = document.querySelectorAll(%s)[%d];
		return el ? (el.getAttribute(%s) || '') : '';
	})()`, jsString(selector), index, jsString(name)), &s)
	return s, err
}

func (p *chromePage) BodyText(ctx context.Context) (string, error) {
	var s string
	err := p.eval(ctx, `document.body ? (document.body.innerText || '') : ''`, &s)
	return s, err
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var s string
	err := p.run(ctx, p.actionTimeout, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

func (p *chromePage) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, p.actionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

func (p *chromePage) AddStyle(ctx context.Context, css string) error {
	var ok bool
	return p.eval(ctx, fmt.Sprintf(`(function(){
		var style = document.createElement('style');
		style.textContent = %s;
		(document.head || document.documentElement).appendChild(style);
		return true;
	})()`, jsString(css)), &ok)
}

func (p *chromePage) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
