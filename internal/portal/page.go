package portal

import (
	"context"
	"regexp"
	"time"
)

// Page is the set of browser operations the automation stages rely on.
// Every call is bounded: waits take an explicit timeout, everything else
// runs under the page's default action timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Count returns the number of elements matching selector without waiting
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectValue(ctx context.Context, selector, value string) error
	SetFiles(ctx context.Context, selector string, files []string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	WaitHidden(ctx context.Context, selector string, timeout time.Duration) error
	WaitReady(ctx context.Context, timeout time.Duration) error
	WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error
	// Eval runs a JavaScript expression and decodes its result into out (may be nil)
	Eval(ctx context.Context, script string, out interface{}) error
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector string, index int, name string) (string, error)
	BodyText(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context, path string) error
	AddStyle(ctx context.Context, css string) error
	Sleep(ctx context.Context, d time.Duration) error
}

// resolve returns the first candidate matching at least one element
func resolve(ctx context.Context, page Page, candidates Candidates) (string, bool) {
	for _, sel := range candidates {
		n, err := page.Count(ctx, sel)
		if err == nil && n > 0 {
			return sel, true
		}
	}
	return "", false
}

// anyPresent reports whether any candidate matches
func anyPresent(ctx context.Context, page Page, candidates Candidates) bool {
	_, ok := resolve(ctx, page, candidates)
	return ok
}

// sleep pauses unless ctx ends first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
