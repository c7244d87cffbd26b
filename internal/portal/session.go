package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// SessionConfig is the browser fingerprint and default timeouts of a session
type SessionConfig struct {
	Headless          bool
	UserAgent         string
	Locale            string
	Timezone          string
	AcceptLanguage    string
	Languages         []string // navigator.languages
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
}

// stealthScript hides the usual automation tells before any page script runs
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });

	Object.defineProperty(navigator, 'plugins', {
		get: () => {
			const plugins = [
				{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
				{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
				{ name: 'Native Client', filename: 'internal-nacl-plugin' }
			];
			plugins.length = 3;
			return plugins;
		},
		configurable: true
	});

	Object.defineProperty(navigator, 'languages', { get: () => %s, configurable: true });

	if (!window.chrome) window.chrome = {};
	window.chrome.runtime = window.chrome.runtime || {};

	if (window.navigator.permissions && window.navigator.permissions.query) {
		const originalQuery = window.navigator.permissions.query.bind(window.navigator.permissions);
		window.navigator.permissions.query = (parameters) => (
			parameters && parameters.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: originalQuery(parameters)
		);
	}
`

// Session owns one isolated browser process and its single page
type Session struct {
	config SessionConfig
	logger arbor.ILogger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// NewSession creates an unstarted session
func NewSession(config SessionConfig, logger arbor.ILogger) *Session {
	if config.NavigationTimeout <= 0 {
		config.NavigationTimeout = 60 * time.Second
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 10 * time.Second
	}
	if len(config.Languages) == 0 {
		config.Languages = []string{"ja-JP", "ja", "en-US", "en"}
	}
	return &Session{config: config, logger: logger}
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	return append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", s.config.Locale),
		chromedp.UserAgent(s.config.UserAgent),
		chromedp.WindowSize(s.config.WindowWidth, s.config.WindowHeight),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
}

// Start launches the browser with the configured fingerprint and returns its page.
// The browser's lifetime is bounded by ctx as well as by Close.
func (s *Session) Start(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session already closed")
	}
	if s.browserCtx != nil {
		return nil, fmt.Errorf("session already started")
	}

	startTime := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(f string, args ...interface{}) {
			s.logger.Debug().Msgf("chromedp: "+f, args...)
		}),
	)
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel

	// The first Run allocates the browser, so it must not carry a timeout of its own
	if err := chromedp.Run(browserCtx); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	languages := jsStringArray(s.config.Languages)
	p := newChromePage(browserCtx, s.config.ActionTimeout, s.config.NavigationTimeout)
	err := p.run(ctx, s.config.NavigationTimeout,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": s.config.AcceptLanguage}),
		emulation.SetTimezoneOverride(s.config.Timezone),
		emulation.SetLocaleOverride().WithLocale(s.config.Locale),
		emulation.SetDeviceMetricsOverride(int64(s.config.WindowWidth), int64(s.config.WindowHeight), 1, false),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(fmt.Sprintf(stealthScript, languages)).Do(ctx)
			return err
		}),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to prepare browser fingerprint: %w", err)
	}

	s.logger.Debug().
		Str("locale", s.config.Locale).
		Str("timezone", s.config.Timezone).
		Bool("headless", s.config.Headless).
		Dur("startup", time.Since(startTime)).
		Msg("Browser session started")

	return p, nil
}

// Close tears down page, browser and process. Errors are logged, never returned. Safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.teardown()
}

func (s *Session) teardown() {
	if s.browserCtx != nil {
		closeCtx, cancel := context.WithTimeout(s.browserCtx, 5*time.Second)
		if err := chromedp.Run(closeCtx, page.Close()); err != nil {
			s.logger.Debug().Err(err).Msg("Page close failed during session teardown")
		}
		cancel()

		if err := chromedp.Cancel(s.browserCtx); err != nil {
			s.logger.Debug().Err(err).Msg("Browser close failed during session teardown")
		}
	}
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx = nil
	s.logger.Debug().Msg("Browser session closed")
}

// WithSession runs fn against a fresh session and always closes it, including when fn panics
func WithSession(ctx context.Context, config SessionConfig, logger arbor.ILogger, fn func(Page) error) error {
	session := NewSession(config, logger)
	defer session.Close()

	p, err := session.Start(ctx)
	if err != nil {
		return GenericPublicationError("browser session could not start", err)
	}
	return fn(p)
}

func jsStringArray(values []string) string {
	out := "["
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += jsString(v)
	}
	return out + "]"
}
