package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewBrowserClient creates a client that keeps cookies across requests and
// sends headers a desktop browser would. Listing pages that paginate set
// cookies on the first page and expect them back.
func NewBrowserClient(timeout time.Duration, userAgent, acceptLanguage string) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	headers := http.Header{}
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if userAgent != "" {
		headers.Set("User-Agent", userAgent)
	}
	if acceptLanguage != "" {
		headers.Set("Accept-Language", acceptLanguage)
	}

	return &http.Client{
		Jar:       jar,
		Timeout:   timeout,
		Transport: &headerTransport{base: http.DefaultTransport, headers: headers},
	}, nil
}

// headerTransport fills in default headers the request does not set itself
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for name, values := range t.headers {
		if req.Header.Get(name) == "" {
			req.Header[name] = values
		}
	}
	return t.base.RoundTrip(req)
}
