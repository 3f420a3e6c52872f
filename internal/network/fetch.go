package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// MaxPageBytes caps how much of a fetched page is read.
const MaxPageBytes = 8 << 20

// ErrUnexpectedStatus is wrapped by Fetch for non-2xx responses.
var ErrUnexpectedStatus = errors.New("network: unexpected status")

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	Body       string
}

// Fetcher retrieves pages with the identity of a browser session: the same
// cookies and the same user agent.
type Fetcher struct {
	client    *http.Client
	userAgent string
	language  string
	logger    *zap.Logger
}

// NewFetcher creates a Fetcher whose jar is seeded with cookies for seedURL.
func NewFetcher(config *ClientConfig, seedURL string, cookies []*http.Cookie, userAgent, acceptLanguage string) (*Fetcher, error) {
	if config == nil {
		config = NewDefaultClientConfig()
	}
	client, err := NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("network: could not build client: %w", err)
	}
	if len(cookies) > 0 {
		u, err := url.Parse(seedURL)
		if err != nil {
			return nil, fmt.Errorf("network: invalid seed url: %w", err)
		}
		seedCookies(client.Jar, u, cookies)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		language:  acceptLanguage,
		logger:    logger.Named("fetch"),
	}, nil
}

// seedCookies stores each cookie under its own domain, so cookies the
// browser holds for a parent domain still reach the seed host.
func seedCookies(jar http.CookieJar, seed *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		target := seed
		if host := strings.TrimPrefix(c.Domain, "."); host != "" && host != seed.Hostname() {
			target = &url.URL{Scheme: seed.Scheme, Host: host, Path: "/"}
		}
		jar.SetCookies(target, []*http.Cookie{c})
	}
}

// Fetch issues a GET for rawURL and returns the decoded body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("network: bad request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.language != "" {
		req.Header.Set("Accept-Language", f.language)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("network: reading %s: %w", rawURL, err)
	}
	f.logger.Debug("Fetched page.",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %s", ErrUnexpectedStatus, resp.StatusCode, rawURL)
	}
	return &Page{URL: resp.Request.URL.String(), StatusCode: resp.StatusCode, Body: string(body)}, nil
}
