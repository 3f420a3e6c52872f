package publisher

import (
	"context"
	"net/http"
	"time"

	"github.com/xkilldash9x/scribe-cli/internal/browser"
	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
)

// Page is the browser surface the workflow stages drive. *browser.Session
// implements it; tests substitute scripted pages.
type Page interface {
	locator.Probe

	ID() string
	UserAgent() string
	AcceptLanguage() string
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)

	Fill(ctx context.Context, set locator.Set, value string) (locator.Match, error)
	Click(ctx context.Context, set locator.Set) (locator.Match, error)
	ClickSelector(ctx context.Context, sel locator.Selector) error
	Exists(ctx context.Context, set locator.Set) (locator.Match, bool)
	WaitFor(ctx context.Context, timeout time.Duration, sets ...locator.Set) (int, locator.Match, error)
	Text(ctx context.Context, sel locator.Selector) (string, error)
	Links(ctx context.Context, container locator.Selector) ([]browser.Link, error)

	HTML(ctx context.Context) (string, error)
	Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error)
	Screenshot(ctx context.Context, name string) (string, error)
	Sleep(ctx context.Context, d time.Duration) error
	Close() error
}

var _ Page = (*browser.Session)(nil)

// SessionFactory opens a fresh page for one workflow run. Every page it
// returns is closed exactly once by the caller.
type SessionFactory func(ctx context.Context) (Page, error)
