// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
	"github.com/xkilldash9x/scribe-cli/internal/browser/stealth"
	"github.com/xkilldash9x/scribe-cli/internal/config"
)

// ErrSessionClosed is returned by every operation on a closed session.
var ErrSessionClosed = errors.New("browser: session is closed")

// Session is one isolated browser (own allocator, own temporary profile) with a single tab.
type Session struct {
	id       string
	ctx      context.Context
	logger   *zap.Logger
	resolver *locator.Resolver
	persona  stealth.Persona
	timeouts config.TimeoutConfig
	debugDir string

	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	closeOnce sync.Once
	closeErr  error

	mu       sync.Mutex
	isClosed bool
}

// Open launches a fresh browser and prepares its first tab with the configured persona.
func Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bc := cfg.Browser()
	persona := PersonaFor(bc)

	sessionID := uuid.New().String()
	l := logger.Named("browser").With(zap.String("session_id", sessionID))

	// The browser lifetime is owned by Close, not by the caller's context.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(bc, persona)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.Sugar().Debugf),
		chromedp.WithErrorf(l.Sugar().Debugf),
	)

	s := &Session{
		id:          sessionID,
		ctx:         tabCtx,
		logger:      l,
		resolver:    locator.NewResolver(l, cfg.Timeouts().PollInterval),
		persona:     persona,
		timeouts:    cfg.Timeouts(),
		debugDir:    bc.DebugDir,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	// The first Run allocates the browser and must use the tab context itself.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("browser: failed to start: %w", err)
		}
	case <-ctx.Done():
		_ = s.Close()
		<-started
		return nil, fmt.Errorf("browser: start interrupted: %w", ctx.Err())
	}

	if err := s.run(ctx, stealth.Apply(persona, l)); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("browser: failed to apply persona: %w", err)
	}

	l.Debug("Browser session opened.",
		zap.Bool("headless", bc.Headless),
		zap.Bool("mobile", persona.Mobile))
	return s, nil
}

// allocatorOptions builds the exec allocator flags from config.
func allocatorOptions(bc config.BrowserConfig, persona stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", bc.Headless),
		chromedp.UserAgent(persona.UserAgent),
		chromedp.WindowSize(int(persona.Width), int(persona.Height)),
	)
	if persona.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", persona.Locale))
	}
	if bc.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if bc.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(bc.ExecPath))
	}
	for _, arg := range bc.Args {
		if name, value, ok := parseFlag(arg); ok {
			opts = append(opts, chromedp.Flag(name, value))
		}
	}
	return opts
}

// parseFlag turns "--name=value" or "--name" into a chromedp flag.
func parseFlag(arg string) (string, interface{}, bool) {
	m := flagPattern.FindStringSubmatch(arg)
	if m == nil {
		return "", nil, false
	}
	if m[2] == "" {
		return m[1], true, true
	}
	return m[1], m[3], true
}

var flagPattern = regexp.MustCompile(`^-{0,2}([A-Za-z0-9][A-Za-z0-9\-_.]*)(=(.*))?$`)

// ID returns the unique identifier of the session.
func (s *Session) ID() string { return s.id }

// UserAgent is the user agent the session presents.
func (s *Session) UserAgent() string { return s.persona.UserAgent }

// AcceptLanguage is the Accept-Language header the session's persona sends.
func (s *Session) AcceptLanguage() string { return s.persona.AcceptLanguage() }

// Close shuts down the tab, the browser and its allocator. It is safe to call
// more than once; later calls return the result of the first.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.isClosed = true
		s.mu.Unlock()

		// chromedp.Cancel closes the browser gracefully and waits for it.
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = fmt.Errorf("browser: close failed: %w", err)
		}
		s.cancelTab()
		s.cancelAlloc()
		s.logger.Debug("Browser session closed.")
	})
	return s.closeErr
}

func (s *Session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed
}

// run executes actions bounded by both the session lifetime and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed() {
		return ErrSessionClosed
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event, bounded by the navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: navigation to %s failed: %w", url, err)
	}
	return s.stabilize(navCtx)
}

// stabilize waits until the document reports it has finished loading.
func (s *Session) stabilize(ctx context.Context) error {
	var ready bool
	err := s.run(ctx, chromedp.Poll(`document.readyState === "complete"`, &ready,
		chromedp.WithPollingInterval(s.timeouts.PollInterval)))
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("browser: page did not settle: %w", err)
	}
	return nil
}

// Location returns the URL of the current page.
func (s *Session) Location(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("browser: could not read location: %w", err)
	}
	return u, nil
}

// HTML returns the serialized markup of the current document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var markup string
	if err := s.run(ctx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("browser: could not capture DOM: %w", err)
	}
	return markup, nil
}

// Evaluate runs a JavaScript expression in the page and decodes its result into res.
func (s *Session) Evaluate(ctx context.Context, script string, res interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

// Cookies exports the cookies the browser holds for the given URLs (all
// cookies of the current page when none are given).
func (s *Session) Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		req := network.GetCookies()
		if len(urls) > 0 {
			req = req.WithURLs(urls)
		}
		var err error
		raw, err = req.Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("browser: could not export cookies: %w", err)
	}
	return ConvertCookies(raw), nil
}

// ConvertCookies maps CDP cookies onto net/http cookies.
func ConvertCookies(raw []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// Screenshot writes a PNG of the viewport into the debug directory. It is a
// no-op returning "" when no debug directory is configured.
func (s *Session) Screenshot(ctx context.Context, name string) (string, error) {
	if s.debugDir == "" {
		return "", nil
	}
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("browser: screenshot failed: %w", err)
	}
	if err := os.MkdirAll(s.debugDir, 0o755); err != nil {
		return "", fmt.Errorf("browser: could not create debug dir: %w", err)
	}
	path := filepath.Join(s.debugDir, ScreenshotName(s.id, name))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("browser: could not write screenshot: %w", err)
	}
	s.logger.Info("Saved debug screenshot.", zap.String("path", path))
	return path, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ScreenshotName builds a filesystem-safe file name for a screenshot.
func ScreenshotName(sessionID, name string) string {
	clean := unsafeNameChars.ReplaceAllString(name, "_")
	if clean == "" {
		clean = "page"
	}
	return fmt.Sprintf("%s-%s-%d.png", sessionID, clean, time.Now().UnixMilli())
}

// Sleep pauses for d or until ctx is done.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
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

// CombineContext creates a context that is canceled when either parent or
// secondary is done. Values come from parent.
func CombineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
