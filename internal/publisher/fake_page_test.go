package publisher

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scribe-cli/internal/browser"
	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
	"github.com/xkilldash9x/scribe-cli/internal/config"
)

// fakePage is an in-memory page. Elements are identified by the compiled
// query of a catalog candidate; clicking one runs the reaction registered
// for it, which is how tests script the platform's behaviour.
type fakePage struct {
	t        *testing.T
	resolver *locator.Resolver

	mu          sync.Mutex
	visible     map[string]bool
	texts       map[string]string
	reactions   map[string]func(p *fakePage)
	filled      map[string]string
	clicked     []string
	location    string
	navigations []string
	onNavigate  func(p *fakePage, url string)
	links       map[string][]browser.Link
	html        string
	cookies     []*http.Cookie

	closeCount atomic.Int32
}

func newFakePage(t *testing.T) *fakePage {
	return &fakePage{
		t:         t,
		resolver:  locator.NewResolver(nil, 5*time.Millisecond),
		visible:   map[string]bool{},
		texts:     map[string]string{},
		reactions: map[string]func(p *fakePage){},
		filled:    map[string]string{},
		links:     map[string][]browser.Link{},
	}
}

func query(t *testing.T, set locator.Set, idx int) string {
	t.Helper()
	sel, err := set.Candidates[idx].Compile()
	require.NoError(t, err)
	return sel.Query
}

// show makes candidate idx of set present.
func (p *fakePage) show(set locator.Set, idx int) *fakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible[query(p.t, set, idx)] = true
	return p
}

func (p *fakePage) hide(set locator.Set, idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.visible, query(p.t, set, idx))
}

func (p *fakePage) setText(set locator.Set, idx int, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[query(p.t, set, idx)] = text
}

// on registers what happens when candidate idx of set is clicked.
func (p *fakePage) on(set locator.Set, idx int, reaction func(p *fakePage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions[query(p.t, set, idx)] = reaction
}

func (p *fakePage) filledValue(set locator.Set, idx int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.filled[query(p.t, set, idx)]
	return v, ok
}

func (p *fakePage) wasClicked(set locator.Set, idx int) bool {
	q := query(p.t, set, idx)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clicked {
		if c == q {
			return true
		}
	}
	return false
}

func (p *fakePage) Present(ctx context.Context, sel locator.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[sel.Query], nil
}

func (p *fakePage) ID() string        { return "fake-session" }
func (p *fakePage) UserAgent() string { return "fake-agent" }
func (p *fakePage) AcceptLanguage() string { return "zh-CN,zh;q=0.9" }

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	p.navigations = append(p.navigations, url)
	p.location = url
	hook := p.onNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) setLocation(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = u
}

// The fake DOM only changes in response to actions, so resolving without
// waiting gives the same answer the real resolver would.
func (p *fakePage) resolve(ctx context.Context, set locator.Set) (locator.Match, error) {
	if m, ok := p.resolver.First(ctx, p, set); ok {
		return m, nil
	}
	return locator.Match{}, &locator.NotFoundError{Set: set.Name}
}

func (p *fakePage) Fill(ctx context.Context, set locator.Set, value string) (locator.Match, error) {
	m, err := p.resolve(ctx, set)
	if err != nil {
		return m, err
	}
	p.mu.Lock()
	p.filled[m.Selector.Query] = value
	p.mu.Unlock()
	return m, nil
}

func (p *fakePage) Click(ctx context.Context, set locator.Set) (locator.Match, error) {
	m, err := p.resolve(ctx, set)
	if err != nil {
		return m, err
	}
	return m, p.ClickSelector(ctx, m.Selector)
}

func (p *fakePage) ClickSelector(_ context.Context, sel locator.Selector) error {
	p.mu.Lock()
	if !p.visible[sel.Query] {
		p.mu.Unlock()
		return fmt.Errorf("fake: %s not clickable", sel)
	}
	p.clicked = append(p.clicked, sel.Query)
	reaction := p.reactions[sel.Query]
	p.mu.Unlock()
	if reaction != nil {
		reaction(p)
	}
	return nil
}

func (p *fakePage) Exists(ctx context.Context, set locator.Set) (locator.Match, bool) {
	return p.resolver.First(ctx, p, set)
}

func (p *fakePage) WaitFor(ctx context.Context, timeout time.Duration, sets ...locator.Set) (int, locator.Match, error) {
	return p.resolver.Race(ctx, p, timeout, sets...)
}

func (p *fakePage) Text(_ context.Context, sel locator.Selector) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts[sel.Query], nil
}

func (p *fakePage) Links(_ context.Context, container locator.Selector) ([]browser.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[container.Query], nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Cookies(context.Context, ...string) ([]*http.Cookie, error) {
	return p.cookies, nil
}

func (p *fakePage) Screenshot(context.Context, string) (string, error) { return "", nil }

func (p *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (p *fakePage) Close() error {
	p.closeCount.Add(1)
	return nil
}

// testConfig returns a configuration with waits short enough for unit tests.
func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.PlatformCfg.BaseURL = "https://writer.example.com"
	cfg.TimeoutCfg.Locator = 300 * time.Millisecond
	cfg.TimeoutCfg.Navigation = 200 * time.Millisecond
	cfg.TimeoutCfg.LoginConfirm = 200 * time.Millisecond
	cfg.TimeoutCfg.AutosaveSettle = 0
	cfg.TimeoutCfg.Verify = 200 * time.Millisecond
	cfg.TimeoutCfg.PollInterval = 5 * time.Millisecond
	cfg.TimeoutCfg.Fetch = time.Second
	cfg.TimeoutCfg.Operation = 10 * time.Second
	return cfg
}

const (
	goodIdentity = "writer@example.com"
	goodSecret   = "correct-horse"
	platformErr  = "账号或密码错误"
)

// newPlatformPage scripts the full happy path of the writer platform:
// login menu, password mode, credential form, dashboard, new chapter
// editor, publish confirmation and success toast.
func newPlatformPage(t *testing.T, cat Catalog) *fakePage {
	p := newFakePage(t)
	p.show(cat.LoginMenu, 1)
	p.on(cat.LoginMenu, 1, func(p *fakePage) { p.show(cat.EntryMode, 0) })
	p.on(cat.EntryMode, 0, func(p *fakePage) {
		p.show(cat.Identity, 0).show(cat.Secret, 2).show(cat.LoginSubmit, 0)
	})
	p.on(cat.LoginSubmit, 0, func(p *fakePage) {
		id, _ := p.filledValue(cat.Identity, 0)
		secret, _ := p.filledValue(cat.Secret, 2)
		if id == goodIdentity && secret == goodSecret {
			p.show(cat.Dashboard, 1).show(cat.NewChapter, 0)
			return
		}
		p.show(cat.LoginFailure, 1)
		p.setText(cat.LoginFailure, 1, platformErr)
	})
	p.on(cat.NewChapter, 0, func(p *fakePage) {
		p.show(cat.Title, 0).show(cat.Body, 0).show(cat.Publish, 0)
	})
	p.on(cat.Publish, 0, func(p *fakePage) { p.show(cat.ConfirmDialog, 0) })
	p.on(cat.ConfirmDialog, 0, func(p *fakePage) {
		p.hide(cat.ConfirmDialog, 0)
		p.show(cat.PublishSuccess, 0)
	})
	return p
}

// factoryFor hands out the given pages in order and counts how many were opened.
func factoryFor(pages ...*fakePage) (SessionFactory, *atomic.Int32) {
	var opened atomic.Int32
	return func(context.Context) (Page, error) {
		i := int(opened.Add(1)) - 1
		if i >= len(pages) {
			return nil, fmt.Errorf("no more fake pages")
		}
		return pages[i], nil
	}, &opened
}
