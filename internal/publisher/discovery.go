// internal/publisher/discovery.go
package publisher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/scribe-cli/internal/config"
	"github.com/xkilldash9x/scribe-cli/internal/network"
)

// PageFetcher retrieves a page over plain HTTP.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*network.Page, error)
}

// FetcherFactory builds a PageFetcher that presents the browser's identity.
type FetcherFactory func(seedURL string, cookies []*http.Cookie, userAgent, acceptLanguage string) (PageFetcher, error)

// NewNetworkFetcherFactory returns a FetcherFactory backed by network.Fetcher.
func NewNetworkFetcherFactory(clientCfg *network.ClientConfig) FetcherFactory {
	return func(seedURL string, cookies []*http.Cookie, userAgent, acceptLanguage string) (PageFetcher, error) {
		return network.NewFetcher(clientCfg, seedURL, cookies, userAgent, acceptLanguage)
	}
}

// discoverer lists the caller's works, cheapest strategy first.
type discoverer struct {
	page     Page
	catalog  *Catalog
	platform config.PlatformConfig
	timeouts config.TimeoutConfig
	fetchers FetcherFactory
	logger   *zap.Logger
}

func newDiscoverer(page Page, catalog *Catalog, cfg config.Interface, fetchers FetcherFactory, logger *zap.Logger) *discoverer {
	return &discoverer{
		page:     page,
		catalog:  catalog,
		platform: cfg.Platform(),
		timeouts: cfg.Timeouts(),
		fetchers: fetchers,
		logger:   logger.Named("discovery"),
	}
}

// Run never fails: problems are reported in the outcome and an empty list
// is a valid result.
func (d *discoverer) Run(ctx context.Context) ([]Work, StageOutcome) {
	outcome := StageOutcome{Stage: StageDiscovery, Succeeded: true}

	works, source := d.scanMarkup(ctx)
	if len(works) > 0 {
		outcome.Diagnostic = fmt.Sprintf("%d works from %s", len(works), source)
		return works, outcome
	}

	works, idx := d.enumerate(ctx)
	if idx >= 0 {
		outcome.MatchedIndex = intPtr(idx)
	}
	outcome.Diagnostic = fmt.Sprintf("%d works from in-browser enumeration", len(works))
	return works, outcome
}

// scanMarkup is the first tier: fetch the works page with the browser's
// cookies and scan the markup, or scan the browser's current DOM when the
// fetch fails.
func (d *discoverer) scanMarkup(ctx context.Context) ([]Work, string) {
	worksURL := d.platform.WorksURL()
	markup, base, source := "", worksURL, "http fetch"

	if page, err := d.fetch(ctx, worksURL); err == nil {
		markup, base = page.Body, page.URL
	} else {
		d.logger.Debug("Works page fetch failed; scanning the current DOM.", zap.Error(err))
		source = "dom snapshot"
		snapshot, err := d.page.HTML(ctx)
		if err != nil {
			d.logger.Debug("DOM snapshot failed.", zap.Error(err))
			return nil, source
		}
		markup = snapshot
		if loc, err := d.page.Location(ctx); err == nil {
			base = loc
		}
	}

	works, err := ScanWorks(markup, base, d.platform.WorkLinkPattern, d.catalog.WorkIDAttrs)
	if err != nil {
		d.logger.Debug("Markup scan failed.", zap.Error(err))
		return nil, source
	}
	return works, source
}

func (d *discoverer) fetch(ctx context.Context, worksURL string) (*network.Page, error) {
	if d.fetchers == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	cookies, err := d.page.Cookies(ctx, worksURL)
	if err != nil {
		return nil, err
	}
	f, err := d.fetchers(worksURL, cookies, d.page.UserAgent(), d.page.AcceptLanguage())
	if err != nil {
		return nil, err
	}
	fetchCtx, cancel := context.WithTimeout(ctx, d.timeouts.Fetch)
	defer cancel()
	return f.Fetch(fetchCtx, worksURL)
}

// enumerate is the second tier: walk anchors under the known containers in
// the live page, opening the "my works" navigation once if nothing matches.
// It returns the index of the container candidate that produced works, or -1.
func (d *discoverer) enumerate(ctx context.Context) ([]Work, int) {
	if works, idx := d.enumerateContainers(ctx); len(works) > 0 {
		return works, idx
	}
	if _, err := d.page.Click(ctx, d.catalog.MyWorksNav); err != nil {
		d.logger.Debug("No my-works navigation entry.", zap.Error(err))
		return []Work{}, -1
	}
	// The list may render after the navigation settles.
	if _, _, err := d.page.WaitFor(ctx, d.timeouts.Locator, d.catalog.WorkContainers); err != nil {
		d.logger.Debug("No work container appeared after navigation.", zap.Error(err))
	}
	works, idx := d.enumerateContainers(ctx)
	if works == nil {
		works = []Work{}
	}
	return works, idx
}

func (d *discoverer) enumerateContainers(ctx context.Context) ([]Work, int) {
	for i, c := range d.catalog.WorkContainers.Candidates {
		sel, err := c.Compile()
		if err != nil {
			continue
		}
		if ok, err := d.page.Present(ctx, sel); err != nil || !ok {
			continue
		}
		links, err := d.page.Links(ctx, sel)
		if err != nil {
			d.logger.Debug("Link enumeration failed.", zap.Stringer("container", sel), zap.Error(err))
			continue
		}
		var found []Work
		for _, l := range links {
			if w, ok := workFromAnchor(l.Href, l.Text, "", d.platform.WorkLinkPattern); ok {
				found = append(found, w)
			}
		}
		if found = DedupeWorks(found); len(found) > 0 {
			return found, i
		}
	}
	return nil, -1
}

// ScanWorks extracts works from markup: anchors whose href contains
// linkPattern, and elements carrying one of idAttrs. Relative links are
// resolved against base. The result is deduplicated by ID.
func ScanWorks(markup, base, linkPattern string, idAttrs []string) ([]Work, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse works markup: %w", err)
	}

	var works []Work
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.DataAtom == atom.A {
				if w, ok := workFromAnchor(attr(n, "href"), nodeText(n, "title"), base, linkPattern); ok {
					works = append(works, w)
				}
			} else if id := firstAttr(n, idAttrs); id != "" {
				works = append(works, workFromItem(n, id, base, linkPattern))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return DedupeWorks(works), nil
}

// workFromItem builds a work from a list item that carries its ID in an
// attribute. Title and URL come from the item's canonical work link; a link
// to one of the work's sub-pages only supplies the URL.
func workFromItem(n *html.Node, id, base, linkPattern string) Work {
	w := Work{ID: id}
	var find func(*html.Node) bool
	find = func(c *html.Node) bool {
		if c.Type == html.ElementNode && c.DataAtom == atom.A {
			if lw, ok := WorkFromLink(attr(c, "href"), nodeText(c, "title"), base, linkPattern); ok && lw.ID == id {
				if IsCanonicalWorkURL(lw.URL, id) {
					w.Title, w.URL = lw.Title, lw.URL
					return true
				}
				if w.URL == "" {
					w.URL = lw.URL
				}
			}
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			if find(ch) {
				return true
			}
		}
		return false
	}
	find(n)
	if w.Title == "" {
		w.Title = nodeText(n, "title")
	}
	return w
}

// workFromAnchor is WorkFromLink for discovery: an anchor to a sub-page of a
// work, such as its "new chapter" action, identifies the work but its text
// is not the work's title.
func workFromAnchor(href, text, base, linkPattern string) (Work, bool) {
	w, ok := WorkFromLink(href, text, base, linkPattern)
	if ok && !IsCanonicalWorkURL(w.URL, w.ID) {
		w.Title = ""
	}
	return w, ok
}

// IsCanonicalWorkURL reports whether raw is the work's own page, that is
// its last path segment is id.
func IsCanonicalWorkURL(raw, id string) bool {
	if raw == "" || id == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	last, err := url.PathUnescape(p[strings.LastIndex(p, "/")+1:])
	return err == nil && last == id
}

// WorkFromLink derives a work from an anchor. The ID is the path segment
// that follows linkPattern; links to pages that are not a specific work
// (for example the "new" form) are rejected.
func WorkFromLink(href, text, base, linkPattern string) (Work, bool) {
	href = strings.TrimSpace(href)
	if href == "" || linkPattern == "" {
		return Work{}, false
	}
	u, err := url.Parse(href)
	if err != nil {
		return Work{}, false
	}
	if base != "" {
		if b, err := url.Parse(base); err == nil {
			u = b.ResolveReference(u)
		}
	}
	full := u.String()
	i := strings.Index(full, linkPattern)
	if i < 0 {
		return Work{}, false
	}
	rest := full[i+len(linkPattern):]
	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		rest = rest[:cut]
	}
	id, err := url.PathUnescape(rest)
	if err != nil || id == "" || reservedSegments[strings.ToLower(id)] {
		return Work{}, false
	}
	return Work{ID: id, Title: strings.Join(strings.Fields(text), " "), URL: full}, true
}

var reservedSegments = map[string]bool{"new": true, "create": true, "list": true, "drafts": true}

// DedupeWorks keeps one entry per ID in first-seen order. A work's
// canonical link supplies its title and URL over any sub-page link seen
// earlier; otherwise missing fields are filled from later duplicates.
func DedupeWorks(works []Work) []Work {
	out := make([]Work, 0, len(works))
	pos := make(map[string]int, len(works))
	canonical := make(map[string]bool, len(works))
	for _, w := range works {
		c := IsCanonicalWorkURL(w.URL, w.ID)
		i, seen := pos[w.ID]
		if !seen {
			pos[w.ID] = len(out)
			canonical[w.ID] = c
			out = append(out, w)
			continue
		}
		if c && !canonical[w.ID] {
			canonical[w.ID] = true
			out[i].URL = w.URL
			if w.Title != "" {
				out[i].Title = w.Title
			}
			continue
		}
		if out[i].Title == "" {
			out[i].Title = w.Title
		}
		if out[i].URL == "" {
			out[i].URL = w.URL
		}
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func firstAttr(n *html.Node, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attr(n, k)); v != "" {
			return v
		}
	}
	return ""
}

// nodeText returns the collapsed text content of n, or the fallback
// attribute when n has no text.
func nodeText(n *html.Node, fallbackAttr string) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			return
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			collect(ch)
		}
	}
	collect(n)
	text := strings.Join(strings.Fields(b.String()), " ")
	if text == "" && fallbackAttr != "" {
		text = strings.TrimSpace(attr(n, fallbackAttr))
	}
	return text
}
