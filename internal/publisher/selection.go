// internal/publisher/selection.go
package publisher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
	"github.com/xkilldash9x/scribe-cli/internal/config"
)

// Selection strategies, in the order they are tried.
const (
	strategyAlreadyOnPage = "already_on_page"
	strategyLinkClick     = "link_click"
	strategyDirectURL     = "direct_url"
)

// selector opens the work a chapter should be added to.
type selector struct {
	page     Page
	platform config.PlatformConfig
	timeouts config.TimeoutConfig
	logger   *zap.Logger
}

func newSelector(page Page, cfg config.Interface, logger *zap.Logger) *selector {
	return &selector{
		page:     page,
		platform: cfg.Platform(),
		timeouts: cfg.Timeouts(),
		logger:   logger.Named("selection"),
	}
}

// Run makes target the current work. Every strategy that navigates is
// followed by a check that the URL now names the target.
func (s *selector) Run(ctx context.Context, target TargetRef) (StageOutcome, error) {
	outcome := StageOutcome{Stage: StageSelection}
	var tried []string

	tried = append(tried, strategyAlreadyOnPage)
	if loc, err := s.page.Location(ctx); err == nil && URLNamesWork(loc, target.ID, s.platform) {
		return s.succeed(outcome, 0, strategyAlreadyOnPage), nil
	}

	tried = append(tried, strategyLinkClick)
	if m, ok := s.page.Exists(ctx, WorkLinkSet(target.ID, s.platform.WorkLinkPattern)); ok {
		if err := s.page.ClickSelector(ctx, m.Selector); err != nil {
			s.logger.Debug("Work link click failed.", zap.Error(err))
		} else if s.awaitURL(ctx, target.ID) {
			return s.succeed(outcome, 1, strategyLinkClick), nil
		}
	}

	tried = append(tried, strategyDirectURL)
	if err := s.page.Navigate(ctx, s.platform.WorkURL(target.ID)); err != nil {
		s.logger.Debug("Direct navigation to work failed.", zap.Error(err))
	} else if s.awaitURL(ctx, target.ID) {
		return s.succeed(outcome, 2, strategyDirectURL), nil
	}

	err := &SelectionError{TargetID: target.ID, Tried: tried}
	outcome.Diagnostic = err.Error()
	return outcome, err
}

func (s *selector) succeed(o StageOutcome, idx int, strategy string) StageOutcome {
	s.logger.Debug("Target work selected.", zap.String("strategy", strategy))
	o.Succeeded = true
	o.MatchedIndex = intPtr(idx)
	o.Diagnostic = "selected via " + strategy
	return o
}

// awaitURL polls the location until it names id, bounded by the navigation timeout.
func (s *selector) awaitURL(ctx context.Context, id string) bool {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()
	ticker := time.NewTicker(s.timeouts.PollInterval)
	defer ticker.Stop()
	for {
		if loc, err := s.page.Location(waitCtx); err == nil && URLNamesWork(loc, id, s.platform) {
			return true
		}
		select {
		case <-waitCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// WorkLinkSet builds the locator set for anchors pointing at work id.
func WorkLinkSet(id, linkPattern string) locator.Set {
	candidates := []locator.Candidate{}
	if linkPattern != "" {
		candidates = append(candidates, locator.AttrContains("href", linkPattern+id).On("a"))
	}
	candidates = append(candidates,
		locator.AttrContains("href", "/"+id+"/").On("a"),
		locator.AttrContains("href", "id="+id).On("a"),
		locator.CSS(`a[data-work-id="`+id+`"], [data-work-id="`+id+`"] a`),
	)
	return locator.NewSet("work link "+id, candidates...)
}

// workIDQueryKeys are the query parameters a platform may name a work by.
var workIDQueryKeys = map[string]bool{
	"id": true, "work_id": true, "workid": true, "book_id": true, "bookid": true, "novel_id": true,
}

// URLNamesWork reports whether raw is a page of work id: the ID sits at the
// {id} position of the work URL template, directly follows the work link
// pattern, or is the value of a work ID query parameter. An ID that merely
// appears elsewhere in the URL does not count.
func URLNamesWork(raw, id string, platform config.PlatformConfig) bool {
	if id == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if templateMatches(u.Path, id, platform.WorkURLTemplate) {
		return true
	}
	if pattern := platform.WorkLinkPattern; pattern != "" {
		if i := strings.Index(u.Path, pattern); i >= 0 {
			rest := u.Path[i+len(pattern):]
			if rest == id || strings.HasPrefix(rest, id+"/") {
				return true
			}
		}
	}
	for key, values := range u.Query() {
		if !workIDQueryKeys[strings.ToLower(key)] {
			continue
		}
		for _, v := range values {
			if v == id {
				return true
			}
		}
	}
	return false
}

// templateMatches compares path against the path of template segment by
// segment up to and including the {id} placeholder.
func templateMatches(path, id, template string) bool {
	if t, err := url.Parse(template); err == nil {
		template = t.Path
	}
	want := pathSegments(strings.ReplaceAll(template, "%7Bid%7D", "{id}"))
	got := pathSegments(path)
	for i, seg := range want {
		if i >= len(got) {
			return false
		}
		if seg == "{id}" {
			return got[i] == id
		}
		if got[i] != seg {
			return false
		}
	}
	return false
}

func pathSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
