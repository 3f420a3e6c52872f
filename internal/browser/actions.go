package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
)

// clickWait bounds the real mouse click before falling back to element.click().
const clickWait = 5 * time.Second

// Link is an anchor discovered in the page.
type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// Present reports whether sel currently matches an element that is rendered
// and not hidden. It never waits, which makes Session a locator.Probe.
func (s *Session) Present(ctx context.Context, sel locator.Selector) (bool, error) {
	var visible bool
	if err := s.Evaluate(ctx, presentScript(sel), &visible); err != nil {
		return false, fmt.Errorf("browser: probe %s failed: %w", sel, err)
	}
	return visible, nil
}

func presentScript(sel locator.Selector) string {
	return fmt.Sprintf(`(() => {
  const el = %s;
  if (!el || !(el instanceof Element)) return false;
  const st = window.getComputedStyle(el);
  if (st.display === 'none' || st.visibility === 'hidden') return false;
  return el.getClientRects().length > 0;
})()`, sel.JSElement())
}

// FillSelector writes value into the element matched by sel.
func (s *Session) FillSelector(ctx context.Context, sel locator.Selector, value string) error {
	var mode string
	if err := s.Evaluate(ctx, fillScript(sel, value), &mode); err != nil {
		return fmt.Errorf("browser: fill %s failed: %w", sel, err)
	}
	switch {
	case mode == "missing":
		return fmt.Errorf("browser: fill %s failed: element disappeared", sel)
	case strings.HasPrefix(mode, "unsupported"):
		return fmt.Errorf("browser: fill %s failed: %s element is not editable", sel, strings.TrimPrefix(mode, "unsupported:"))
	}
	s.logger.Debug("Filled element.", zap.Stringer("selector", sel), zap.String("mode", mode), zap.Int("length", len([]rune(value))))
	return nil
}

// fillScript handles plain form controls through the native value setter, so
// reactive frameworks observe the change, and rich editors through insertText.
func fillScript(sel locator.Selector, value string) string {
	encoded, _ := json.Marshal(value)
	return fmt.Sprintf(`((value) => {
  let el = %s;
  if (!el) return "missing";
  const editable = (n) => n && (n.isContentEditable || ['input', 'textarea'].includes(n.tagName.toLowerCase()));
  if (!editable(el)) {
    const inner = el.querySelector('[contenteditable="true"], textarea, input:not([type="hidden"])');
    if (!inner) return "unsupported:" + el.tagName.toLowerCase();
    el = inner;
  }
  el.scrollIntoView({block: 'center'});
  el.focus();
  const tag = el.tagName.toLowerCase();
  if (tag === 'input' || tag === 'textarea') {
    const proto = tag === 'input' ? HTMLInputElement.prototype : HTMLTextAreaElement.prototype;
    Object.getOwnPropertyDescriptor(proto, 'value').set.call(el, value);
    el.dispatchEvent(new Event('input', {bubbles: true}));
    el.dispatchEvent(new Event('change', {bubbles: true}));
    return "value";
  }
  const range = document.createRange();
  range.selectNodeContents(el);
  const selection = window.getSelection();
  selection.removeAllRanges();
  selection.addRange(range);
  let inserted = false;
  try { inserted = document.execCommand('insertText', false, value); } catch (e) {}
  if (!inserted || el.innerText.trim().length === 0) {
    el.innerText = value;
    el.dispatchEvent(new InputEvent('input', {bubbles: true}));
    return "innerText";
  }
  return "insertText";
})(%s)`, sel.JSElement(), encoded)
}

// ClickSelector clicks the element matched by sel with a real mouse event,
// falling back to element.click() when the CDP click cannot complete.
func (s *Session) ClickSelector(ctx context.Context, sel locator.Selector) error {
	by := chromedp.ByQuery
	if sel.Kind == locator.QueryXPath {
		by = chromedp.BySearch
	}
	clickCtx, cancel := context.WithTimeout(ctx, clickWait)
	err := s.run(clickCtx, chromedp.Click(sel.Query, by, chromedp.NodeVisible))
	cancel()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Debug("CDP click failed, falling back to element.click().", zap.Stringer("selector", sel), zap.Error(err))

	var clicked bool
	script := fmt.Sprintf(`(() => { const el = %s; if (!el) return false; el.scrollIntoView({block: 'center'}); el.click(); return true; })()`, sel.JSElement())
	if jsErr := s.Evaluate(ctx, script, &clicked); jsErr != nil {
		return fmt.Errorf("browser: click %s failed: %w", sel, jsErr)
	}
	if !clicked {
		return fmt.Errorf("browser: click %s failed: element disappeared", sel)
	}
	return nil
}

// Fill resolves set and writes value into the element it matches.
func (s *Session) Fill(ctx context.Context, set locator.Set, value string) (locator.Match, error) {
	m, err := s.resolver.Resolve(ctx, s, set, s.timeouts.Locator)
	if err != nil {
		return locator.Match{}, err
	}
	return m, s.FillSelector(ctx, m.Selector, value)
}

// Click resolves set and clicks the element it matches.
func (s *Session) Click(ctx context.Context, set locator.Set) (locator.Match, error) {
	m, err := s.resolver.Resolve(ctx, s, set, s.timeouts.Locator)
	if err != nil {
		return locator.Match{}, err
	}
	return m, s.ClickSelector(ctx, m.Selector)
}

// Exists checks every candidate of set once, without waiting.
func (s *Session) Exists(ctx context.Context, set locator.Set) (locator.Match, bool) {
	return s.resolver.First(ctx, s, set)
}

// WaitFor blocks until an element of any set is present, returning the index of that set.
func (s *Session) WaitFor(ctx context.Context, timeout time.Duration, sets ...locator.Set) (int, locator.Match, error) {
	return s.resolver.Race(ctx, s, timeout, sets...)
}

// Text returns the trimmed visible text of the element matched by sel.
func (s *Session) Text(ctx context.Context, sel locator.Selector) (string, error) {
	var text string
	script := fmt.Sprintf(`(() => { const el = %s; return el ? (el.innerText || el.textContent || '').trim() : ''; })()`, sel.JSElement())
	if err := s.Evaluate(ctx, script, &text); err != nil {
		return "", fmt.Errorf("browser: read text of %s failed: %w", sel, err)
	}
	return text, nil
}

// Links returns every anchor inside the elements matched by container. An
// anchor matched directly is returned itself.
func (s *Session) Links(ctx context.Context, container locator.Selector) ([]Link, error) {
	var links []Link
	script := fmt.Sprintf(`(() => {
  const out = [];
  for (const c of %s) {
    if (!(c instanceof Element)) continue;
    const anchors = c.tagName === 'A' ? [c] : Array.from(c.querySelectorAll('a[href]'));
    for (const a of anchors) {
      if (!a.href) continue;
      out.push({href: a.href, text: (a.innerText || a.textContent || a.getAttribute('title') || '').trim()});
    }
  }
  return out;
})()`, container.JSAll())
	if err := s.Evaluate(ctx, script, &links); err != nil {
		return nil, fmt.Errorf("browser: enumerate links under %s failed: %w", container, err)
	}
	return links, nil
}
