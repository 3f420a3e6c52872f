package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MinCandidateWait is the smallest window any single candidate is given.
const MinCandidateWait = 250 * time.Millisecond

// DefaultPollInterval is used when a Resolver is built with a zero interval.
const DefaultPollInterval = 200 * time.Millisecond

// Set is the ordered list of alternatives for one logical UI target.
type Set struct {
	Name       string      `json:"name" yaml:"name"`
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
}

// NewSet builds a Set. Earlier candidates take priority.
func NewSet(name string, candidates ...Candidate) Set {
	return Set{Name: name, Candidates: candidates}
}

func (s Set) Len() int { return len(s.Candidates) }

// Probe checks, without waiting, whether a selector currently resolves to a visible element.
type Probe interface {
	Present(ctx context.Context, sel Selector) (bool, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context, sel Selector) (bool, error)

func (f ProbeFunc) Present(ctx context.Context, sel Selector) (bool, error) { return f(ctx, sel) }

// Match reports which candidate of a set resolved.
type Match struct {
	Set       string
	Index     int
	Candidate Candidate
	Selector  Selector
}

// Attempt records why one candidate did not resolve.
type Attempt struct {
	Index     int
	Candidate Candidate
	Reason    string
}

// ErrNotFound is matched by every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("locator: element not found")

// NotFoundError is returned when every candidate of a set was exhausted.
type NotFoundError struct {
	Set      string
	Attempts []Attempt
}

func (e *NotFoundError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("#%d %s (%s)", a.Index, a.Candidate, a.Reason))
	}
	return fmt.Sprintf("locator: no candidate for %q resolved; tried %s", e.Set, strings.Join(parts, ", "))
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Resolver walks candidate lists against a Probe.
type Resolver struct {
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewResolver creates a Resolver. A nil logger is replaced with a no-op logger.
func NewResolver(logger *zap.Logger, pollInterval time.Duration) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Resolver{logger: logger.Named("locator"), pollInterval: pollInterval}
}

// CandidateWindow is the share of timeout each of n candidates receives.
func CandidateWindow(timeout time.Duration, n int) time.Duration {
	if n <= 0 {
		return 0
	}
	w := timeout / time.Duration(n)
	if w < MinCandidateWait {
		w = MinCandidateWait
	}
	return w
}

// Resolve tries each candidate of set in order, giving each a bounded window
// to appear. It returns the first candidate that resolves. Because candidates
// are tried strictly in order, a later candidate never wins over an earlier
// one that resolves within its window.
//
// Windows never extend past timeout. Candidates reached after the budget is
// spent get a single immediate check.
func (r *Resolver) Resolve(ctx context.Context, probe Probe, set Set, timeout time.Duration) (Match, error) {
	nf := &NotFoundError{Set: set.Name}
	window := CandidateWindow(timeout, set.Len())
	deadline := time.Now().Add(timeout)

	for i, c := range set.Candidates {
		if err := ctx.Err(); err != nil {
			nf.Attempts = append(nf.Attempts, Attempt{Index: i, Candidate: c, Reason: "context done: " + err.Error()})
			continue
		}
		sel, err := c.Compile()
		if err != nil {
			nf.Attempts = append(nf.Attempts, Attempt{Index: i, Candidate: c, Reason: err.Error()})
			continue
		}

		w := window
		if remaining := time.Until(deadline); remaining < w {
			w = remaining
		}
		var found bool
		var reason string
		if w > 0 {
			found, reason = r.await(ctx, probe, sel, w)
		} else {
			found, reason = r.check(ctx, probe, sel)
		}
		if found {
			r.logger.Debug("Locator resolved.",
				zap.String("set", set.Name),
				zap.Int("index", i),
				zap.Stringer("selector", sel))
			return Match{Set: set.Name, Index: i, Candidate: c, Selector: sel}, nil
		}
		nf.Attempts = append(nf.Attempts, Attempt{Index: i, Candidate: c, Reason: reason})
	}

	r.logger.Debug("Locator set exhausted.", zap.String("set", set.Name), zap.Int("candidates", set.Len()))
	return Match{}, nf
}

// await polls a single selector until it is present or the window closes.
func (r *Resolver) await(ctx context.Context, probe Probe, sel Selector, window time.Duration) (bool, string) {
	waitCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	lastReason := "not present"
	for {
		ok, err := probe.Present(waitCtx, sel)
		if err == nil && ok {
			return true, ""
		}
		if err != nil {
			lastReason = err.Error()
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return false, "context done: " + ctx.Err().Error()
			}
			return false, fmt.Sprintf("%s after %s", lastReason, window)
		case <-ticker.C:
		}
	}
}

// check probes sel once, without waiting.
func (r *Resolver) check(ctx context.Context, probe Probe, sel Selector) (bool, string) {
	ok, err := probe.Present(ctx, sel)
	switch {
	case err != nil:
		return false, err.Error()
	case ok:
		return true, ""
	default:
		return false, "not present, locator budget spent"
	}
}

// Race polls every candidate of every set each round until one is present or
// timeout elapses. It is used where several independent indicators may show
// up (a dashboard element, an error banner, a success toast) and whichever
// appears first decides the outcome. The returned int is the index of the
// set that matched. Within a round, earlier sets and earlier candidates win.
func (r *Resolver) Race(ctx context.Context, probe Probe, timeout time.Duration, sets ...Set) (int, Match, error) {
	type compiled struct {
		set, idx int
		cand     Candidate
		sel      Selector
	}
	var all []compiled
	names := make([]string, 0, len(sets))
	for si, s := range sets {
		names = append(names, s.Name)
		for ci, c := range s.Candidates {
			sel, err := c.Compile()
			if err != nil {
				r.logger.Warn("Skipping uncompilable candidate.", zap.String("set", s.Name), zap.Int("index", ci), zap.Error(err))
				continue
			}
			all = append(all, compiled{set: si, idx: ci, cand: c, sel: sel})
		}
	}

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		for _, c := range all {
			if raceCtx.Err() != nil {
				break
			}
			ok, err := probe.Present(raceCtx, c.sel)
			if err == nil && ok {
				return c.set, Match{Set: sets[c.set].Name, Index: c.idx, Candidate: c.cand, Selector: c.sel}, nil
			}
		}
		select {
		case <-raceCtx.Done():
			nf := &NotFoundError{Set: strings.Join(names, "|")}
			for _, c := range all {
				nf.Attempts = append(nf.Attempts, Attempt{Index: c.idx, Candidate: c.cand, Reason: "not present within " + timeout.String()})
			}
			return -1, Match{}, nf
		case <-ticker.C:
		}
	}
}

// First checks each candidate of set exactly once, in order, without waiting.
func (r *Resolver) First(ctx context.Context, probe Probe, set Set) (Match, bool) {
	for i, c := range set.Candidates {
		if ctx.Err() != nil {
			return Match{}, false
		}
		sel, err := c.Compile()
		if err != nil {
			continue
		}
		if ok, err := probe.Present(ctx, sel); err == nil && ok {
			return Match{Set: set.Name, Index: i, Candidate: c, Selector: sel}, true
		}
	}
	return Match{}, false
}
