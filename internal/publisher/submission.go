// internal/publisher/submission.go
package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
	"github.com/xkilldash9x/scribe-cli/internal/config"
)

// submissionReport is what the submission stage adds to a WorkflowResult.
type submissionReport struct {
	State    PublishState
	Verified bool
	Warnings []string
}

func (r *submissionReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// submitter enters a chapter into the editor and tries to publish it.
type submitter struct {
	page     Page
	catalog  *Catalog
	platform config.PlatformConfig
	timeouts config.TimeoutConfig
	logger   *zap.Logger
}

func newSubmitter(page Page, catalog *Catalog, cfg config.Interface, logger *zap.Logger) *submitter {
	return &submitter{
		page:     page,
		catalog:  catalog,
		platform: cfg.Platform(),
		timeouts: cfg.Timeouts(),
		logger:   logger.Named("submission"),
	}
}

// Run fills the editor and publishes. Only a body that cannot be entered,
// or an explicit refusal by the platform, is an error; everything else
// degrades into warnings and an unverified state.
func (s *submitter) Run(ctx context.Context, content Content, target *TargetRef) (StageOutcome, submissionReport, error) {
	outcome := StageOutcome{Stage: StageSubmission}
	report := submissionReport{}

	s.openEditor(ctx, target, &report)

	if _, err := s.page.Fill(ctx, s.catalog.Title, content.Title); err != nil {
		s.logger.Warn("Title field not found; the platform may title the chapter itself.", zap.Error(err))
		report.warn("title not filled: %v", err)
	}

	bodyMatch, err := s.page.Fill(ctx, s.catalog.Body, content.Body)
	if err != nil {
		subErr := &SubmissionError{Step: "fill_body", Detail: "content field not usable", Err: err}
		outcome.Diagnostic = subErr.Error()
		return outcome, report, subErr
	}
	outcome.MatchedIndex = intPtr(bodyMatch.Index)

	// Give the platform's autosave a chance to persist the draft.
	if err := s.page.Sleep(ctx, s.timeouts.AutosaveSettle); err != nil {
		subErr := &SubmissionError{Step: "autosave", Err: err}
		outcome.Diagnostic = subErr.Error()
		return outcome, report, subErr
	}

	if _, err := s.page.Click(ctx, s.catalog.Publish); err != nil {
		s.logger.Warn("No publish control found; content left as draft.", zap.Error(err))
		report.State = StateSavedDraft
		report.warn("no publish control found; the content is only saved as the platform's draft")
		outcome.Succeeded = true
		outcome.Diagnostic = "content entered; saved as draft"
		return outcome, report, nil
	}
	report.State = StatePublishAttempted

	if err := s.verify(ctx, &report); err != nil {
		outcome.Diagnostic = err.Error()
		return outcome, report, err
	}
	outcome.Succeeded = true
	outcome.Diagnostic = fmt.Sprintf("content entered; %s (verified=%t)", report.State, report.Verified)
	return outcome, report, nil
}

// openEditor makes sure the chapter editor is on screen. It is best-effort:
// the body fill that follows decides whether the stage can continue.
func (s *submitter) openEditor(ctx context.Context, target *TargetRef, report *submissionReport) {
	if _, ok := s.page.Exists(ctx, s.catalog.Body); ok {
		return
	}
	if m, ok := s.page.Exists(ctx, s.catalog.NewChapter); ok {
		if err := s.page.ClickSelector(ctx, m.Selector); err == nil {
			if _, _, err := s.page.WaitFor(ctx, s.timeouts.Locator, s.catalog.Body); err == nil {
				return
			}
		}
	}

	id := ""
	if target != nil {
		id = target.ID
	}
	if id == "" && strings.Contains(s.platform.NewChapterPath, "{id}") {
		report.warn("new chapter entry not found")
		return
	}
	editorURL := s.platform.NewChapterURL(id)
	if err := s.page.Navigate(ctx, editorURL); err != nil {
		s.logger.Debug("Could not open the chapter editor directly.", zap.Error(err))
		report.warn("chapter editor could not be opened: %v", err)
	}
}

// verify waits for the platform to react to the publish click, confirming
// a dialog along the way if one appears.
func (s *submitter) verify(ctx context.Context, report *submissionReport) error {
	deadline := time.Now().Add(s.timeouts.Verify)
	confirmed := false

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		sets := []locator.Set{s.catalog.PublishSuccess, s.catalog.PublishFailure}
		if !confirmed {
			sets = append(sets, s.catalog.ConfirmDialog)
		}

		idx, m, err := s.page.WaitFor(ctx, remaining, sets...)
		if err != nil {
			break
		}
		switch idx {
		case 0:
			report.State = StatePublished
			report.Verified = true
			s.logger.Info("Publish verified.", zap.String("indicator", m.Candidate.String()))
			return nil
		case 1:
			msg, _ := s.page.Text(ctx, m.Selector)
			if msg == "" {
				msg = "platform reported a publish failure"
			}
			return &SubmissionError{Step: "publish", Detail: msg}
		default:
			confirmed = true
			if err := s.page.ClickSelector(ctx, m.Selector); err != nil {
				report.warn("publish confirmation could not be clicked: %v", err)
			}
		}
	}

	report.warn("publish attempted but no success indicator appeared within %s", s.timeouts.Verify)
	s.logger.Warn("Publish could not be verified.", zap.Duration("waited", s.timeouts.Verify))
	return nil
}
