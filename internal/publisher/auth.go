// internal/publisher/auth.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/browser/locator"
	"github.com/xkilldash9x/scribe-cli/internal/config"
	"github.com/xkilldash9x/scribe-cli/internal/observability"
)

// LoginState is a state of the login sequence.
type LoginState string

const (
	LoginStart              LoginState = "START"
	LoginMenuOpened         LoginState = "MENU_OPENED"
	LoginEntryModeChosen    LoginState = "ENTRY_MODE_CHOSEN"
	LoginCredentialsFilled  LoginState = "CREDENTIALS_FILLED"
	LoginSubmitted          LoginState = "SUBMITTED"
	LoginDashboardConfirmed LoginState = "DASHBOARD_CONFIRMED"
	LoginFailed             LoginState = "LOGIN_FAILED"
)

// authenticator drives the login sequence on one page.
type authenticator struct {
	page     Page
	catalog  *Catalog
	platform config.PlatformConfig
	timeouts config.TimeoutConfig
	logger   *zap.Logger

	state   LoginState
	skipped []AuthStep
}

func newAuthenticator(page Page, catalog *Catalog, cfg config.Interface, logger *zap.Logger) *authenticator {
	return &authenticator{
		page:     page,
		catalog:  catalog,
		platform: cfg.Platform(),
		timeouts: cfg.Timeouts(),
		logger:   logger.Named("auth"),
		state:    LoginStart,
	}
}

func (a *authenticator) transition(to LoginState) {
	a.logger.Debug("Login state changed.", zap.String("from", string(a.state)), zap.String("to", string(to)))
	a.state = to
}

// fail moves to LOGIN_FAILED and builds the error for the step that failed.
func (a *authenticator) fail(step AuthStep, reason AuthReason, detail string, err error) *AuthError {
	last := a.state
	a.transition(LoginFailed)
	return &AuthError{Step: step, State: last, Reason: reason, Detail: detail, Err: err}
}

// Run logs in with creds. It succeeds only once a dashboard indicator is seen.
func (a *authenticator) Run(ctx context.Context, creds Credentials) (StageOutcome, error) {
	outcome := StageOutcome{Stage: StageAuthentication}
	a.logger.Info("Starting login.", zap.String("identity", observability.MaskIdentity(creds.Identity)))

	if err := a.page.Navigate(ctx, a.platform.LoginURL()); err != nil {
		authErr := a.fail(StepNavigate, reasonFor(ctx, ReasonNavigation), "login page did not load", err)
		outcome.Diagnostic = authErr.Error()
		return outcome, authErr
	}

	// A persisted session lands on the dashboard directly.
	if m, ok := a.page.Exists(ctx, a.catalog.Dashboard); ok {
		a.transition(LoginDashboardConfirmed)
		outcome.Succeeded = true
		outcome.MatchedIndex = intPtr(m.Index)
		outcome.Diagnostic = "already authenticated"
		return outcome, nil
	}

	if err := a.openForm(ctx); err != nil {
		outcome.Diagnostic = err.Error()
		return outcome, err
	}
	if err := a.fillCredentials(ctx, creds); err != nil {
		outcome.Diagnostic = err.Error()
		return outcome, err
	}

	if _, err := a.page.Click(ctx, a.catalog.LoginSubmit); err != nil {
		authErr := a.fail(StepSubmit, notFoundReason(ctx, err), "no login submit control", err)
		outcome.Diagnostic = authErr.Error()
		return outcome, authErr
	}
	a.transition(LoginSubmitted)

	m, err := a.confirm(ctx, creds)
	if err != nil {
		outcome.Diagnostic = err.Error()
		return outcome, err
	}
	outcome.Succeeded = true
	outcome.MatchedIndex = intPtr(m.Index)
	outcome.Diagnostic = "dashboard confirmed by " + m.Candidate.String()
	if len(a.skipped) > 0 {
		outcome.Diagnostic += fmt.Sprintf(" (skipped %v)", a.skipped)
	}
	return outcome, nil
}

// openForm opens the login menu and picks the password entry mode. Both steps
// are skipped when the identity field is already on screen.
func (a *authenticator) openForm(ctx context.Context) error {
	if _, ok := a.page.Exists(ctx, a.catalog.Identity); ok {
		a.skipped = append(a.skipped, StepOpenMenu, StepChooseEntryMode)
		a.logger.Debug("Login form already visible; skipping menu and entry mode.")
		return nil
	}

	if _, err := a.page.Click(ctx, a.catalog.LoginMenu); err != nil {
		return a.fail(StepOpenMenu, notFoundReason(ctx, err), "login menu not found", err)
	}
	a.transition(LoginMenuOpened)

	if _, ok := a.page.Exists(ctx, a.catalog.Identity); ok {
		a.skipped = append(a.skipped, StepChooseEntryMode)
		return nil
	}
	if _, err := a.page.Click(ctx, a.catalog.EntryMode); err != nil {
		return a.fail(StepChooseEntryMode, notFoundReason(ctx, err), "password entry mode not found", err)
	}
	a.transition(LoginEntryModeChosen)
	return nil
}

// fillCredentials never puts the values themselves into errors or logs.
func (a *authenticator) fillCredentials(ctx context.Context, creds Credentials) error {
	if _, err := a.page.Fill(ctx, a.catalog.Identity, creds.Identity); err != nil {
		return a.fail(StepFillIdentity, notFoundReason(ctx, err), "identity field not usable", scrubErr(err, creds))
	}
	if _, err := a.page.Fill(ctx, a.catalog.Secret, creds.Secret); err != nil {
		return a.fail(StepFillSecret, notFoundReason(ctx, err), "secret field not usable", scrubErr(err, creds))
	}
	// Most platforms refuse to log in until their terms are ticked.
	if m, ok := a.page.Exists(ctx, a.catalog.Agreement); ok {
		if err := a.page.ClickSelector(ctx, m.Selector); err != nil {
			a.logger.Debug("Could not tick agreement checkbox.", zap.Error(err))
		}
	}
	a.transition(LoginCredentialsFilled)
	return nil
}

// confirm waits for a dashboard indicator or an explicit error element.
func (a *authenticator) confirm(ctx context.Context, creds Credentials) (locator.Match, error) {
	idx, m, err := a.page.WaitFor(ctx, a.timeouts.LoginConfirm, a.catalog.Dashboard, a.catalog.LoginFailure)
	switch {
	case err != nil:
		return locator.Match{}, a.fail(StepConfirm, ReasonTimeout,
			fmt.Sprintf("no dashboard indicator within %s", a.timeouts.LoginConfirm), nil)
	case idx == 1:
		msg, _ := a.page.Text(ctx, m.Selector)
		msg = redact(msg, creds)
		if msg == "" {
			msg = "platform reported an error"
		}
		return locator.Match{}, a.fail(StepConfirm, ReasonPlatformRejected, msg, nil)
	}
	a.transition(LoginDashboardConfirmed)
	a.logger.Info("Login confirmed.", zap.String("indicator", m.Candidate.String()))
	return m, nil
}

// notFoundReason distinguishes a missing element from an expired deadline.
func notFoundReason(ctx context.Context, err error) AuthReason {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonElementNotFound
}

func reasonFor(ctx context.Context, fallback AuthReason) AuthReason {
	if ctx.Err() != nil {
		return ReasonTimeout
	}
	return fallback
}

// redact removes credential values that a platform message might echo back.
func redact(msg string, creds Credentials) string {
	msg = strings.TrimSpace(msg)
	if creds.Secret != "" {
		msg = strings.ReplaceAll(msg, creds.Secret, "****")
	}
	if creds.Identity != "" {
		msg = strings.ReplaceAll(msg, creds.Identity, observability.MaskIdentity(creds.Identity))
	}
	return msg
}

// scrubbedError carries the redacted text of an error along with the original for errors.Is.
type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

func scrubErr(err error, creds Credentials) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{msg: redact(err.Error(), creds), err: err}
}
