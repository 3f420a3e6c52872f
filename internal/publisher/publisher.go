// internal/publisher/publisher.go
package publisher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scribe-cli/internal/browser"
	"github.com/xkilldash9x/scribe-cli/internal/config"
	"github.com/xkilldash9x/scribe-cli/internal/network"
	"github.com/xkilldash9x/scribe-cli/internal/observability"
)

// screenshotWait bounds a debug screenshot taken after a failure, which
// may happen after the operation deadline has already passed.
const screenshotWait = 5 * time.Second

// Service is the surface the CLI and the HTTP edge depend on.
type Service interface {
	SubmitContent(ctx context.Context, creds Credentials, content Content, target *TargetRef) (*WorkflowResult, error)
	ListWorks(ctx context.Context, creds Credentials) ([]Work, error)
}

// Publisher runs complete workflows. Each call opens its own browser
// session and closes it before returning, so a Publisher holds no state
// between calls and is safe for concurrent use.
type Publisher struct {
	cfg      config.Interface
	catalog  Catalog
	sessions SessionFactory
	fetchers FetcherFactory
	logger   *zap.Logger
}

var _ Service = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(*Publisher)

// WithSessionFactory replaces the browser launcher.
func WithSessionFactory(f SessionFactory) Option {
	return func(p *Publisher) { p.sessions = f }
}

// WithFetcherFactory replaces the HTTP fetcher used for the first discovery tier.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(p *Publisher) { p.fetchers = f }
}

// WithCatalog replaces the default locator catalog.
func WithCatalog(c Catalog) Option {
	return func(p *Publisher) { p.catalog = c }
}

// WithLogger sets the logger. The default is the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// New creates a Publisher that launches real browser sessions unless told otherwise.
func New(cfg config.Interface, opts ...Option) *Publisher {
	p := &Publisher{
		cfg:     cfg,
		catalog: DefaultCatalog(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = observability.GetLogger()
	}
	p.logger = p.logger.Named("publisher")

	if p.sessions == nil {
		logger := p.logger
		p.sessions = func(ctx context.Context) (Page, error) {
			return browser.Open(ctx, cfg, logger)
		}
	}
	if p.fetchers == nil {
		clientCfg := network.NewDefaultClientConfig()
		clientCfg.RequestTimeout = cfg.Timeouts().Fetch
		clientCfg.Logger = p.logger
		p.fetchers = NewNetworkFetcherFactory(clientCfg)
	}
	return p
}

// SubmitContent logs in, optionally opens target, and publishes content.
// The result is returned even when err is non-nil.
func (p *Publisher) SubmitContent(ctx context.Context, creds Credentials, content Content, target *TargetRef) (*WorkflowResult, error) {
	result := &WorkflowResult{
		RunID:         uuid.New().String(),
		ContentLength: utf8.RuneCountInString(content.Body),
		Stages:        []StageOutcome{},
	}
	logger := p.logger.With(
		zap.String("run_id", result.RunID),
		zap.String("identity", observability.MaskIdentity(creds.Identity)),
	)

	if err := firstError(ValidateContent(content), ValidateCredentials(creds), ValidateTarget(target)); err != nil {
		logger.Info("Rejected submission.", zap.Error(err))
		result.Message = err.Error()
		return result, err
	}
	if target != nil && target.ID == "" {
		target = nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts().Operation)
	defer cancel()

	logger.Info("Starting submission.", zap.Int("content_length", result.ContentLength))
	err := p.withSession(ctx, logger, func(page Page) error {
		outcome, err := newAuthenticator(page, &p.catalog, p.cfg, logger).Run(ctx, creds)
		result.record(outcome)
		if err != nil {
			p.capture(ctx, page, logger, StageAuthentication)
			return err
		}

		if target != nil {
			outcome, err := newSelector(page, p.cfg, logger).Run(ctx, *target)
			result.record(outcome)
			if err != nil {
				p.capture(ctx, page, logger, StageSelection)
				return err
			}
		}

		outcome, report, err := newSubmitter(page, &p.catalog, p.cfg, logger).Run(ctx, content, target)
		result.record(outcome)
		result.Published = report.State
		result.Verified = report.Verified
		for _, w := range report.Warnings {
			result.warn(w)
		}
		if err != nil {
			p.capture(ctx, page, logger, StageSubmission)
		}
		return err
	})

	if err != nil {
		result.Message = err.Error()
		logger.Warn("Submission failed.", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return result, err
	}

	result.Success = true
	result.Message = summarize(result)
	logger.Info("Submission finished.",
		zap.String("published", string(result.Published)),
		zap.Bool("verified", result.Verified))
	return result, nil
}

// ListWorks logs in and returns the caller's works, possibly none.
func (p *Publisher) ListWorks(ctx context.Context, creds Credentials) ([]Work, error) {
	runID := uuid.New().String()
	logger := p.logger.With(
		zap.String("run_id", runID),
		zap.String("identity", observability.MaskIdentity(creds.Identity)),
	)
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeouts().Operation)
	defer cancel()

	works := []Work{}
	err := p.withSession(ctx, logger, func(page Page) error {
		if _, err := newAuthenticator(page, &p.catalog, p.cfg, logger).Run(ctx, creds); err != nil {
			p.capture(ctx, page, logger, StageAuthentication)
			return err
		}
		found, outcome := newDiscoverer(page, &p.catalog, p.cfg, p.fetchers, logger).Run(ctx)
		logger.Info("Listed works.", zap.Int("count", len(found)), zap.String("diagnostic", outcome.Diagnostic))
		works = append(works, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return works, nil
}

// withSession opens a page, runs fn and closes the page exactly once, even
// when fn panics. A panic becomes an InternalError.
func (p *Publisher) withSession(ctx context.Context, logger *zap.Logger, fn func(Page) error) (err error) {
	page, err := p.sessions(ctx)
	if err != nil {
		return &InternalError{Op: "open browser session", Err: err}
	}
	logger = logger.With(zap.String("session_id", page.ID()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Workflow stage panicked.", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = &InternalError{Op: "workflow", Err: fmt.Errorf("panic: %v", r)}
		}
		if closeErr := page.Close(); closeErr != nil {
			logger.Warn("Closing browser session failed.", zap.Error(closeErr))
		}
	}()

	if err = fn(page); err != nil {
		var k kinded
		if !errors.As(err, &k) {
			err = &InternalError{Op: "workflow", Err: err}
		}
	}
	return err
}

// capture saves a screenshot of a failed stage when a debug directory is configured.
func (p *Publisher) capture(ctx context.Context, page Page, logger *zap.Logger, stage string) {
	if p.cfg.Browser().DebugDir == "" {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotWait)
	defer cancel()
	if _, err := page.Screenshot(shotCtx, stage); err != nil {
		logger.Debug("Debug screenshot failed.", zap.Error(err))
	}
}

func summarize(r *WorkflowResult) string {
	switch {
	case r.Published == StatePublished && r.Verified:
		return "chapter published and verified"
	case r.Published == StateSavedDraft:
		return "chapter saved as draft; no publish control was found"
	default:
		return "chapter publish attempted; success could not be verified"
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
