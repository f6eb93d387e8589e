package audit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auditor/internal/checks"
	"auditor/internal/crawl"
	"auditor/internal/domain"
	"auditor/internal/monitoring"
)

var (
	// ErrNotActive is returned when stop is requested for an audit that has
	// no live run to stop.
	ErrNotActive = errors.New("audit is not in an active state")
	// ErrNotResumable is returned when resume is requested for an audit that
	// is not Failed/Stopped or has no crawled pages to resume from.
	ErrNotResumable = errors.New("audit cannot be resumed")
	// ErrInvalidURL rejects intake targets that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("target must be an absolute http or https URL")
)

// checkBatchSize is how many pages' checks run between cooperative status
// polls during the check phase.
const checkBatchSize = 10

// Store is everything the runner needs from persistence. *storage.PostgresStore
// implements it; tests use an in-memory fake.
type Store interface {
	crawl.Store
	CreateAudit(ctx context.Context, a *domain.Audit) error
	MarkCrawling(ctx context.Context, id string) (bool, error)
	MarkChecking(ctx context.Context, id string, pagesCrawled, urlsDiscovered int) (bool, error)
	MarkResumed(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string, overall int, categories map[string]int) (bool, error)
	MarkFailed(ctx context.Context, id string, msg string) (bool, error)
	MarkStopped(ctx context.Context, id string) (bool, error)
	Touch(ctx context.Context, id string) error
	ListPages(ctx context.Context, auditID string) ([]domain.CrawledPage, error)
	ListChecks(ctx context.Context, auditID string) ([]domain.Check, error)
	CountChecks(ctx context.Context, auditID string) (int, error)
	SaveChecks(ctx context.Context, checks []domain.Check) error
	DeleteQueue(ctx context.Context, auditID string) (int64, error)
}

// Runner owns the audit lifecycle and orchestrates crawl, checks and scoring.
// State is authoritative in storage: every externally observable action goes
// through a conditional transition, and a runner whose transition misses
// assumes another actor owns the audit and backs off.
type Runner struct {
	store     Store
	crawler   *crawl.Crawler
	engine    *checks.Engine
	dedup     crawl.Deduper
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	staleness time.Duration
}

func NewRunner(store Store, crawler *crawl.Crawler, engine *checks.Engine, dedup crawl.Deduper, m *monitoring.Metrics, l *zap.Logger, staleness time.Duration) *Runner {
	return &Runner{
		store:     store,
		crawler:   crawler,
		engine:    engine,
		dedup:     dedup,
		metrics:   m,
		logger:    l,
		staleness: staleness,
	}
}

// Create validates the target and persists a pending audit. Execution happens
// out-of-band; callers spawn Execute themselves.
func (r *Runner) Create(ctx context.Context, targetURL string, organizationID *string) (*domain.Audit, error) {
	u, err := url.Parse(targetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	a := &domain.Audit{
		ID:             uuid.NewString(),
		TargetURL:      targetURL,
		OrganizationID: organizationID,
		Status:         domain.StatusPending,
	}
	if err := r.store.CreateAudit(ctx, a); err != nil {
		return nil, fmt.Errorf("creating audit: %w", err)
	}
	return a, nil
}

// Execute drives the full pipeline for one audit. It is the single writer for
// the audit while its conditional transitions keep succeeding; the first
// missed transition means an external actor (stop endpoint, watcher) took
// over, and the run exits leaving partial results in place.
func (r *Runner) Execute(ctx context.Context, id string) {
	log := r.logger.With(zap.String("audit_id", id))

	audit, err := r.store.GetAudit(ctx, id)
	if err != nil {
		log.Error("cannot load audit", zap.Error(err))
		return
	}

	ok, err := r.store.MarkCrawling(ctx, id)
	if err != nil {
		log.Error("cannot start crawl", zap.Error(err))
		return
	}
	if !ok {
		log.Warn("audit no longer pending, not starting")
		return
	}

	crawlStart := time.Now()
	pages, urls, err := r.crawler.Run(ctx, audit)
	r.metrics.CrawlDuration.Observe(time.Since(crawlStart).Seconds())

	if cerr := r.dedup.ClearAudit(ctx, id); cerr != nil {
		log.Warn("failed to clear discovery set", zap.Error(cerr))
	}

	if errors.Is(err, crawl.ErrStopRequested) {
		// The crawl aborts on any external transition; the staleness watcher
		// lands the audit in failed, a stop request in stopped.
		outcome := "stopped"
		if current, gerr := r.store.GetAudit(ctx, id); gerr == nil && current.Status == domain.StatusFailed {
			outcome = "failed"
		}
		log.Info("crawl halted by external transition",
			zap.Int("pages_crawled", pages), zap.String("outcome", outcome))
		r.metrics.IncAuditOutcome(outcome)
		return
	}
	if err != nil {
		r.fail(ctx, id, fmt.Sprintf("crawl failed: %v", err))
		return
	}
	if pages == 0 {
		r.fail(ctx, id, fmt.Sprintf("target %s is unreachable", audit.TargetURL))
		return
	}

	ok, err = r.store.MarkChecking(ctx, id, pages, urls)
	if err != nil {
		log.Error("cannot enter check phase", zap.Error(err))
		return
	}
	if !ok {
		log.Warn("audit left crawling state externally, aborting")
		return
	}

	r.runCheckPhase(ctx, id, false)
}

// Stop implements the external stop protocol. A live run is asked to halt
// cooperatively; a run whose updated_at is older than the staleness threshold
// is presumed dead and transitioned to failed by this watcher directly.
func (r *Runner) Stop(ctx context.Context, id string) (string, error) {
	audit, err := r.store.GetAudit(ctx, id)
	if err != nil {
		return "", err
	}
	if !audit.Status.Active() {
		return "", ErrNotActive
	}

	staleness := time.Since(audit.UpdatedAt)
	if staleness > r.staleness {
		msg := fmt.Sprintf("audit runner presumed dead: no progress for %s (threshold %s)",
			staleness.Round(time.Second), r.staleness)
		if _, err := r.store.MarkFailed(ctx, id, msg); err != nil {
			return "", err
		}
		r.metrics.IncAuditOutcome("failed")
		r.logger.Warn("stale audit failed by watcher", zap.String("audit_id", id),
			zap.Duration("staleness", staleness))
		return msg, nil
	}

	if _, err := r.store.MarkStopped(ctx, id); err != nil {
		return "", err
	}
	r.logger.Info("stop requested", zap.String("audit_id", id))
	return "stop requested; the running job will halt at its next checkpoint", nil
}

// Resume re-enters the pipeline for a failed/stopped audit without
// re-crawling. If check rows already exist only the site-wide checks are
// re-run and the audit rescored; otherwise the full check phase runs against
// the stored pages.
func (r *Runner) Resume(ctx context.Context, id string) error {
	audit, err := r.store.GetAudit(ctx, id)
	if err != nil {
		return err
	}
	if audit.Status != domain.StatusFailed && audit.Status != domain.StatusStopped {
		return ErrNotResumable
	}
	if audit.PagesCrawled == 0 {
		return fmt.Errorf("%w: no crawled pages", ErrNotResumable)
	}

	existing, err := r.store.CountChecks(ctx, id)
	if err != nil {
		return err
	}

	ok, err := r.store.MarkResumed(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotResumable
	}

	r.logger.Info("audit resumed", zap.String("audit_id", id),
		zap.Bool("sitewide_only", existing > 0))
	go r.runCheckPhase(context.WithoutCancel(ctx), id, existing > 0)
	return nil
}

// runCheckPhase executes checks and scoring for an audit already in the
// checking state. With siteWideOnly set, existing page-scoped check rows are
// reused and only the site-wide set is re-executed (the cheap resume path).
func (r *Runner) runCheckPhase(ctx context.Context, id string, siteWideOnly bool) {
	log := r.logger.With(zap.String("audit_id", id))

	audit, err := r.store.GetAudit(ctx, id)
	if err != nil {
		log.Error("cannot load audit for check phase", zap.Error(err))
		return
	}
	pages, err := r.store.ListPages(ctx, id)
	if err != nil {
		r.fail(ctx, id, fmt.Sprintf("loading crawled pages: %v", err))
		return
	}

	var scoreSet []domain.Check

	if siteWideOnly {
		prior, err := r.store.ListChecks(ctx, id)
		if err != nil {
			r.fail(ctx, id, fmt.Sprintf("loading existing checks: %v", err))
			return
		}
		// Keep prior page-scoped verdicts; site-wide ones are superseded by
		// the fresh run below.
		for _, c := range prior {
			if c.PageID != nil {
				scoreSet = append(scoreSet, c)
			}
		}
	} else {
		for i := 0; i < len(pages); i += checkBatchSize {
			if !r.stillChecking(ctx, id) {
				log.Info("check phase halted by status change")
				return
			}
			end := i + checkBatchSize
			if end > len(pages) {
				end = len(pages)
			}
			batch := r.engine.RunPageChecks(ctx, audit, pages[i:end])
			if err := r.store.SaveChecks(ctx, batch); err != nil {
				r.fail(ctx, id, fmt.Sprintf("saving checks: %v", err))
				return
			}
			scoreSet = append(scoreSet, batch...)
			if err := r.store.Touch(ctx, id); err != nil {
				log.Warn("cannot touch audit", zap.Error(err))
			}
		}
	}

	if !r.stillChecking(ctx, id) {
		log.Info("check phase halted by status change")
		return
	}

	siteChecks := r.engine.RunSiteChecks(ctx, audit, pages)
	if err := r.store.SaveChecks(ctx, siteChecks); err != nil {
		r.fail(ctx, id, fmt.Sprintf("saving site-wide checks: %v", err))
		return
	}
	scoreSet = append(scoreSet, siteChecks...)

	overall, categories := checks.Score(scoreSet)
	ok, err := r.store.MarkCompleted(ctx, id, overall, categories)
	if err != nil {
		log.Error("cannot complete audit", zap.Error(err))
		return
	}
	if !ok {
		log.Warn("audit left checking state externally, not completing")
		return
	}

	if _, err := r.store.DeleteQueue(ctx, id); err != nil {
		log.Warn("cannot delete crawl queue", zap.Error(err))
	}

	r.metrics.IncAuditOutcome("completed")
	log.Info("audit completed", zap.Int("overall_score", overall),
		zap.Int("checks", len(scoreSet)))
}

func (r *Runner) stillChecking(ctx context.Context, id string) bool {
	current, err := r.store.GetAudit(ctx, id)
	if err != nil {
		return false
	}
	return current.Status == domain.StatusChecking
}

func (r *Runner) fail(ctx context.Context, id, msg string) {
	if _, err := r.store.MarkFailed(ctx, id, msg); err != nil {
		r.logger.Error("cannot mark audit failed", zap.String("audit_id", id), zap.Error(err))
		return
	}
	r.metrics.IncAuditOutcome("failed")
	r.logger.Error("audit failed", zap.String("audit_id", id), zap.String("reason", msg))
}
