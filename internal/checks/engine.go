package checks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"auditor/internal/domain"
	"auditor/internal/fetch"
	"auditor/internal/monitoring"
)

// Fetcher is the slice of the HTTP layer checks may use for their own
// lookups (canonical targets, robots.txt, sitemaps).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Result is a single check outcome before persistence.
type Result struct {
	Verdict domain.Verdict
	Details map[string]any
}

func passed(details map[string]any) Result  { return Result{domain.VerdictPassed, details} }
func failed(details map[string]any) Result  { return Result{domain.VerdictFailed, details} }
func warning(details map[string]any) Result { return Result{domain.VerdictWarning, details} }

// PageContext is what a page-scoped check sees: one crawled HTML page with
// its parsed document.
type PageContext struct {
	Audit   *domain.Audit
	Page    *domain.CrawledPage
	Doc     *goquery.Document
	PageURL string // final URL after redirects
	Fetcher Fetcher
}

// SiteContext is what a site-wide check sees: the full crawled page set.
type SiteContext struct {
	Audit   *domain.Audit
	Pages   []domain.CrawledPage
	Fetcher Fetcher
}

// Definition describes one check. Exactly one of RunPage/RunSite is set,
// matching SiteWide. Definitions are registered once in the static table in
// registry.go; the engine never needs to know what a check does.
type Definition struct {
	Name        string
	Category    string
	Priority    domain.Priority
	SiteWide    bool
	DisplayName string
	PassedName  string
	FixGuidance string
	LearnMore   string
	RunPage     func(ctx context.Context, pc *PageContext) (Result, error)
	RunSite     func(ctx context.Context, sc *SiteContext) (Result, error)
}

// Engine runs every applicable definition against every applicable context.
// One definition blowing up must never sink the audit: errors and panics are
// converted into a failed verdict with the cause in the details payload.
type Engine struct {
	defs        []Definition
	fetcher     Fetcher
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	concurrency int
}

func NewEngine(defs []Definition, fetcher Fetcher, m *monitoring.Metrics, l *zap.Logger, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{defs: defs, fetcher: fetcher, metrics: m, logger: l, concurrency: concurrency}
}

// checkable reports whether a page participates in content checks: HTML,
// fetched successfully, and not an error response. Resources and failed
// fetches are recorded in the page table but never checked.
func checkable(p *domain.CrawledPage) bool {
	return !p.IsResource && p.FetchError == "" && p.StatusCode >= 200 && p.StatusCode < 400
}

// RunPageChecks evaluates all page-scoped definitions against every checkable
// page. Page bodies are not persisted, so each page is fetched once here and
// its parsed document shared across that page's checks. Pages run in parallel
// up to the configured concurrency; checks within one page run sequentially.
func (e *Engine) RunPageChecks(ctx context.Context, audit *domain.Audit, pages []domain.CrawledPage) []domain.Check {
	perPage := make([][]domain.Check, len(pages))
	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i := range pages {
		if !checkable(&pages[i]) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			perPage[i] = e.checkPage(ctx, audit, &pages[i])
		}(i)
	}
	wg.Wait()

	var out []domain.Check
	for _, cs := range perPage {
		out = append(out, cs...)
	}
	return out
}

func (e *Engine) checkPage(ctx context.Context, audit *domain.Audit, page *domain.CrawledPage) []domain.Check {
	pc := &PageContext{Audit: audit, Page: page, PageURL: page.URL, Fetcher: e.fetcher}
	res, err := e.fetcher.Fetch(ctx, page.URL)
	if err == nil && res.IsHTML() {
		pc.PageURL = res.FinalURL
		if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(res.HTML)); derr == nil {
			pc.Doc = doc
		}
	}
	if pc.Doc == nil {
		e.logger.Warn("page unavailable at check time, skipping content checks",
			zap.String("audit_id", audit.ID), zap.String("url", page.URL), zap.Error(err))
		return []domain.Check{e.unavailableCheck(audit, page, err)}
	}

	var out []domain.Check
	for _, def := range e.defs {
		if def.SiteWide {
			continue
		}
		out = append(out, e.execute(ctx, audit, def, &page.ID, func(ctx context.Context) (Result, error) {
			return def.RunPage(ctx, pc)
		}))
	}
	return out
}

// RunSiteChecks evaluates all site-wide definitions once against the full
// page set.
func (e *Engine) RunSiteChecks(ctx context.Context, audit *domain.Audit, pages []domain.CrawledPage) []domain.Check {
	sc := &SiteContext{Audit: audit, Pages: pages, Fetcher: e.fetcher}
	var out []domain.Check
	for _, def := range e.defs {
		if !def.SiteWide {
			continue
		}
		out = append(out, e.execute(ctx, audit, def, nil, func(ctx context.Context) (Result, error) {
			return def.RunSite(ctx, sc)
		}))
	}
	return out
}

// unavailableCheck is the synthetic verdict for a page that crawled fine but
// could not be re-fetched as HTML at check time. Without it the page would
// contribute nothing and leave the score unaffected.
func (e *Engine) unavailableCheck(audit *domain.Audit, page *domain.CrawledPage, err error) domain.Check {
	details := map[string]any{"url": page.URL}
	if err != nil {
		details["error"] = err.Error()
	}
	e.metrics.IncCheckVerdict(string(domain.VerdictWarning))
	return domain.Check{
		AuditID:     audit.ID,
		PageID:      &page.ID,
		Name:        "page_availability",
		Category:    domain.CategoryTechnical,
		Priority:    domain.PriorityRecommended,
		Verdict:     domain.VerdictWarning,
		Details:     details,
		DisplayName: "Page could not be fetched for content checks",
		FixGuidance: "Make sure the page stays reachable and serves HTML consistently.",
	}
}

// execute runs one definition with full isolation.
func (e *Engine) execute(ctx context.Context, audit *domain.Audit, def Definition, pageID *int64, run func(context.Context) (Result, error)) domain.Check {
	res := e.runIsolated(ctx, def.Name, run)
	e.metrics.IncCheckVerdict(string(res.Verdict))

	name := def.DisplayName
	if res.Verdict == domain.VerdictPassed && def.PassedName != "" {
		name = def.PassedName
	}
	return domain.Check{
		AuditID:     audit.ID,
		PageID:      pageID,
		Name:        def.Name,
		Category:    def.Category,
		Priority:    def.Priority,
		Verdict:     res.Verdict,
		Details:     res.Details,
		DisplayName: name,
		FixGuidance: def.FixGuidance,
		LearnMore:   def.LearnMore,
	}
}

func (e *Engine) runIsolated(ctx context.Context, name string, run func(context.Context) (Result, error)) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("check panicked", zap.String("check", name), zap.Any("panic", r))
			res = failed(map[string]any{"error": fmt.Sprintf("check panicked: %v", r)})
		}
	}()

	res, err := run(ctx)
	if err != nil {
		e.logger.Warn("check returned error", zap.String("check", name), zap.Error(err))
		return failed(map[string]any{"error": err.Error()})
	}
	if res.Verdict == "" {
		return failed(map[string]any{"error": "check produced no verdict"})
	}
	return res
}
