package crawl

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"auditor/internal/domain"
	"auditor/internal/fetch"
	"auditor/internal/monitoring"
)

// ErrStopRequested is returned when the audit left the crawling state while
// the crawl was in flight; the caller exits without touching the audit again.
var ErrStopRequested = errors.New("crawl stopped by status change")

// Store is the slice of persistence the crawler needs.
type Store interface {
	GetAudit(ctx context.Context, id string) (*domain.Audit, error)
	EnqueueURLs(ctx context.Context, auditID string, urls []string) (int, error)
	DequeueBatch(ctx context.Context, auditID string, limit int) ([]domain.CrawlQueueEntry, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	SavePage(ctx context.Context, p *domain.CrawledPage) (int64, error)
	UpdateCrawlProgress(ctx context.Context, id string, pagesCrawled, urlsDiscovered int) error
}

// Deduper is the fast-path discovery set (Redis in production).
type Deduper interface {
	MarkSeen(ctx context.Context, auditID, url string) (bool, error)
	ClearAudit(ctx context.Context, auditID string) error
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Crawler drives the fetcher and link extractor against the durable crawl
// queue until exhaustion or the page budget, persisting one page record per
// visited URL.
type Crawler struct {
	store       Store
	dedup       Deduper
	fetcher     Fetcher
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	concurrency int
	maxPages    int
}

func NewCrawler(store Store, dedup Deduper, fetcher Fetcher, m *monitoring.Metrics, l *zap.Logger, concurrency, maxPages int) *Crawler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Crawler{
		store:       store,
		dedup:       dedup,
		fetcher:     fetcher,
		metrics:     m,
		logger:      l,
		concurrency: concurrency,
		maxPages:    maxPages,
	}
}

type pageResult struct {
	entryID int64
	page    *domain.CrawledPage
	links   []string
}

// Run crawls an audit to exhaustion or budget. Between batches it re-loads the
// audit status so an external stop request is honored at the next suspension
// point. Returns the page and discovery counters for the state machine.
func (c *Crawler) Run(ctx context.Context, audit *domain.Audit) (pagesCrawled, urlsDiscovered int, err error) {
	start := NormalizeString(audit.TargetURL)

	if _, err := c.dedup.MarkSeen(ctx, audit.ID, start); err != nil {
		c.logger.Warn("dedup store unavailable, relying on durable queue",
			zap.String("audit_id", audit.ID), zap.Error(err))
	}
	added, err := c.store.EnqueueURLs(ctx, audit.ID, []string{start})
	if err != nil {
		return 0, 0, err
	}
	urlsDiscovered = added

	// Resuming a crawl that already recorded pages: keep counting from there.
	pagesCrawled = audit.PagesCrawled

	for {
		current, err := c.store.GetAudit(ctx, audit.ID)
		if err != nil {
			return pagesCrawled, urlsDiscovered, err
		}
		if current.Status != domain.StatusCrawling {
			return pagesCrawled, urlsDiscovered, ErrStopRequested
		}

		budgetLeft := c.maxPages - pagesCrawled
		if budgetLeft <= 0 {
			c.logger.Info("page budget reached",
				zap.String("audit_id", audit.ID), zap.Int("pages", pagesCrawled))
			return pagesCrawled, urlsDiscovered, nil
		}

		batchSize := c.concurrency
		if batchSize > budgetLeft {
			batchSize = budgetLeft
		}
		entries, err := c.store.DequeueBatch(ctx, audit.ID, batchSize)
		if err != nil {
			return pagesCrawled, urlsDiscovered, err
		}
		if len(entries) == 0 {
			return pagesCrawled, urlsDiscovered, nil // queue exhausted
		}

		results := c.fetchBatch(ctx, audit, entries)

		processedIDs := make([]int64, 0, len(results))
		var discovered []string
		for _, r := range results {
			if _, err := c.store.SavePage(ctx, r.page); err != nil {
				return pagesCrawled, urlsDiscovered, err
			}
			// Failed fetches are recorded as page rows but do not count as
			// crawled pages; a run that fetched nothing must not look resumable.
			if r.page.FetchError == "" {
				pagesCrawled++
				c.metrics.PagesCrawled.Inc()
			}
			processedIDs = append(processedIDs, r.entryID)

			for _, link := range r.links {
				fresh, err := c.dedup.MarkSeen(ctx, audit.ID, link)
				if err != nil {
					// Redis down: let the queue's uniqueness constraint dedup.
					fresh = true
				}
				if fresh {
					discovered = append(discovered, link)
				}
			}
		}

		if err := c.store.MarkProcessed(ctx, processedIDs); err != nil {
			return pagesCrawled, urlsDiscovered, err
		}
		if len(discovered) > 0 {
			added, err := c.store.EnqueueURLs(ctx, audit.ID, discovered)
			if err != nil {
				return pagesCrawled, urlsDiscovered, err
			}
			urlsDiscovered += added
		}
		if err := c.store.UpdateCrawlProgress(ctx, audit.ID, pagesCrawled, urlsDiscovered); err != nil {
			return pagesCrawled, urlsDiscovered, err
		}
	}
}

// fetchBatch fans out over the batch with one goroutine per entry. The batch
// size is already bounded by the concurrency limit, so no semaphore is needed.
func (c *Crawler) fetchBatch(ctx context.Context, audit *domain.Audit, entries []domain.CrawlQueueEntry) []pageResult {
	results := make([]pageResult, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry domain.CrawlQueueEntry) {
			defer wg.Done()
			results[i] = c.visit(ctx, audit, entry)
		}(i, entry)
	}
	wg.Wait()
	return results
}

func (c *Crawler) visit(ctx context.Context, audit *domain.Audit, entry domain.CrawlQueueEntry) pageResult {
	page := &domain.CrawledPage{
		AuditID: audit.ID,
		URL:     entry.URL,
	}

	res, err := c.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		c.metrics.FetchErrors.Inc()
		c.logger.Warn("fetch failed", zap.String("url", entry.URL), zap.Error(err))
		page.FetchError = err.Error()
		return pageResult{entryID: entry.ID, page: page}
	}

	page.StatusCode = res.StatusCode
	page.LastModified = res.LastModified

	if !res.IsHTML() {
		page.IsResource = true
		page.ResourceType = resourceType(res.ContentType)
		return pageResult{entryID: entry.ID, page: page}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML))
	if err == nil {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
		page.MetaDescription, _ = doc.Find(`meta[name="description"]`).First().Attr("content")
		page.MetaDescription = strings.TrimSpace(page.MetaDescription)
	}

	var links []string
	if res.StatusCode < 400 {
		links = ExtractLinks(res.HTML, audit.TargetURL, res.FinalURL)
	}
	return pageResult{entryID: entry.ID, page: page, links: links}
}

func resourceType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "image/"):
		return "image"
	case strings.Contains(ct, "application/pdf"):
		return "pdf"
	case strings.Contains(ct, "text/css"):
		return "stylesheet"
	case strings.Contains(ct, "javascript"):
		return "script"
	case strings.Contains(ct, "xml"):
		return "xml"
	default:
		return "other"
	}
}
