package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"auditor/internal/domain"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("not found")

// PostgresStore handles interactions with the PostgreSQL database. All state
// transitions are conditional updates keyed by the expected current status,
// so two accidental concurrent workers cannot both advance the same audit.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Init creates the schema if it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audits (
			id              UUID PRIMARY KEY,
			target_url      TEXT NOT NULL,
			organization_id TEXT,
			root_domain     TEXT NOT NULL,
			status          TEXT NOT NULL,
			urls_discovered INT NOT NULL DEFAULT 0,
			pages_crawled   INT NOT NULL DEFAULT 0,
			overall_score   INT NOT NULL DEFAULT 0,
			category_scores JSONB,
			error_message   TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at      TIMESTAMPTZ,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at    TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS crawled_pages (
			id               BIGSERIAL PRIMARY KEY,
			audit_id         UUID NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
			url              TEXT NOT NULL,
			status_code      INT NOT NULL DEFAULT 0,
			title            TEXT NOT NULL DEFAULT '',
			meta_description TEXT NOT NULL DEFAULT '',
			last_modified    TIMESTAMPTZ,
			is_resource      BOOLEAN NOT NULL DEFAULT FALSE,
			resource_type    TEXT NOT NULL DEFAULT '',
			fetch_error      TEXT NOT NULL DEFAULT '',
			crawled_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (audit_id, url)
		);
		CREATE TABLE IF NOT EXISTS checks (
			id           BIGSERIAL PRIMARY KEY,
			audit_id     UUID NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
			page_id      BIGINT REFERENCES crawled_pages(id) ON DELETE CASCADE,
			name         TEXT NOT NULL,
			category     TEXT NOT NULL,
			priority     TEXT NOT NULL,
			verdict      TEXT NOT NULL,
			details      JSONB,
			display_name TEXT NOT NULL DEFAULT '',
			fix_guidance TEXT NOT NULL DEFAULT '',
			learn_more   TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS crawl_queue (
			id            BIGSERIAL PRIMARY KEY,
			audit_id      UUID NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
			url           TEXT NOT NULL,
			processed     BOOLEAN NOT NULL DEFAULT FALSE,
			discovered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (audit_id, url)
		);
		CREATE INDEX IF NOT EXISTS idx_checks_audit ON checks(audit_id);
		CREATE INDEX IF NOT EXISTS idx_pages_audit ON crawled_pages(audit_id);
		CREATE INDEX IF NOT EXISTS idx_queue_audit_processed ON crawl_queue(audit_id, processed);
	`)
	return err
}

// --- Audits ---

func (s *PostgresStore) CreateAudit(ctx context.Context, a *domain.Audit) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audits (id, target_url, organization_id, root_domain, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.TargetURL, a.OrganizationID, rootDomain(a.TargetURL), a.Status)
	return err
}

func (s *PostgresStore) GetAudit(ctx context.Context, id string) (*domain.Audit, error) {
	var a domain.Audit
	err := s.db.QueryRow(ctx,
		`SELECT id, target_url, organization_id, status, urls_discovered, pages_crawled,
		        overall_score, COALESCE(category_scores, '{}'::jsonb), error_message,
		        created_at, started_at, updated_at, completed_at
		 FROM audits WHERE id = $1`, id,
	).Scan(&a.ID, &a.TargetURL, &a.OrganizationID, &a.Status, &a.URLsDiscovered,
		&a.PagesCrawled, &a.OverallScore, &a.CategoryScores, &a.ErrorMessage,
		&a.CreatedAt, &a.StartedAt, &a.UpdatedAt, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// transition runs a conditional status update. It returns false when the audit
// was not in any of the expected states, which callers treat as "someone else
// owns this audit now".
func (s *PostgresStore) transition(ctx context.Context, id string, from []domain.Status, set string, args ...any) (bool, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}
	query := fmt.Sprintf(
		`UPDATE audits SET %s, updated_at = NOW() WHERE id = $1 AND status = ANY($2)`, set)
	tag, err := s.db.Exec(ctx, query, append([]any{id, states}, args...)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkCrawling moves a pending audit into the crawling stage.
func (s *PostgresStore) MarkCrawling(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id, []domain.Status{domain.StatusPending},
		`status = 'crawling', started_at = NOW()`)
}

// MarkChecking records crawl counters and enters the checking stage.
func (s *PostgresStore) MarkChecking(ctx context.Context, id string, pagesCrawled, urlsDiscovered int) (bool, error) {
	return s.transition(ctx, id, []domain.Status{domain.StatusCrawling},
		`status = 'checking', pages_crawled = $3, urls_discovered = $4`,
		pagesCrawled, urlsDiscovered)
}

// MarkResumed re-enters the checking stage from a terminal failed/stopped state.
func (s *PostgresStore) MarkResumed(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id, []domain.Status{domain.StatusFailed, domain.StatusStopped},
		`status = 'checking', error_message = '', completed_at = NULL`)
}

// MarkCompleted finishes a checking audit with its final scores.
func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, overall int, categories map[string]int) (bool, error) {
	return s.transition(ctx, id, []domain.Status{domain.StatusChecking},
		`status = 'completed', overall_score = $3, category_scores = $4, completed_at = NOW()`,
		overall, categories)
}

// MarkFailed terminates any active audit with an error message.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, msg string) (bool, error) {
	return s.transition(ctx, id,
		[]domain.Status{domain.StatusPending, domain.StatusCrawling, domain.StatusChecking},
		`status = 'failed', error_message = $3, completed_at = NOW()`, msg)
}

// MarkStopped requests cooperative shutdown of a live run.
func (s *PostgresStore) MarkStopped(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, id,
		[]domain.Status{domain.StatusPending, domain.StatusCrawling, domain.StatusChecking},
		`status = 'stopped', completed_at = NOW()`)
}

// Touch advances updated_at for an active audit. updated_at is the sole
// liveness signal consumers have, so the runner touches it between units of
// work even when nothing else changed.
func (s *PostgresStore) Touch(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE audits SET updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'crawling', 'checking')`, id)
	return err
}

// UpdateCrawlProgress refreshes counters mid-crawl.
func (s *PostgresStore) UpdateCrawlProgress(ctx context.Context, id string, pagesCrawled, urlsDiscovered int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE audits SET pages_crawled = $2, urls_discovered = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'crawling'`, id, pagesCrawled, urlsDiscovered)
	return err
}

// --- Crawled pages ---

func (s *PostgresStore) SavePage(ctx context.Context, p *domain.CrawledPage) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO crawled_pages
		   (audit_id, url, status_code, title, meta_description, last_modified,
		    is_resource, resource_type, fetch_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (audit_id, url) DO UPDATE SET
		   status_code = EXCLUDED.status_code, title = EXCLUDED.title,
		   meta_description = EXCLUDED.meta_description, fetch_error = EXCLUDED.fetch_error
		 RETURNING id`,
		p.AuditID, p.URL, p.StatusCode, p.Title, p.MetaDescription, p.LastModified,
		p.IsResource, p.ResourceType, p.FetchError,
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) ListPages(ctx context.Context, auditID string) ([]domain.CrawledPage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, audit_id, url, status_code, title, meta_description, last_modified,
		        is_resource, resource_type, fetch_error, crawled_at
		 FROM crawled_pages WHERE audit_id = $1 ORDER BY id`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []domain.CrawledPage
	for rows.Next() {
		var p domain.CrawledPage
		if err := rows.Scan(&p.ID, &p.AuditID, &p.URL, &p.StatusCode, &p.Title,
			&p.MetaDescription, &p.LastModified, &p.IsResource, &p.ResourceType,
			&p.FetchError, &p.CrawledAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// --- Checks ---

// SaveChecks bulk-inserts check rows in a single batch. Checks are immutable;
// a re-run appends new rows rather than mutating old ones.
func (s *PostgresStore) SaveChecks(ctx context.Context, checks []domain.Check) error {
	if len(checks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range checks {
		batch.Queue(
			`INSERT INTO checks
			   (audit_id, page_id, name, category, priority, verdict, details,
			    display_name, fix_guidance, learn_more)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.AuditID, c.PageID, c.Name, c.Category, c.Priority, c.Verdict, c.Details,
			c.DisplayName, c.FixGuidance, c.LearnMore)
	}
	return s.db.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) ListChecks(ctx context.Context, auditID string) ([]domain.Check, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, audit_id, page_id, name, category, priority, verdict,
		        COALESCE(details, '{}'::jsonb), display_name, fix_guidance, learn_more, created_at
		 FROM checks WHERE audit_id = $1 ORDER BY id`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []domain.Check
	for rows.Next() {
		var c domain.Check
		if err := rows.Scan(&c.ID, &c.AuditID, &c.PageID, &c.Name, &c.Category,
			&c.Priority, &c.Verdict, &c.Details, &c.DisplayName, &c.FixGuidance,
			&c.LearnMore, &c.CreatedAt); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

func (s *PostgresStore) CountChecks(ctx context.Context, auditID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM checks WHERE audit_id = $1`, auditID).Scan(&n)
	return n, err
}

// --- Crawl queue ---

// EnqueueURLs adds discovered URLs, ignoring ones already known to this audit.
// Returns how many were newly added.
func (s *PostgresStore) EnqueueURLs(ctx context.Context, auditID string, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, u := range urls {
		batch.Queue(
			`INSERT INTO crawl_queue (audit_id, url) VALUES ($1, $2)
			 ON CONFLICT (audit_id, url) DO NOTHING`, auditID, u)
	}
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	added := 0
	for range urls {
		tag, err := results.Exec()
		if err != nil {
			return added, err
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// DequeueBatch returns up to limit unprocessed entries in discovery order.
func (s *PostgresStore) DequeueBatch(ctx context.Context, auditID string, limit int) ([]domain.CrawlQueueEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, audit_id, url, processed, discovered_at
		 FROM crawl_queue WHERE audit_id = $1 AND processed = FALSE
		 ORDER BY id LIMIT $2`, auditID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CrawlQueueEntry
	for rows.Next() {
		var e domain.CrawlQueueEntry
		if err := rows.Scan(&e.ID, &e.AuditID, &e.URL, &e.Processed, &e.DiscoveredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE crawl_queue SET processed = TRUE WHERE id = ANY($1)`, ids)
	return err
}

// DeleteQueue removes every queue entry for an audit.
func (s *PostgresStore) DeleteQueue(ctx context.Context, auditID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM crawl_queue WHERE audit_id = $1`, auditID)
	return tag.RowsAffected(), err
}

// --- Retention / cleanup ---

// CleanupCounts reports what a retention sweep removed.
type CleanupCounts struct {
	ChecksDeleted       int64 `json:"checks_deleted"`
	PagesDeleted        int64 `json:"pages_deleted"`
	AuditsDeleted       int64 `json:"audits_deleted"`
	QueueEntriesDeleted int64 `json:"queue_entries_deleted"`
}

// DeleteSupersededDetails drops check and page rows for audits superseded by a
// newer completed/stopped audit of the same organization, or of the same root
// domain for ephemeral audits. The audit rows themselves are kept so the score
// trend survives. Idempotent: a second run finds nothing left to delete.
func (s *PostgresStore) DeleteSupersededDetails(ctx context.Context) (checks, pages int64, err error) {
	const superseded = `
		SELECT a.id FROM audits a
		WHERE a.status IN ('completed', 'stopped', 'failed')
		  AND EXISTS (
			SELECT 1 FROM audits b
			WHERE b.id <> a.id
			  AND b.status IN ('completed', 'stopped')
			  AND b.created_at > a.created_at
			  AND ((a.organization_id IS NOT NULL AND b.organization_id = a.organization_id)
			       OR (a.organization_id IS NULL AND b.organization_id IS NULL
			           AND b.root_domain = a.root_domain)))`

	tag, err := s.db.Exec(ctx, `DELETE FROM checks WHERE audit_id IN (`+superseded+`)`)
	if err != nil {
		return 0, 0, err
	}
	checks = tag.RowsAffected()

	tag, err = s.db.Exec(ctx, `DELETE FROM crawled_pages WHERE audit_id IN (`+superseded+`)`)
	if err != nil {
		return checks, 0, err
	}
	return checks, tag.RowsAffected(), nil
}

// DeleteExpiredEphemeral fully removes ephemeral audits past the retention
// age; pages, checks and queue entries cascade.
func (s *PostgresStore) DeleteExpiredEphemeral(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM audits
		 WHERE organization_id IS NULL AND created_at < NOW() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	return tag.RowsAffected(), err
}

// SweepOrphanQueues removes queue entries left behind by crawls that never
// reached completion (crashed or killed jobs).
func (s *PostgresStore) SweepOrphanQueues(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM crawl_queue
		 WHERE audit_id IN (SELECT id FROM audits WHERE status <> 'crawling')`)
	return tag.RowsAffected(), err
}

// rootDomain derives the supersession grouping key for ephemeral audits:
// the target hostname with any www prefix removed.
func rootDomain(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
