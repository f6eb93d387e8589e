package domain

import "time"

// Status is the lifecycle state of an audit. It lives in the audits table and
// is the single source of truth across process boundaries.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCrawling  Status = "crawling"
	StatusChecking  Status = "checking"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Active reports whether a live worker may still hold this audit.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusCrawling || s == StatusChecking
}

// Terminal reports whether the status ends a run. Terminal audits carry a
// non-nil CompletedAt; active ones never do.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Audit is one end-to-end crawl-and-check job against a target URL.
type Audit struct {
	ID             string            `json:"id"`
	TargetURL      string            `json:"target_url"`
	OrganizationID *string           `json:"organization_id,omitempty"` // nil = ephemeral audit
	Status         Status            `json:"status"`
	URLsDiscovered int               `json:"urls_discovered"`
	PagesCrawled   int               `json:"pages_crawled"`
	OverallScore   int               `json:"overall_score"`
	CategoryScores map[string]int    `json:"category_scores,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// CrawledPage is one visited URL within an audit. Failed fetches are recorded
// too, with FetchError set and StatusCode zero.
type CrawledPage struct {
	ID              int64      `json:"id"`
	AuditID         string     `json:"audit_id"`
	URL             string     `json:"url"`
	StatusCode      int        `json:"status_code"`
	Title           string     `json:"title"`
	MetaDescription string     `json:"meta_description"`
	LastModified    *time.Time `json:"last_modified,omitempty"`
	IsResource      bool       `json:"is_resource"`
	ResourceType    string     `json:"resource_type,omitempty"`
	FetchError      string     `json:"fetch_error,omitempty"`
	CrawledAt       time.Time  `json:"crawled_at"`
}

// Check priorities, weighted by the scorer.
type Priority string

const (
	PriorityCritical    Priority = "critical"
	PriorityRecommended Priority = "recommended"
	PriorityOptional    Priority = "optional"
)

// Verdict is the outcome of a single check execution.
type Verdict string

const (
	VerdictPassed  Verdict = "passed"
	VerdictFailed  Verdict = "failed"
	VerdictWarning Verdict = "warning"
)

// Check categories used for per-category scoring.
const (
	CategorySEO         = "seo"
	CategoryAIReadiness = "ai_readiness"
	CategoryTechnical   = "technical"
)

// Check is one immutable verdict row. Site-wide checks have a nil PageID;
// page-scoped checks reference the CrawledPage they evaluated.
type Check struct {
	ID          int64          `json:"id"`
	AuditID     string         `json:"audit_id"`
	PageID      *int64         `json:"page_id,omitempty"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Priority    Priority       `json:"priority"`
	Verdict     Verdict        `json:"verdict"`
	Details     map[string]any `json:"details,omitempty"`
	DisplayName string         `json:"display_name"`
	FixGuidance string         `json:"fix_guidance,omitempty"`
	LearnMore   string         `json:"learn_more,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CrawlQueueEntry is a discovered URL awaiting crawl. Exists only while its
// audit is in the crawling stage; swept on completion or by cleanup.
type CrawlQueueEntry struct {
	ID           int64     `json:"id"`
	AuditID      string    `json:"audit_id"`
	URL          string    `json:"url"`
	Processed    bool      `json:"processed"`
	DiscoveredAt time.Time `json:"discovered_at"`
}
