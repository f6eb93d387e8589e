package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	AuditsTotal     *prometheus.CounterVec
	PagesCrawled    prometheus.Counter
	FetchErrors     prometheus.Counter
	ChecksExecuted  *prometheus.CounterVec
	CleanupDeleted  *prometheus.CounterVec
	CrawlDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		AuditsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_audits_total",
			Help: "Audits by terminal outcome",
		}, []string{"outcome"}), // 'completed', 'failed', 'stopped'
		PagesCrawled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditor_pages_crawled_total",
			Help: "The total number of pages fetched and recorded",
		}),
		FetchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "auditor_fetch_errors_total",
			Help: "The total number of per-URL fetch failures",
		}),
		ChecksExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_checks_executed_total",
			Help: "Check executions by verdict",
		}, []string{"verdict"}),
		CleanupDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_cleanup_deleted_total",
			Help: "Rows removed by retention sweeps",
		}, []string{"kind"}), // 'checks', 'pages', 'audits', 'queue_entries'
		CrawlDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_crawl_duration_seconds",
			Help:    "Wall time of the crawl phase per audit",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) IncAuditOutcome(outcome string) {
	m.AuditsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCheckVerdict(verdict string) {
	m.ChecksExecuted.WithLabelValues(verdict).Inc()
}
