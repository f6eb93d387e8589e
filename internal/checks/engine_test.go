package checks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"auditor/internal/domain"
	"auditor/internal/fetch"
	"auditor/internal/monitoring"
)

// One registration per test binary; promauto uses the default registry.
var testMetrics = monitoring.NewMetrics()

func testFetcher(t *testing.T) *fetch.Fetcher {
	t.Helper()
	return fetch.NewFetcher(5*time.Second, "auditor-test/1.0", zap.NewNop())
}

func testEngine(t *testing.T, defs []Definition) *Engine {
	t.Helper()
	return NewEngine(defs, testFetcher(t), testMetrics, zap.NewNop(), 2)
}

func siteCtx(t *testing.T, target string, pages []domain.CrawledPage) *SiteContext {
	t.Helper()
	return &SiteContext{
		Audit:   &domain.Audit{ID: "a1", TargetURL: target},
		Pages:   pages,
		Fetcher: testFetcher(t),
	}
}

func TestEngineIsolatesPanickingDefinition(t *testing.T) {
	defs := []Definition{
		{
			Name: "explodes", Category: domain.CategorySEO, Priority: domain.PriorityOptional,
			SiteWide:    true,
			DisplayName: "Explodes",
			RunSite: func(ctx context.Context, sc *SiteContext) (Result, error) {
				panic("boom")
			},
		},
		{
			Name: "fine", Category: domain.CategorySEO, Priority: domain.PriorityOptional,
			SiteWide:    true,
			DisplayName: "Fine",
			RunSite: func(ctx context.Context, sc *SiteContext) (Result, error) {
				return passed(nil), nil
			},
		},
	}

	engine := testEngine(t, defs)
	out := engine.RunSiteChecks(context.Background(), &domain.Audit{ID: "a1"}, nil)
	require.Len(t, out, 2)

	assert.Equal(t, domain.VerdictFailed, out[0].Verdict)
	assert.Contains(t, out[0].Details["error"], "boom")
	assert.Equal(t, domain.VerdictPassed, out[1].Verdict)
}

func TestEngineRecordsErrorAsFailedVerdict(t *testing.T) {
	defs := []Definition{{
		Name: "errors", Category: domain.CategoryTechnical, Priority: domain.PriorityCritical,
		SiteWide:    true,
		DisplayName: "Errors out",
		RunSite: func(ctx context.Context, sc *SiteContext) (Result, error) {
			return Result{}, errors.New("dns lookup timed out")
		},
	}}

	out := testEngine(t, defs).RunSiteChecks(context.Background(), &domain.Audit{ID: "a1"}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, domain.VerdictFailed, out[0].Verdict)
	assert.Equal(t, "dns lookup timed out", out[0].Details["error"])
}

func TestEngineUsesPassedDisplayName(t *testing.T) {
	defs := []Definition{{
		Name: "always_ok", Category: domain.CategorySEO, Priority: domain.PriorityOptional,
		SiteWide:    true,
		DisplayName: "Thing is broken",
		PassedName:  "Thing is fine",
		RunSite: func(ctx context.Context, sc *SiteContext) (Result, error) {
			return passed(nil), nil
		},
	}}

	out := testEngine(t, defs).RunSiteChecks(context.Background(), &domain.Audit{ID: "a1"}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "Thing is fine", out[0].DisplayName)
}

func TestEngineSkipsResourcesAndFailedPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Ok</title></head><body></body></html>`))
	}))
	defer srv.Close()

	pages := []domain.CrawledPage{
		{ID: 1, AuditID: "a1", URL: srv.URL + "/", StatusCode: 200},
		{ID: 2, AuditID: "a1", URL: srv.URL + "/style.css", StatusCode: 200, IsResource: true, ResourceType: "stylesheet"},
		{ID: 3, AuditID: "a1", URL: srv.URL + "/gone", StatusCode: 404},
		{ID: 4, AuditID: "a1", URL: srv.URL + "/dead", FetchError: "connection refused"},
	}

	defs := []Definition{{
		Name: "title_tag", Category: domain.CategorySEO, Priority: domain.PriorityCritical,
		DisplayName: "Missing title", PassedName: "Has title",
		RunPage: checkTitle,
	}}
	out := testEngine(t, defs).RunPageChecks(context.Background(), &domain.Audit{ID: "a1"}, pages)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].PageID)
	assert.Equal(t, int64(1), *out[0].PageID)
	assert.Equal(t, domain.VerdictPassed, out[0].Verdict)
}

func TestEngineRecordsUnreachablePageAsWarning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // page was crawled once but is gone by check time

	pages := []domain.CrawledPage{{ID: 7, AuditID: "a1", URL: srv.URL + "/", StatusCode: 200}}
	defs := []Definition{{
		Name: "title_tag", Category: domain.CategorySEO, Priority: domain.PriorityCritical,
		DisplayName: "Missing title", RunPage: checkTitle,
	}}
	out := testEngine(t, defs).RunPageChecks(context.Background(), &domain.Audit{ID: "a1"}, pages)

	require.Len(t, out, 1)
	assert.Equal(t, "page_availability", out[0].Name)
	assert.Equal(t, domain.VerdictWarning, out[0].Verdict)
	require.NotNil(t, out[0].PageID)
	assert.Equal(t, int64(7), *out[0].PageID)
	assert.Contains(t, out[0].Details, "error")
}

func TestCanonicalRedirectingTargetIsWarning(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="canonical" href="` + srv.URL + `/moved"></head><body></body></html>`))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Final</title></head><body></body></html>`))
	})

	pages := []domain.CrawledPage{{ID: 1, AuditID: "a1", URL: srv.URL + "/page", StatusCode: 200}}
	defs := []Definition{{
		Name: "canonical", Category: domain.CategorySEO, Priority: domain.PriorityCritical,
		DisplayName: "Canonical", RunPage: checkCanonical,
	}}
	out := testEngine(t, defs).RunPageChecks(context.Background(), &domain.Audit{ID: "a1"}, pages)

	require.Len(t, out, 1)
	assert.Equal(t, domain.VerdictWarning, out[0].Verdict)
	assert.Contains(t, out[0].Details, "redirected_to")
}

func TestCanonicalChainIsFailed(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// /page declares /b as canonical; /b itself declares /c. The target's
	// canonical disagrees with the source, which is a hard failure.
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="canonical" href="` + srv.URL + `/b"></head><body></body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="canonical" href="` + srv.URL + `/c"></head><body></body></html>`))
	})

	pages := []domain.CrawledPage{{ID: 1, AuditID: "a1", URL: srv.URL + "/page", StatusCode: 200}}
	defs := []Definition{{
		Name: "canonical", Category: domain.CategorySEO, Priority: domain.PriorityCritical,
		DisplayName: "Canonical", RunPage: checkCanonical,
	}}
	out := testEngine(t, defs).RunPageChecks(context.Background(), &domain.Audit{ID: "a1"}, pages)

	require.Len(t, out, 1)
	assert.Equal(t, domain.VerdictFailed, out[0].Verdict)
	assert.Contains(t, out[0].Details, "target_canonical")
}

func TestCanonicalSelfReferenceIsPassed(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><link rel="canonical" href="` + srv.URL + `/page"></head><body></body></html>`))
	})

	pages := []domain.CrawledPage{{ID: 1, AuditID: "a1", URL: srv.URL + "/page", StatusCode: 200}}
	defs := []Definition{{
		Name: "canonical", Category: domain.CategorySEO, Priority: domain.PriorityCritical,
		DisplayName: "Canonical", RunPage: checkCanonical,
	}}
	out := testEngine(t, defs).RunPageChecks(context.Background(), &domain.Audit{ID: "a1"}, pages)

	require.Len(t, out, 1)
	assert.Equal(t, domain.VerdictPassed, out[0].Verdict)
}

func TestSitemapPolicies(t *testing.T) {
	t.Run("direct sitemap passes", func(t *testing.T) {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()
		mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<urlset></urlset>`))
		})

		res, err := checkSitemap(context.Background(), siteCtx(t, srv.URL, nil))
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictPassed, res.Verdict)
	})

	t.Run("robots-declared reachable sitemap passes", func(t *testing.T) {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("User-agent: *\nAllow: /\nSitemap: " + srv.URL + "/custom-map.xml\n"))
		})
		mux.HandleFunc("/custom-map.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<urlset></urlset>`))
		})

		res, err := checkSitemap(context.Background(), siteCtx(t, srv.URL, nil))
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictPassed, res.Verdict)
	})

	t.Run("robots-declared unreachable sitemap downgrades to warning", func(t *testing.T) {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()
		mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("User-agent: *\nSitemap: " + srv.URL + "/missing-map.xml\n"))
		})

		res, err := checkSitemap(context.Background(), siteCtx(t, srv.URL, nil))
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictWarning, res.Verdict)
	})

	t.Run("no sitemap anywhere fails", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		res, err := checkSitemap(context.Background(), siteCtx(t, srv.URL, nil))
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictFailed, res.Verdict)
	})
}

func TestBrokenLinks(t *testing.T) {
	pages := []domain.CrawledPage{
		{URL: "https://example.com/", StatusCode: 200},
		{URL: "https://example.com/gone", StatusCode: 404},
		{URL: "https://example.com/dead", FetchError: "connection refused"},
	}
	res, err := checkBrokenLinks(context.Background(), siteCtx(t, "https://example.com", pages))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)
	assert.Equal(t, 2, res.Details["broken_count"])

	res, err = checkBrokenLinks(context.Background(), siteCtx(t, "https://example.com", pages[:1]))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)
}

func TestHTTPSRedirectNotRedirectingFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain http"))
	}))
	defer srv.Close()

	res, err := checkHTTPSRedirect(context.Background(), siteCtx(t, srv.URL, nil))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)
}
