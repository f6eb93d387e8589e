package checks

import (
	"context"
	"fmt"
	"net/url"

	"github.com/temoto/robotstxt"
)

func checkBrokenLinks(_ context.Context, sc *SiteContext) (Result, error) {
	var broken []string
	for _, p := range sc.Pages {
		if p.FetchError != "" || p.StatusCode >= 400 {
			broken = append(broken, p.URL)
		}
	}
	details := map[string]any{"broken_count": len(broken), "broken_urls": broken}
	if len(broken) > 0 {
		return failed(details), nil
	}
	return passed(details), nil
}

// checkSitemap looks for /sitemap.xml first, then falls back to Sitemap:
// directives in robots.txt. A robots-declared sitemap that cannot be fetched
// downgrades the verdict to a warning rather than a failure.
func checkSitemap(ctx context.Context, sc *SiteContext) (Result, error) {
	origin, err := originOf(sc.Audit.TargetURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid target url: %w", err)
	}

	direct := origin + "/sitemap.xml"
	if res, err := sc.Fetcher.Fetch(ctx, direct); err == nil && res.StatusCode == 200 {
		return passed(map[string]any{"sitemap": direct}), nil
	}

	robotsRes, err := sc.Fetcher.Fetch(ctx, origin+"/robots.txt")
	if err != nil || robotsRes.StatusCode != 200 {
		return failed(map[string]any{"sitemap": nil}), nil
	}
	robots, err := robotstxt.FromBytes([]byte(robotsRes.HTML))
	if err != nil || len(robots.Sitemaps) == 0 {
		return failed(map[string]any{"sitemap": nil}), nil
	}

	for _, sm := range robots.Sitemaps {
		if res, err := sc.Fetcher.Fetch(ctx, sm); err == nil && res.StatusCode == 200 {
			return passed(map[string]any{"sitemap": sm, "declared_in": "robots.txt"}), nil
		}
	}
	return warning(map[string]any{
		"declared_sitemaps": robots.Sitemaps,
		"reachable":         false,
	}), nil
}

// checkHTTPSRedirect verifies that the plain-HTTP origin redirects to HTTPS.
func checkHTTPSRedirect(ctx context.Context, sc *SiteContext) (Result, error) {
	u, err := url.Parse(sc.Audit.TargetURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid target url: %w", err)
	}

	httpURL := "http://" + u.Host
	res, err := sc.Fetcher.Fetch(ctx, httpURL)
	if err != nil {
		// Port 80 closed entirely; cannot verify the redirect either way.
		return warning(map[string]any{"error": err.Error()}), nil
	}

	final, err := url.Parse(res.FinalURL)
	if err == nil && final.Scheme == "https" {
		return passed(map[string]any{"final_url": res.FinalURL}), nil
	}
	return failed(map[string]any{"final_url": res.FinalURL}), nil
}

func checkRobotsTxt(ctx context.Context, sc *SiteContext) (Result, error) {
	origin, err := originOf(sc.Audit.TargetURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid target url: %w", err)
	}

	res, err := sc.Fetcher.Fetch(ctx, origin+"/robots.txt")
	if err != nil || res.StatusCode != 200 {
		return warning(map[string]any{"robots_txt": false}), nil
	}
	if _, err := robotstxt.FromBytes([]byte(res.HTML)); err != nil {
		return warning(map[string]any{"robots_txt": true, "parse_error": err.Error()}), nil
	}
	return passed(map[string]any{"robots_txt": true}), nil
}

func originOf(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("missing scheme or host in %q", target)
	}
	return u.Scheme + "://" + u.Host, nil
}
