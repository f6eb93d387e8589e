package crawl

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks parses anchor hrefs out of an HTML document and returns the
// deduplicated set of same-site absolute URLs. Links are resolved against
// finalURL rather than baseURL so that links on a redirected page resolve
// correctly; the same-site filter is applied against baseURL's hostname with
// www/non-www equivalence.
func ExtractLinks(html, baseURL, finalURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	final, err := url.Parse(finalURL)
	if err != nil || final.Host == "" {
		final = base
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}

		resolved, err := final.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !SameSite(base.Hostname(), resolved.Hostname()) {
			return
		}

		normalized := Normalize(resolved)
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})

	return links
}

// SameSite reports whether two hostnames belong to the same origin, treating
// www and non-www variants as equivalent.
func SameSite(a, b string) bool {
	return stripWWW(a) != "" && stripWWW(a) == stripWWW(b)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// Normalize produces the canonical string form used for queue deduplication:
// fragment stripped, trailing slash stripped, default port dropped, host
// lowercased. "/about" and "/about/#section" collapse to the same entry.
func Normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	if (c.Scheme == "http" && strings.HasSuffix(c.Host, ":80")) ||
		(c.Scheme == "https" && strings.HasSuffix(c.Host, ":443")) {
		c.Host = c.Host[:strings.LastIndex(c.Host, ":")]
	}
	c.Path = strings.TrimSuffix(c.Path, "/")
	return c.String()
}

// NormalizeString parses and normalizes a raw URL, returning it unchanged if
// it does not parse.
func NormalizeString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return Normalize(u)
}
