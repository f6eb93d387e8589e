package checks

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"auditor/internal/crawl"
)

const (
	titleMaxLength    = 60
	descriptionMin    = 50
	descriptionMax    = 160
	thinContentWords  = 200
	emptyContentWords = 50
)

func checkTitle(_ context.Context, pc *PageContext) (Result, error) {
	title := strings.TrimSpace(pc.Doc.Find("title").First().Text())
	// Length limits are character guidance, so count runes, not bytes.
	length := utf8.RuneCountInString(title)
	details := map[string]any{"title": title, "length": length}
	switch {
	case title == "":
		return failed(details), nil
	case length > titleMaxLength:
		return warning(details), nil
	default:
		return passed(details), nil
	}
}

func checkMetaDescription(_ context.Context, pc *PageContext) (Result, error) {
	desc, _ := pc.Doc.Find(`meta[name="description"]`).First().Attr("content")
	desc = strings.TrimSpace(desc)
	length := utf8.RuneCountInString(desc)
	details := map[string]any{"description": desc, "length": length}
	switch {
	case desc == "":
		return failed(details), nil
	case length < descriptionMin || length > descriptionMax:
		return warning(details), nil
	default:
		return passed(details), nil
	}
}

func checkSingleH1(_ context.Context, pc *PageContext) (Result, error) {
	count := pc.Doc.Find("h1").Length()
	details := map[string]any{"h1_count": count}
	switch {
	case count == 0:
		return failed(details), nil
	case count > 1:
		return warning(details), nil
	default:
		return passed(details), nil
	}
}

func checkHeadingOrder(_ context.Context, pc *PageContext) (Result, error) {
	last := 0
	skipped := false
	pc.Doc.Find("h1, h2, h3, h4, h5, h6").Each(func(i int, s *goquery.Selection) {
		level := int(s.Get(0).Data[1] - '0')
		if last != 0 && level > last+1 {
			skipped = true
		}
		last = level
	})
	if skipped {
		return warning(map[string]any{"skipped_level": true}), nil
	}
	return passed(nil), nil
}

func checkImageAlt(_ context.Context, pc *PageContext) (Result, error) {
	total, missing := 0, 0
	pc.Doc.Find("img").Each(func(i int, s *goquery.Selection) {
		total++
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			missing++
		}
	})
	details := map[string]any{"images": total, "missing_alt": missing}
	switch {
	case total == 0 || missing == 0:
		return passed(details), nil
	case missing*5 <= total: // up to 20% missing
		return warning(details), nil
	default:
		return failed(details), nil
	}
}

// checkCanonical enforces two policies: a canonical target that redirects is
// downgraded to a warning, and a canonical chain (the target declares a
// different canonical of its own) is a failure.
func checkCanonical(ctx context.Context, pc *PageContext) (Result, error) {
	href, ok := pc.Doc.Find(`link[rel="canonical"]`).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return warning(map[string]any{"canonical": nil}), nil
	}

	canonical := resolveAgainst(pc.PageURL, href)
	details := map[string]any{"canonical": canonical}

	if crawl.NormalizeString(canonical) == crawl.NormalizeString(pc.PageURL) {
		return passed(details), nil
	}

	res, err := pc.Fetcher.Fetch(ctx, canonical)
	if err != nil {
		details["error"] = err.Error()
		return warning(details), nil
	}
	if crawl.NormalizeString(res.FinalURL) != crawl.NormalizeString(canonical) {
		details["redirected_to"] = res.FinalURL
		return warning(details), nil
	}

	if res.IsHTML() {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.HTML)); err == nil {
			if tgt, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
				tgt = resolveAgainst(res.FinalURL, strings.TrimSpace(tgt))
				if tgt != "" && crawl.NormalizeString(tgt) != crawl.NormalizeString(canonical) {
					details["target_canonical"] = tgt
					return failed(details), nil
				}
			}
		}
	}
	return passed(details), nil
}

func checkNoindex(_ context.Context, pc *PageContext) (Result, error) {
	robots, _ := pc.Doc.Find(`meta[name="robots"]`).First().Attr("content")
	if strings.Contains(strings.ToLower(robots), "noindex") {
		return warning(map[string]any{"robots": robots}), nil
	}
	return passed(nil), nil
}

func checkWordCount(_ context.Context, pc *PageContext) (Result, error) {
	body := pc.Doc.Clone()
	body.Find("script, style, noscript").Remove()
	words := len(strings.Fields(body.Find("body").Text()))
	details := map[string]any{"word_count": words}
	switch {
	case words < emptyContentWords:
		return failed(details), nil
	case words < thinContentWords:
		return warning(details), nil
	default:
		return passed(details), nil
	}
}

func checkStructuredData(_ context.Context, pc *PageContext) (Result, error) {
	count := pc.Doc.Find(`script[type="application/ld+json"]`).Length()
	details := map[string]any{"json_ld_blocks": count}
	if count == 0 {
		return failed(details), nil
	}
	return passed(details), nil
}

func checkOpenGraph(_ context.Context, pc *PageContext) (Result, error) {
	ogTitle, _ := pc.Doc.Find(`meta[property="og:title"]`).First().Attr("content")
	ogDesc, _ := pc.Doc.Find(`meta[property="og:description"]`).First().Attr("content")
	details := map[string]any{
		"og_title":       strings.TrimSpace(ogTitle) != "",
		"og_description": strings.TrimSpace(ogDesc) != "",
	}
	switch {
	case ogTitle != "" && ogDesc != "":
		return passed(details), nil
	case ogTitle != "" || ogDesc != "":
		return warning(details), nil
	default:
		return failed(details), nil
	}
}

// resolveAgainst resolves a possibly relative href against a base URL,
// returning the href unchanged when either side does not parse.
func resolveAgainst(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	u, err := b.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}
