package checks

import "auditor/internal/domain"

// Registry is the static table of every check definition the engine runs.
// Adding a check means adding a row here; the engine and scorer pick it up
// without further wiring.
func Registry() []Definition {
	return []Definition{
		{
			Name:        "title_tag",
			Category:    domain.CategorySEO,
			Priority:    domain.PriorityCritical,
			DisplayName: "Page is missing a usable title tag",
			PassedName:  "Page has a title tag",
			FixGuidance: "Add a unique <title> of at most 60 characters describing the page.",
			LearnMore:   "https://developers.google.com/search/docs/appearance/title-link",
			RunPage:     checkTitle,
		},
		{
			Name:        "meta_description",
			Category:    domain.CategorySEO,
			Priority:    domain.PriorityRecommended,
			DisplayName: "Page is missing a meta description",
			PassedName:  "Page has a meta description",
			FixGuidance: "Add a <meta name=\"description\"> of 50-160 characters.",
			RunPage:     checkMetaDescription,
		},
		{
			Name:        "single_h1",
			Category:    domain.CategorySEO,
			Priority:    domain.PriorityRecommended,
			DisplayName: "Page does not have exactly one H1",
			PassedName:  "Page has exactly one H1",
			FixGuidance: "Use a single H1 heading per page.",
			RunPage:     checkSingleH1,
		},
		{
			Name:        "heading_order",
			Category:    domain.CategorySEO,
			Priority:    domain.PriorityOptional,
			DisplayName: "Heading levels are skipped",
			PassedName:  "Heading levels are in order",
			FixGuidance: "Do not jump heading levels (e.g. H1 directly to H3).",
			RunPage:     checkHeadingOrder,
		},
		{
			Name:        "image_alt",
			Category:    domain.CategorySEO,
			Priority:    domain.PriorityRecommended,
			DisplayName: "Images are missing alt text",
			PassedName:  "All images have alt text",
			FixGuidance: "Add descriptive alt attributes to every content image.",
			RunPage:     checkImageAlt,
		},
		{
			Name:        "canonical",
			Category:    domain.CategorySEO,
			Priority:    domain.PriorityCritical,
			DisplayName: "Canonical tag is missing or inconsistent",
			PassedName:  "Canonical tag is consistent",
			FixGuidance: "Point rel=\"canonical\" at the final, non-redirecting URL of the preferred version.",
			LearnMore:   "https://developers.google.com/search/docs/crawling-indexing/consolidate-duplicate-urls",
			RunPage:     checkCanonical,
		},
		{
			Name:        "noindex",
			Category:    domain.CategoryTechnical,
			Priority:    domain.PriorityCritical,
			DisplayName: "Page is excluded from indexing",
			PassedName:  "Page is indexable",
			FixGuidance: "Remove the noindex robots directive if this page should rank.",
			RunPage:     checkNoindex,
		},
		{
			Name:        "word_count",
			Category:    domain.CategoryAIReadiness,
			Priority:    domain.PriorityRecommended,
			DisplayName: "Page has thin content",
			PassedName:  "Page has substantial content",
			FixGuidance: "Pages under 200 words rarely get cited; expand the main content.",
			RunPage:     checkWordCount,
		},
		{
			Name:        "structured_data",
			Category:    domain.CategoryAIReadiness,
			Priority:    domain.PriorityRecommended,
			DisplayName: "Page has no structured data",
			PassedName:  "Page declares structured data",
			FixGuidance: "Add JSON-LD structured data so machines can interpret the page.",
			LearnMore:   "https://schema.org/docs/gs.html",
			RunPage:     checkStructuredData,
		},
		{
			Name:        "open_graph",
			Category:    domain.CategoryAIReadiness,
			Priority:    domain.PriorityOptional,
			DisplayName: "Open Graph tags are incomplete",
			PassedName:  "Open Graph tags are present",
			FixGuidance: "Add og:title and og:description meta tags.",
			RunPage:     checkOpenGraph,
		},
		{
			Name:        "broken_links",
			Category:    domain.CategoryTechnical,
			Priority:    domain.PriorityCritical,
			SiteWide:    true,
			DisplayName: "Site has broken internal pages",
			PassedName:  "No broken internal pages found",
			FixGuidance: "Fix or redirect the listed URLs that return errors.",
			RunSite:     checkBrokenLinks,
		},
		{
			Name:        "sitemap",
			Category:    domain.CategoryTechnical,
			Priority:    domain.PriorityCritical,
			SiteWide:    true,
			DisplayName: "No XML sitemap found",
			PassedName:  "XML sitemap found",
			FixGuidance: "Publish /sitemap.xml or declare one in robots.txt.",
			LearnMore:   "https://www.sitemaps.org/protocol.html",
			RunSite:     checkSitemap,
		},
		{
			Name:        "https_redirect",
			Category:    domain.CategoryTechnical,
			Priority:    domain.PriorityCritical,
			SiteWide:    true,
			DisplayName: "HTTP traffic is not redirected to HTTPS",
			PassedName:  "HTTP redirects to HTTPS",
			FixGuidance: "Redirect all plain-HTTP requests to the HTTPS origin.",
			RunSite:     checkHTTPSRedirect,
		},
		{
			Name:        "robots_txt",
			Category:    domain.CategoryTechnical,
			Priority:    domain.PriorityRecommended,
			SiteWide:    true,
			DisplayName: "robots.txt is missing or invalid",
			PassedName:  "robots.txt is present",
			FixGuidance: "Serve a valid robots.txt at the site root.",
			RunSite:     checkRobotsTxt,
		},
	}
}
