package checks

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditor/internal/domain"
)

func pageCtx(t *testing.T, html string) *PageContext {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return &PageContext{
		Audit:   &domain.Audit{ID: "a1", TargetURL: "https://example.com"},
		Page:    &domain.CrawledPage{ID: 1, URL: "https://example.com/page"},
		Doc:     doc,
		PageURL: "https://example.com/page",
	}
}

func TestCheckTitle(t *testing.T) {
	cases := []struct {
		name    string
		html    string
		verdict domain.Verdict
	}{
		{"missing", `<html><head></head></html>`, domain.VerdictFailed},
		{"empty", `<html><head><title>  </title></head></html>`, domain.VerdictFailed},
		{"ok", `<html><head><title>Pricing - Example</title></head></html>`, domain.VerdictPassed},
		{"too long", `<html><head><title>` + strings.Repeat("long title ", 10) + `</title></head></html>`, domain.VerdictWarning},
		// 55 runes but 110 bytes; must be measured in characters.
		{"multibyte within limit", `<html><head><title>` + strings.Repeat("é", 55) + `</title></head></html>`, domain.VerdictPassed},
		{"multibyte too long", `<html><head><title>` + strings.Repeat("é", 61) + `</title></head></html>`, domain.VerdictWarning},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := checkTitle(context.Background(), pageCtx(t, tc.html))
			require.NoError(t, err)
			assert.Equal(t, tc.verdict, res.Verdict)
		})
	}
}

func TestCheckMetaDescription(t *testing.T) {
	good := strings.Repeat("good words ", 10) // within 50-160 chars
	cases := []struct {
		name    string
		html    string
		verdict domain.Verdict
	}{
		{"missing", `<html><head></head></html>`, domain.VerdictFailed},
		{"too short", `<html><head><meta name="description" content="short"></head></html>`, domain.VerdictWarning},
		{"good", `<html><head><meta name="description" content="` + good + `"></head></html>`, domain.VerdictPassed},
		// 80 runes, 160 bytes; byte counting would wrongly flag this.
		{"multibyte good", `<html><head><meta name="description" content="` + strings.Repeat("ü", 80) + `"></head></html>`, domain.VerdictPassed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := checkMetaDescription(context.Background(), pageCtx(t, tc.html))
			require.NoError(t, err)
			assert.Equal(t, tc.verdict, res.Verdict)
		})
	}
}

func TestCheckSingleH1(t *testing.T) {
	res, err := checkSingleH1(context.Background(), pageCtx(t, `<body><h1>One</h1></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)

	res, err = checkSingleH1(context.Background(), pageCtx(t, `<body><p>none</p></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)

	res, err = checkSingleH1(context.Background(), pageCtx(t, `<body><h1>a</h1><h1>b</h1></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictWarning, res.Verdict)
}

func TestCheckHeadingOrder(t *testing.T) {
	res, err := checkHeadingOrder(context.Background(),
		pageCtx(t, `<body><h1>a</h1><h2>b</h2><h3>c</h3></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)

	res, err = checkHeadingOrder(context.Background(),
		pageCtx(t, `<body><h1>a</h1><h4>skipped</h4></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictWarning, res.Verdict)
}

func TestCheckImageAlt(t *testing.T) {
	res, err := checkImageAlt(context.Background(),
		pageCtx(t, `<body><img src="a.png" alt="a"><img src="b.png" alt="b"></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)

	res, err = checkImageAlt(context.Background(),
		pageCtx(t, `<body><img src="a.png"><img src="b.png"></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)

	res, err = checkImageAlt(context.Background(), pageCtx(t, `<body><p>no images</p></body>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)
}

func TestCheckNoindex(t *testing.T) {
	res, err := checkNoindex(context.Background(),
		pageCtx(t, `<head><meta name="robots" content="noindex, nofollow"></head>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictWarning, res.Verdict)

	res, err = checkNoindex(context.Background(), pageCtx(t, `<head></head>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)
}

func TestCheckWordCount(t *testing.T) {
	thin := `<body>` + strings.Repeat("word ", 100) + `</body>`
	res, err := checkWordCount(context.Background(), pageCtx(t, thin))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictWarning, res.Verdict)

	rich := `<body>` + strings.Repeat("word ", 300) + `</body>`
	res, err = checkWordCount(context.Background(), pageCtx(t, rich))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)

	// Script and style text must not count as content.
	scripted := `<body><script>` + strings.Repeat("var x; ", 200) + `</script>tiny</body>`
	res, err = checkWordCount(context.Background(), pageCtx(t, scripted))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)
}

func TestCheckStructuredData(t *testing.T) {
	res, err := checkStructuredData(context.Background(),
		pageCtx(t, `<head><script type="application/ld+json">{"@type":"Organization"}</script></head>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)

	res, err = checkStructuredData(context.Background(), pageCtx(t, `<head></head>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)
}

func TestCheckOpenGraph(t *testing.T) {
	full := `<head><meta property="og:title" content="T"><meta property="og:description" content="D"></head>`
	res, err := checkOpenGraph(context.Background(), pageCtx(t, full))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPassed, res.Verdict)

	partial := `<head><meta property="og:title" content="T"></head>`
	res, err = checkOpenGraph(context.Background(), pageCtx(t, partial))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictWarning, res.Verdict)

	res, err = checkOpenGraph(context.Background(), pageCtx(t, `<head></head>`))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictFailed, res.Verdict)
}
