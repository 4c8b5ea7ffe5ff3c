// Package markdown turns fetched HTML evidence into readable markdown text.
package markdown

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ConvertHTML converts an HTML document to markdown with boilerplate
// stripped, so packaged evidence stays readable without a browser.
func ConvertHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	content := doc.Find("main, [role=\"main\"], #content, article").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	content.Find("script, style, noscript, nav, header, footer, aside, form, iframe, svg, button, input").
		Each(func(_ int, s *goquery.Selection) { s.Remove() })

	body, err := content.Html()
	if err != nil {
		return ""
	}

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(body)
	if err != nil {
		return ""
	}
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// ExtractTitle returns the document title, or empty when none is present.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
