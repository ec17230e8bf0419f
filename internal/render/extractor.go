package render

import (
	nurl "net/url"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// minArticleChars is the threshold below which an extraction is treated as
// "no article found" so the orchestrator falls back to the page's plain text.
const minArticleChars = 80

// ReadabilityExtractor extracts the main article from page markup using
// go-readability, with goquery for the title and bluemonday to sanitize the
// article HTML before it reaches clients.
type ReadabilityExtractor struct {
	policy *bluemonday.Policy
}

// NewReadabilityExtractor builds the extractor with its sanitization policy.
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{policy: articlePolicy()}
}

// Extract implements Extractor.
func (e *ReadabilityExtractor) Extract(html, url string) (Article, bool) {
	trimmed := strings.TrimSpace(html)
	if trimmed == "" {
		return Article{}, false
	}

	// The page URL anchors relative links and image sources in the article.
	var base *nurl.URL
	if parsed, err := nurl.Parse(url); err == nil {
		base = parsed
	}

	article, err := readability.FromReader(strings.NewReader(trimmed), base)
	if err != nil {
		return Article{}, false
	}

	var textBuf strings.Builder
	if err := article.RenderText(&textBuf); err != nil {
		return Article{}, false
	}
	text := normalizeWhitespace(textBuf.String())
	if len(text) < minArticleChars {
		return Article{}, false
	}

	out := Article{
		Title: extractTitle(trimmed),
		Text:  text,
	}

	var htmlBuf strings.Builder
	if err := article.RenderHTML(&htmlBuf); err == nil {
		if sanitized := strings.TrimSpace(e.policy.Sanitize(htmlBuf.String())); sanitized != "" {
			out.HTML = sanitized
		}
	}
	return out, true
}

// extractTitle reads the document title, preferring <title>, then og:title,
// then the first <h1>.
func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find("meta[property='og:title']").First().Attr("content"); ok {
		if title := strings.TrimSpace(og); title != "" {
			return title
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// visibleText strips non-content elements and flattens the remaining markup
// into whitespace-normalized plain text. Used as the fallback when no article
// can be extracted.
func visibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeWhitespace(html)
	}
	doc.Find("head, script, style, noscript, title, nav, header, footer, aside, iframe").Remove()
	return normalizeWhitespace(doc.Text())
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// articlePolicy keeps structural and formatting markup while removing
// scripts, event handlers, and unsafe URL schemes. Images are allowed since
// clients render articles with their figures.
func articlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("article", "section", "div", "p", "span", "br", "hr")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("ul", "ol", "li", "dl", "dt", "dd")
	p.AllowElements("blockquote", "pre", "code")
	p.AllowElements("b", "strong", "i", "em", "u", "s", "del", "ins", "mark", "sub", "sup")
	p.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption")
	p.AllowElements("figure", "figcaption")
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	p.AllowElements("a", "img")
	p.AllowURLSchemes("http", "https")
	return p
}
