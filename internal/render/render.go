package render

import (
	"context"
	"errors"
)

// Page is what a Renderer produces for one navigation: the full markup, the
// document title, the visible plain text, and an optional screenshot.
type Page struct {
	HTML       string
	Title      string
	Text       string
	Screenshot []byte
}

// Renderer navigates to a URL and captures the page. Implementations are
// expected to honor the context deadline and release their browsing resources
// on every exit path.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// Article is the readable extraction of a page.
type Article struct {
	Title string
	Text  string
	HTML  string
}

// Extractor turns page markup into a readable article. ok=false means no
// meaningful article was found and the caller should fall back to the page's
// plain visible text.
type Extractor interface {
	Extract(html, url string) (Article, bool)
}

// Result is the cached, client-facing outcome of one render. A cache hit
// returns it byte-for-byte identical to the first response.
type Result struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Text        string  `json:"text"`
	ArticleHTML *string `json:"articleHtml"`
	ImageURL    string  `json:"imageUrl"`
	ImageToken  string  `json:"imageToken"`
}

// Sentinel errors for the render pipeline. Handlers map these onto the HTTP
// error taxonomy.
var (
	ErrInvalidURL    = errors.New("render: missing or malformed url")
	ErrSchemeNotHTTP = errors.New("render: url scheme must be http or https")
	ErrNotPublic     = errors.New("render: hostname does not resolve to a public address")
	ErrImageNotFound = errors.New("render: unknown or expired image token")
)

// RenderFailure wraps a renderer error so callers can distinguish navigation
// failures from everything else while keeping the underlying detail.
type RenderFailure struct {
	Err error
}

func (e *RenderFailure) Error() string { return "render: renderer failed: " + e.Err.Error() }

func (e *RenderFailure) Unwrap() error { return e.Err }
