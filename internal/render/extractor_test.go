package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pagesnap/pagesnap/internal/cache"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>How Caches Expire</title></head>
<body>
<nav>home | about</nav>
<article>
<h1>How Caches Expire</h1>
<p>Every cache entry carries a deadline after which it is treated exactly like
an entry that never existed. This property is what allows a render service to
hand out results cheaply without ever serving stale content forever.</p>
<p>The deadline is enforced on read rather than on a clock tick, which means a
store can be completely passive and still never return an expired value to a
caller that asks for one.</p>
<p>Backends that support native expiry can additionally reclaim memory on
their own schedule, but the observable contract stays identical.</p>
</article>
<footer>copyright</footer>
</body>
</html>`

func TestReadabilityExtractorFindsArticle(t *testing.T) {
	extractor := NewReadabilityExtractor()

	article, ok := extractor.Extract(articleHTML, "https://example.com/caches")
	if !ok {
		t.Fatalf("expected article to be extracted")
	}
	if article.Title != "How Caches Expire" {
		t.Fatalf("unexpected title %q", article.Title)
	}
	if !strings.Contains(article.Text, "deadline") {
		t.Fatalf("expected body text, got %q", article.Text)
	}
	if article.HTML != "" {
		if strings.Contains(article.HTML, "<script") {
			t.Fatalf("sanitized html must not contain scripts")
		}
	}
}

func TestReadabilityExtractorResolvesRelativeLinks(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Linked Reading</title></head>
<body>
<article>
<p>Cache entries reference their expiry policy through a dedicated document,
which this paragraph links to with a site-relative path so the resolution
behavior is observable in the extracted markup.
See <a href="/docs/expiry">the expiry notes</a> for the full contract.</p>
<p>A second paragraph keeps the article above the extraction threshold and
describes how backends enforce deadlines on read rather than on a timer.</p>
</article>
</body>
</html>`

	extractor := NewReadabilityExtractor()
	article, ok := extractor.Extract(html, "https://example.com/posts/caching")
	if !ok {
		t.Fatalf("expected article to be extracted")
	}
	if article.HTML == "" {
		t.Fatalf("expected article html")
	}
	if !strings.Contains(article.HTML, "https://example.com/docs/expiry") {
		t.Fatalf("expected site-relative link resolved against the page url, got %q", article.HTML)
	}
}

func TestReadabilityExtractorRejectsThinPages(t *testing.T) {
	extractor := NewReadabilityExtractor()

	if _, ok := extractor.Extract("<p>hi</p>", "https://example.com"); ok {
		t.Fatalf("expected thin page to be rejected")
	}
	if _, ok := extractor.Extract("", "https://example.com"); ok {
		t.Fatalf("expected empty page to be rejected")
	}
}

func TestExtractTitlePriority(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{
			name: "title tag wins",
			html: `<html><head><title>From Title</title><meta property="og:title" content="From OG"></head><body><h1>From H1</h1></body></html>`,
			want: "From Title",
		},
		{
			name: "og title next",
			html: `<html><head><meta property="og:title" content="From OG"></head><body><h1>From H1</h1></body></html>`,
			want: "From OG",
		},
		{
			name: "h1 fallback",
			html: `<html><body><h1>From H1</h1></body></html>`,
			want: "From H1",
		},
		{
			name: "nothing",
			html: `<html><body><p>text</p></body></html>`,
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractTitle(tc.html); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestVisibleTextStripsChrome(t *testing.T) {
	html := `<html><head><script>evil()</script><style>p{}</style></head>
<body><nav>menu</nav><p>keep   this</p><footer>legal</footer></body></html>`

	got := visibleText(html)
	if strings.Contains(got, "evil") || strings.Contains(got, "menu") || strings.Contains(got, "legal") {
		t.Fatalf("expected chrome to be stripped, got %q", got)
	}
	if !strings.Contains(got, "keep this") {
		t.Fatalf("expected normalized body text, got %q", got)
	}
}

func TestImageServiceRoundTrip(t *testing.T) {
	store := cache.NewMemory()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	svc := NewImageService(store)
	ctx := context.Background()

	blob := []byte{1, 2, 3, 4}
	if err := store.SetBytes(ctx, cache.ImageKeyPrefix+"tok", blob, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("blob mismatch")
	}

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, "  "); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound for blank token, got %v", err)
	}
}
