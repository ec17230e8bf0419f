package render

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pagesnap/pagesnap/internal/cache"
)

type stubGuard struct {
	public bool
}

func (g *stubGuard) CheckPublic(context.Context, string) bool { return g.public }

type stubRenderer struct {
	page  Page
	err   error
	calls atomic.Int64
	delay time.Duration
}

func (r *stubRenderer) Render(ctx context.Context, _ string) (Page, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}
	if r.err != nil {
		return Page{}, r.err
	}
	return r.page, nil
}

type stubExtractor struct {
	article Article
	ok      bool
}

func (e *stubExtractor) Extract(string, string) (Article, bool) { return e.article, e.ok }

func newTestOrchestrator(t *testing.T, renderer Renderer, extractor Extractor, guard PublicChecker) (*Orchestrator, cache.Store) {
	t.Helper()
	store := cache.NewMemory()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	orch := NewOrchestrator(nil, OrchestratorOptions{
		Store:         store,
		Guard:         guard,
		Renderer:      renderer,
		Extractor:     extractor,
		CacheTTL:      time.Minute,
		RenderTimeout: time.Second,
		MaxTextChars:  20000,
		MaxConcurrent: 2,
	})
	return orch, store
}

func TestRenderHappyPath(t *testing.T) {
	renderer := &stubRenderer{page: Page{
		HTML:       "<p>hi</p>",
		Title:      "Page Title",
		Text:       "hi",
		Screenshot: []byte{0x89, 0x50},
	}}
	extractor := &stubExtractor{article: Article{Title: "T", Text: "hi", HTML: "<p>hi</p>"}, ok: true}
	orch, store := newTestOrchestrator(t, renderer, extractor, &stubGuard{public: true})
	ctx := context.Background()

	result, fromCache, err := orch.Render(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if fromCache {
		t.Fatalf("first render must not come from cache")
	}
	if result.Title != "T" {
		t.Fatalf("expected extractor title, got %q", result.Title)
	}
	if result.Text != "hi" {
		t.Fatalf("expected text hi, got %q", result.Text)
	}
	if result.ArticleHTML == nil || *result.ArticleHTML != "<p>hi</p>" {
		t.Fatalf("expected article html, got %v", result.ArticleHTML)
	}
	if result.ImageToken == "" || len(result.ImageToken) != imageTokenLength {
		t.Fatalf("unexpected image token %q", result.ImageToken)
	}
	if result.ImageURL != "/image/"+result.ImageToken {
		t.Fatalf("unexpected image url %q", result.ImageURL)
	}

	blob, ok, err := store.GetBytes(ctx, cache.ImageKeyPrefix+result.ImageToken)
	if err != nil || !ok {
		t.Fatalf("expected screenshot blob, ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(blob, []byte{0x89, 0x50}) {
		t.Fatalf("screenshot bytes mismatch: %v", blob)
	}
}

func TestRenderCacheHitShortCircuits(t *testing.T) {
	renderer := &stubRenderer{page: Page{HTML: "<p>hi</p>", Title: "T", Text: "hi"}}
	extractor := &stubExtractor{article: Article{Title: "T", Text: "hi"}, ok: true}
	orch, _ := newTestOrchestrator(t, renderer, extractor, &stubGuard{public: true})
	ctx := context.Background()

	first, _, err := orch.Render(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, fromCache, err := orch.Render(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !fromCache {
		t.Fatalf("expected cache hit")
	}
	if first != second {
		t.Fatalf("cache hit must be identical: %#v vs %#v", first, second)
	}
	if got := renderer.calls.Load(); got != 1 {
		t.Fatalf("expected renderer to run once, ran %d times", got)
	}
}

func TestRenderValidation(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &stubRenderer{}, &stubExtractor{}, &stubGuard{public: true})
	ctx := context.Background()

	cases := []struct {
		name string
		url  string
		want error
	}{
		{"empty", "", ErrInvalidURL},
		{"whitespace", "   ", ErrInvalidURL},
		{"ftp scheme", "ftp://example.com", ErrSchemeNotHTTP},
		{"no scheme", "example.com/page", ErrSchemeNotHTTP},
		{"no host", "https://", ErrInvalidURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := orch.Render(ctx, tc.url); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRenderSSRFRejection(t *testing.T) {
	renderer := &stubRenderer{page: Page{HTML: "<p>hi</p>"}}
	orch, _ := newTestOrchestrator(t, renderer, &stubExtractor{}, &stubGuard{public: false})

	if _, _, err := orch.Render(context.Background(), "https://internal.example"); !errors.Is(err, ErrNotPublic) {
		t.Fatalf("expected ErrNotPublic, got %v", err)
	}
	if renderer.calls.Load() != 0 {
		t.Fatalf("renderer must not run for rejected hostnames")
	}
}

func TestRenderFailurePropagates(t *testing.T) {
	renderer := &stubRenderer{err: errors.New("navigation timed out")}
	orch, store := newTestOrchestrator(t, renderer, &stubExtractor{}, &stubGuard{public: true})
	ctx := context.Background()

	_, _, err := orch.Render(ctx, "https://example.com")
	var failure *RenderFailure
	if !errors.As(err, &failure) {
		t.Fatalf("expected RenderFailure, got %v", err)
	}

	// Failures before the token stage must leave no cache writes behind.
	var cached Result
	ok, err := store.GetJSON(ctx, cache.RenderKeyPrefix+"https://example.com", &cached)
	if err != nil {
		t.Fatalf("cache check: %v", err)
	}
	if ok {
		t.Fatalf("failed render must not be cached")
	}
}

func TestRenderFallsBackToPlainText(t *testing.T) {
	renderer := &stubRenderer{page: Page{HTML: "<p>raw text</p>", Title: "Fallback Title", Text: "raw text"}}
	orch, _ := newTestOrchestrator(t, renderer, &stubExtractor{ok: false}, &stubGuard{public: true})

	result, _, err := orch.Render(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if result.Title != "Fallback Title" {
		t.Fatalf("expected page title fallback, got %q", result.Title)
	}
	if result.Text != "raw text" {
		t.Fatalf("expected plain text fallback, got %q", result.Text)
	}
	if result.ArticleHTML != nil {
		t.Fatalf("expected nil article html on fallback")
	}
}

func TestRenderTruncatesText(t *testing.T) {
	long := strings.Repeat("a", 25000)
	renderer := &stubRenderer{page: Page{HTML: "<p>x</p>", Title: "T", Text: long}}
	orch, _ := newTestOrchestrator(t, renderer, &stubExtractor{ok: false}, &stubGuard{public: true})

	result, _, err := orch.Render(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(result.Text) != 20000 {
		t.Fatalf("expected text truncated to 20000, got %d", len(result.Text))
	}
}

func TestRenderCollapsesConcurrentDuplicates(t *testing.T) {
	renderer := &stubRenderer{
		page:  Page{HTML: "<p>hi</p>", Title: "T", Text: "hi"},
		delay: 50 * time.Millisecond,
	}
	orch, _ := newTestOrchestrator(t, renderer, &stubExtractor{ok: false}, &stubGuard{public: true})

	var wg sync.WaitGroup
	results := make([]Result, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = orch.Render(context.Background(), "https://example.com")
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("render %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("duplicate requests must share one outcome")
		}
	}
	if got := renderer.calls.Load(); got != 1 {
		t.Fatalf("expected one underlying render, got %d", got)
	}
}

func TestRenderHonorsCallerCancellation(t *testing.T) {
	renderer := &stubRenderer{
		page:  Page{HTML: "<p>hi</p>"},
		delay: time.Second,
	}
	orch, _ := newTestOrchestrator(t, renderer, &stubExtractor{}, &stubGuard{public: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := orch.Render(ctx, "https://example.com")
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestMintImageTokenShape(t *testing.T) {
	now := time.Now()
	a := mintImageToken("https://example.com", now)
	b := mintImageToken("https://example.com", now.Add(time.Nanosecond))
	if len(a) != imageTokenLength {
		t.Fatalf("expected %d hex chars, got %d", imageTokenLength, len(a))
	}
	if a == b {
		t.Fatalf("tokens for different timestamps must differ")
	}
	for _, c := range a {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("token %q contains non-hex character %q", a, c)
		}
	}
}
