package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/pagesnap/pagesnap/internal/cache"
)

// PublicChecker is the SSRF decision surface the orchestrator depends on.
type PublicChecker interface {
	CheckPublic(ctx context.Context, hostname string) bool
}

// OrchestratorOptions carries the orchestrator's collaborators and bounds.
type OrchestratorOptions struct {
	Store         cache.Store
	Guard         PublicChecker
	Renderer      Renderer
	Extractor     Extractor
	CacheTTL      time.Duration
	RenderTimeout time.Duration
	MaxTextChars  int
	MaxConcurrent int
	ImagePath     string
}

// Orchestrator sequences one render request: validate, SSRF check, cache
// lookup, render, extract, mint an image token, cache, respond. Concurrent
// duplicate requests for the same URL are collapsed into a single render and
// every render occupies a slot on a bounded pool, since each one stands up a
// fresh browsing context.
type Orchestrator struct {
	store         cache.Store
	guard         PublicChecker
	renderer      Renderer
	extractor     Extractor
	logger        *slog.Logger
	cacheTTL      time.Duration
	renderTimeout time.Duration
	maxTextChars  int
	imagePath     string

	slots  *semaphore.Weighted
	flight singleflight.Group
}

// NewOrchestrator wires the pipeline. Zero-valued bounds fall back to the
// documented defaults.
func NewOrchestrator(logger *slog.Logger, opts OrchestratorOptions) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	timeout := opts.RenderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxChars := opts.MaxTextChars
	if maxChars <= 0 {
		maxChars = 20000
	}
	concurrent := int64(opts.MaxConcurrent)
	if concurrent <= 0 {
		concurrent = 4
	}
	imagePath := opts.ImagePath
	if imagePath == "" {
		imagePath = "/image/"
	}

	return &Orchestrator{
		store:         opts.Store,
		guard:         opts.Guard,
		renderer:      opts.Renderer,
		extractor:     opts.Extractor,
		logger:        logger.With(slog.String("agent", "orchestrator")),
		cacheTTL:      ttl,
		renderTimeout: timeout,
		maxTextChars:  maxChars,
		imagePath:     imagePath,
		slots:         semaphore.NewWeighted(concurrent),
	}
}

// Render executes the pipeline for rawURL. fromCache reports whether the
// result was served from a previous render. Every stage failure is terminal;
// nothing is cached on any failure path.
func (o *Orchestrator) Render(ctx context.Context, rawURL string) (Result, bool, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		return Result{}, false, err
	}
	normalized := target.String()

	if !o.guard.CheckPublic(ctx, target.Hostname()) {
		return Result{}, false, ErrNotPublic
	}

	cacheKey := cache.RenderKeyPrefix + normalized
	var cached Result
	hit, err := o.store.GetJSON(ctx, cacheKey, &cached)
	if err != nil {
		return Result{}, false, fmt.Errorf("render: cache lookup: %w", err)
	}
	if hit {
		return cached, true, nil
	}

	out, err, _ := o.flight.Do(normalized, func() (any, error) {
		return o.renderAndCache(ctx, normalized, cacheKey)
	})
	if err != nil {
		return Result{}, false, err
	}
	return out.(Result), false, nil
}

func (o *Orchestrator) renderAndCache(ctx context.Context, target, cacheKey string) (Result, error) {
	if err := o.slots.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("render: acquire slot: %w", err)
	}
	defer o.slots.Release(1)

	renderCtx, cancel := context.WithTimeout(ctx, o.renderTimeout)
	defer cancel()

	start := time.Now()
	page, err := o.renderer.Render(renderCtx, target)
	if err != nil {
		return Result{}, &RenderFailure{Err: err}
	}
	o.logger.Debug("page rendered",
		slog.String("url", target),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("screenshot_bytes", len(page.Screenshot)))

	title := page.Title
	text := page.Text
	var articleHTML *string
	if article, ok := o.extractor.Extract(page.HTML, target); ok {
		if article.Title != "" {
			title = article.Title
		}
		text = article.Text
		if article.HTML != "" {
			html := article.HTML
			articleHTML = &html
		}
	}
	text = truncateRunes(text, o.maxTextChars)

	token := mintImageToken(target, time.Now())
	if err := o.store.SetBytes(ctx, cache.ImageKeyPrefix+token, page.Screenshot, o.cacheTTL); err != nil {
		return Result{}, fmt.Errorf("render: store screenshot: %w", err)
	}

	result := Result{
		URL:         target,
		Title:       title,
		Text:        text,
		ArticleHTML: articleHTML,
		ImageURL:    o.imagePath + token,
		ImageToken:  token,
	}
	if err := o.store.SetJSON(ctx, cacheKey, result, o.cacheTTL); err != nil {
		return Result{}, fmt.Errorf("render: store result: %w", err)
	}
	return result, nil
}

func validateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return nil, ErrSchemeNotHTTP
	}
	if parsed.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	return parsed, nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
