package render

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxRedirects = 5

// HTTPRendererConfig bounds the plain-fetch renderer.
type HTTPRendererConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// HTTPRenderer is the fetch-based Renderer used when no headless browser is
// wired in. It retrieves the page over HTTP and derives the title and visible
// text from the markup; it cannot produce a screenshot, so Page.Screenshot
// stays empty and clients receive an empty image blob for its token.
type HTTPRenderer struct {
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
}

// NewHTTPRenderer builds the renderer with a hardened client: TLS 1.2
// minimum, bounded redirects, and no connection reuse beyond the request.
func NewHTTPRenderer(cfg HTTPRendererConfig) *HTTPRenderer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "pagesnap/1.0"
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		DisableKeepAlives:     true,
	}

	return &HTTPRenderer{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		maxBodyBytes: maxBody,
		userAgent:    userAgent,
	}
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > r.maxBodyBytes {
		return Page{}, errors.New("response body exceeds configured limit")
	}

	html := string(body)
	return Page{
		HTML:  html,
		Title: extractTitle(html),
		Text:  visibleText(html),
	}, nil
}
