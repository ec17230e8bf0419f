package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pagesnap/pagesnap/internal/auth"
	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/ratelimit"
	"github.com/pagesnap/pagesnap/internal/render"
)

// Handlers binds the HTTP surface to the domain services. Every route shares
// the JSON error envelope so clients parse one failure shape.
type Handlers struct {
	logger   *slog.Logger
	gateway  *auth.Gateway
	registry *auth.KeyRegistry
	tokens   *auth.TokenService
	pages    *render.Orchestrator
	images   *render.ImageService
	limiter  *ratelimit.Limiter
	recorder *metrics.Recorder
}

func NewHandlers(logger *slog.Logger, gateway *auth.Gateway, registry *auth.KeyRegistry, tokens *auth.TokenService, pages *render.Orchestrator, images *render.ImageService, limiter *ratelimit.Limiter, recorder *metrics.Recorder) *Handlers {
	return &Handlers{
		logger:   logger.With(slog.String("agent", "http")),
		gateway:  gateway,
		registry: registry,
		tokens:   tokens,
		pages:    pages,
		images:   images,
		limiter:  limiter,
		recorder: recorder,
	}
}

type errorEnvelope struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type createKeyRequest struct {
	Name string `json:"name"`
}

type createKeyResponse struct {
	APIKey string            `json:"apiKey"`
	Record auth.APIKeyRecord `json:"record"`
}

type tokenRequest struct {
	APIKey string `json:"apiKey"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type renderRequest struct {
	URL string `json:"url"`
}

// HandleCreateKey mints a named API key. Only callers presenting the admin
// secret reach the registry.
func (h *Handlers) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.CheckAdmin(r); err != nil {
		h.writeError(w, http.StatusForbidden, "admin_forbidden", "admin secret missing or incorrect")
		return
	}

	// The body is optional; an absent body creates an unnamed key.
	var req createKeyRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "validation_error", "request body must be a JSON object")
		return
	}

	record, err := h.registry.CreateAPIKey(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("api key creation failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "could not store the api key")
		return
	}

	h.logger.Info("api key created", slog.String("keyId", record.ID), slog.String("name", record.Name))
	h.writeJSON(w, http.StatusCreated, createKeyResponse{APIKey: record.ID, Record: record})
}

// HandleToken exchanges a raw API key for a signed short-lived token. The key
// may arrive in the X-Api-Key header or the JSON body; the header wins.
func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	rawKey := r.Header.Get(auth.APIKeyHeader)
	if rawKey == "" {
		var req tokenRequest
		if err := decodeJSON(r, &req); err == nil {
			rawKey = req.APIKey
		}
	}
	if rawKey == "" {
		h.writeError(w, http.StatusUnauthorized, "auth_error", "no api key presented")
		return
	}

	// The key is unverified at this point, so the admission window keys on
	// the client address; otherwise every guessed key gets a fresh bucket.
	if !h.allow(clientAddr(r), r) {
		h.writeRateLimited(w)
		return
	}

	token, err := h.tokens.IssueToken(r.Context(), rawKey)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidKey) {
			h.writeError(w, http.StatusUnauthorized, "auth_error", "unknown api key")
			return
		}
		h.logger.Error("token issue failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "could not issue a token")
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresIn: int(h.tokens.TTL() / time.Second),
	})
}

// HandleRender authenticates the caller, applies the admission window, and
// runs the page through the orchestrator.
func (h *Handlers) HandleRender(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	principal, err := h.gateway.Authenticate(r.Context(), r)
	if err != nil {
		status, category, detail := classifyAuthError(err)
		h.recorder.ObserveRender("auth_rejected", status, false, time.Since(start))
		h.writeError(w, status, category, detail)
		return
	}

	if !h.allow(principal.KeyID, r) {
		h.recorder.ObserveRender("rate_limited", http.StatusTooManyRequests, false, time.Since(start))
		h.writeRateLimited(w)
		return
	}

	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.recorder.ObserveRender("invalid_request", http.StatusBadRequest, false, time.Since(start))
		h.writeError(w, http.StatusBadRequest, "validation_error", "request body must be a JSON object with a url field")
		return
	}

	result, fromCache, err := h.pages.Render(r.Context(), req.URL)
	if err != nil {
		status, category, detail := classifyRenderError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("render failed",
				slog.String("url", req.URL),
				slog.String("keyId", principal.KeyID),
				slog.String("error", err.Error()))
		}
		h.recorder.ObserveRender(category, status, false, time.Since(start))
		h.writeError(w, status, category, detail)
		return
	}

	h.logger.Info("render served",
		slog.String("url", result.URL),
		slog.String("keyId", principal.KeyID),
		slog.Bool("fromCache", fromCache))
	h.recorder.ObserveRender("success", http.StatusOK, fromCache, time.Since(start))
	h.writeJSON(w, http.StatusOK, result)
}

// HandleImage serves a stored screenshot by token. The endpoint is
// deliberately unauthenticated so render results can embed a plain URL.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	blob, err := h.images.Get(r.Context(), token)
	if err != nil {
		if errors.Is(err, render.ErrImageNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "unknown or expired image token")
			return
		}
		h.logger.Error("image lookup failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "could not read the stored image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

// HandleHealth reports liveness without touching any backend.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// allow consults the admission window under the caller identity, falling back
// to the client address when no credential id is available.
func (h *Handlers) allow(identity string, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	if identity == "" {
		identity = clientAddr(r)
	}
	return h.limiter.Allow(identity)
}

func (h *Handlers) writeRateLimited(w http.ResponseWriter) {
	retry := time.Second
	if h.limiter != nil {
		retry = h.limiter.RetryAfter()
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
	h.writeError(w, http.StatusTooManyRequests, "rate_limited", "request budget exhausted, retry later")
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response encoding failed", slog.String("error", err.Error()))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, category, detail string) {
	h.writeJSON(w, status, errorEnvelope{Error: category, Detail: detail})
}

func classifyAuthError(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return http.StatusUnauthorized, "auth_error", "no credential presented"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "auth_error", "token expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidKey):
		return http.StatusUnauthorized, "auth_error", "credential rejected"
	default:
		return http.StatusInternalServerError, "internal_error", "credential check failed"
	}
}

func classifyRenderError(err error) (int, string, string) {
	var failure *render.RenderFailure
	switch {
	case errors.Is(err, render.ErrInvalidURL):
		return http.StatusBadRequest, "validation_error", "missing or malformed url"
	case errors.Is(err, render.ErrSchemeNotHTTP):
		return http.StatusBadRequest, "validation_error", "url scheme must be http or https"
	case errors.Is(err, render.ErrNotPublic):
		return http.StatusForbidden, "ssrf_rejected", "hostname does not resolve to a public address"
	case errors.As(err, &failure):
		return http.StatusBadGateway, "render_error", failure.Err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "render pipeline failed"
	}
}

func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
