package server

import (
	"net/http"

	"github.com/pagesnap/pagesnap/internal/metrics"
)

// NewRouter lays out the full HTTP surface. The metrics endpoint is mounted
// here so operators scrape the same listener the API serves on.
func NewRouter(h *Handlers, recorder *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/create-key", h.HandleCreateKey)
	mux.HandleFunc("POST /auth/token", h.HandleToken)
	mux.HandleFunc("POST /render", h.HandleRender)
	mux.HandleFunc("GET /image/{token}", h.HandleImage)
	mux.HandleFunc("GET /healthz", h.HandleHealth)
	mux.Handle("GET /metrics", recorder.Handler())

	return mux
}
