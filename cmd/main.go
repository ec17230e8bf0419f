package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pagesnap/pagesnap/internal/auth"
	"github.com/pagesnap/pagesnap/internal/cache"
	"github.com/pagesnap/pagesnap/internal/config"
	"github.com/pagesnap/pagesnap/internal/logging"
	"github.com/pagesnap/pagesnap/internal/metrics"
	"github.com/pagesnap/pagesnap/internal/ratelimit"
	"github.com/pagesnap/pagesnap/internal/render"
	"github.com/pagesnap/pagesnap/internal/server"
	"github.com/pagesnap/pagesnap/internal/ssrf"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "PAGESNAP", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	store := buildStore(logger.With(slog.String("agent", "cache_factory")), cfg.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promRegistry)
	store = cache.Instrument(store, recorder)

	registry := auth.NewKeyRegistry(store, cfg.APIKeyTTL())
	tokens := auth.NewTokenService(registry, cfg.Auth.SigningSecret, cfg.TokenTTL())
	gateway := auth.NewGateway(tokens, registry, cfg.Auth.AdminSecret)

	guard := ssrf.New(net.DefaultResolver, logger)
	renderer := render.NewHTTPRenderer(render.HTTPRendererConfig{
		Timeout:      cfg.RenderTimeout(),
		MaxBodyBytes: cfg.Render.MaxBodyBytes,
		UserAgent:    cfg.Render.UserAgent,
	})
	pages := render.NewOrchestrator(logger, render.OrchestratorOptions{
		Store:         store,
		Guard:         guard,
		Renderer:      renderer,
		Extractor:     render.NewReadabilityExtractor(),
		CacheTTL:      cfg.CacheTTL(),
		RenderTimeout: cfg.RenderTimeout(),
		MaxTextChars:  cfg.Render.MaxTextChars,
		MaxConcurrent: cfg.Render.MaxConcurrent,
	})

	limiter := ratelimit.New(cfg.RateLimit.PerMinute)
	defer limiter.Stop()

	handlers := server.NewHandlers(logger, gateway, registry, tokens, pages,
		render.NewImageService(store), limiter, recorder)

	srv, err := server.New(cfg, logger, server.NewRouter(handlers, recorder))
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildStore picks the cache backend. An explicit valkey selection that cannot
// connect falls back to memory so the service still starts, at the cost of
// per-instance caches.
func buildStore(logger *slog.Logger, cfg config.CacheConfig) cache.Store {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	if backend == "" && strings.TrimSpace(cfg.Valkey.Address) != "" {
		backend = "valkey"
	}

	switch backend {
	case "valkey":
		store, err := cache.NewValkey(cache.ValkeyConfig{
			Address:  cfg.Valkey.Address,
			Username: cfg.Valkey.Username,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
			TLS: cache.ValkeyTLSConfig{
				Enabled: cfg.Valkey.TLS.Enabled,
				CAFile:  cfg.Valkey.TLS.CAFile,
			},
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back to memory",
				slog.String("address", cfg.Valkey.Address),
				slog.Any("error", err))
			return cache.NewMemory()
		}
		logger.Info("using valkey cache",
			slog.String("address", cfg.Valkey.Address),
			slog.Duration("ttl", ttl))
		return store
	default:
		logger.Info("using memory cache", slog.Duration("ttl", ttl))
		return cache.NewMemory()
	}
}
