package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot so startup wiring can make decisions
// using the documented precedence rules.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"cache.ttlseconds":        "cache.ttlSeconds",
			"cache.valkey.tls.cafile": "cache.valkey.tls.caFile",
			"auth.signingsecret":      "auth.signingSecret",
			"auth.adminsecret":        "auth.adminSecret",
			"auth.tokenttlseconds":    "auth.tokenTTLSeconds",
			"auth.apikeyttlseconds":   "auth.apiKeyTTLSeconds",
			"render.timeoutseconds":   "render.timeoutSeconds",
			"render.maxconcurrent":    "render.maxConcurrent",
			"render.maxtextchars":     "render.maxTextChars",
			"render.maxbodybytes":     "render.maxBodyBytes",
			"render.useragent":        "render.userAgent",
			"ratelimit.perminute":     "ratelimit.perMinute",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path (CACHE__TTL_SECONDS -> cache.ttlseconds).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			key = strings.ReplaceAll(key, "_", "")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			return lower
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
		},
		"cache": map[string]any{
			"backend":    cfg.Cache.Backend,
			"ttlSeconds": cfg.Cache.TTLSeconds,
			"valkey": map[string]any{
				"address":  cfg.Cache.Valkey.Address,
				"username": cfg.Cache.Valkey.Username,
				"password": cfg.Cache.Valkey.Password,
				"db":       cfg.Cache.Valkey.DB,
				"tls": map[string]any{
					"enabled": cfg.Cache.Valkey.TLS.Enabled,
					"caFile":  cfg.Cache.Valkey.TLS.CAFile,
				},
			},
		},
		"auth": map[string]any{
			"signingSecret":    cfg.Auth.SigningSecret,
			"adminSecret":      cfg.Auth.AdminSecret,
			"tokenTTLSeconds":  cfg.Auth.TokenTTLSeconds,
			"apiKeyTTLSeconds": cfg.Auth.APIKeyTTLSeconds,
		},
		"render": map[string]any{
			"timeoutSeconds": cfg.Render.TimeoutSeconds,
			"maxConcurrent":  cfg.Render.MaxConcurrent,
			"maxTextChars":   cfg.Render.MaxTextChars,
			"maxBodyBytes":   cfg.Render.MaxBodyBytes,
			"userAgent":      cfg.Render.UserAgent,
		},
		"ratelimit": map[string]any{
			"perMinute": cfg.RateLimit.PerMinute,
		},
	}
}
