package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every option consumed at startup. Nothing in here is reloaded
// while the process runs; the cache handle and signing secret are handed to
// components once at construction.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Cache     CacheConfig     `koanf:"cache"`
	Auth      AuthConfig      `koanf:"auth"`
	Render    RenderConfig    `koanf:"render"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// ServerConfig collects the bootstrap knobs owned by the HTTP lifecycle.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig selects the store backend and its expiry policy. An empty
// backend resolves to "valkey" when an address is configured and "memory"
// otherwise, so single-instance deployments need no cache stanza at all.
type CacheConfig struct {
	Backend    string            `koanf:"backend"`
	TTLSeconds int               `koanf:"ttlSeconds"`
	Valkey     ValkeyCacheConfig `koanf:"valkey"`
}

type ValkeyCacheConfig struct {
	Address  string          `koanf:"address"`
	Username string          `koanf:"username"`
	Password string          `koanf:"password"`
	DB       int             `koanf:"db"`
	TLS      ValkeyTLSConfig `koanf:"tls"`
}

type ValkeyTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// AuthConfig carries the signing and admin secrets plus credential lifetimes.
// APIKeyTTLSeconds of zero means keys never expire.
type AuthConfig struct {
	SigningSecret    string `koanf:"signingSecret"`
	AdminSecret      string `koanf:"adminSecret"`
	TokenTTLSeconds  int    `koanf:"tokenTTLSeconds"`
	APIKeyTTLSeconds int    `koanf:"apiKeyTTLSeconds"`
}

// RenderConfig bounds the render pipeline: navigation deadline, worker pool
// size, extracted-text cap, and the fetch hardening knobs.
type RenderConfig struct {
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
	MaxConcurrent  int    `koanf:"maxConcurrent"`
	MaxTextChars   int    `koanf:"maxTextChars"`
	MaxBodyBytes   int64  `koanf:"maxBodyBytes"`
	UserAgent      string `koanf:"userAgent"`
}

// RateLimitConfig applies a per-identity admission window.
type RateLimitConfig struct {
	PerMinute int `koanf:"perMinute"`
}

// DefaultConfig returns the documented defaults before file and env overrides.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen:  ListenConfig{Address: "0.0.0.0", Port: 8080},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		},
		Cache: CacheConfig{
			Backend:    "",
			TTLSeconds: 300,
		},
		Auth: AuthConfig{
			TokenTTLSeconds:  900,
			APIKeyTTLSeconds: 0,
		},
		Render: RenderConfig{
			TimeoutSeconds: 30,
			MaxConcurrent:  4,
			MaxTextChars:   20000,
			MaxBodyBytes:   5 << 20,
			UserAgent:      "pagesnap/1.0",
		},
		RateLimit: RateLimitConfig{PerMinute: 60},
	}
}

// Validate rejects configurations the runtime cannot safely start with.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "", "memory", "valkey":
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Cache.Backend)
	}
	if strings.ToLower(c.Cache.Backend) == "valkey" && strings.TrimSpace(c.Cache.Valkey.Address) == "" {
		return errors.New("config: valkey backend requires an address")
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("config: cache ttlSeconds must be positive")
	}
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return errors.New("config: auth signingSecret is required")
	}
	if strings.TrimSpace(c.Auth.AdminSecret) == "" {
		return errors.New("config: auth adminSecret is required")
	}
	if c.Auth.TokenTTLSeconds <= 0 {
		return errors.New("config: auth tokenTTLSeconds must be positive")
	}
	if c.Auth.APIKeyTTLSeconds < 0 {
		return errors.New("config: auth apiKeyTTLSeconds must not be negative")
	}
	if c.Render.TimeoutSeconds <= 0 {
		return errors.New("config: render timeoutSeconds must be positive")
	}
	if c.Render.MaxConcurrent <= 0 {
		return errors.New("config: render maxConcurrent must be positive")
	}
	if c.Render.MaxTextChars <= 0 {
		return errors.New("config: render maxTextChars must be positive")
	}
	if c.RateLimit.PerMinute <= 0 {
		return errors.New("config: ratelimit perMinute must be positive")
	}
	return nil
}

// CacheTTL converts the configured entry lifetime into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// TokenTTL converts the signed-token lifetime into a duration.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLSeconds) * time.Second
}

// APIKeyTTL converts the key-registry lifetime into a duration. Zero means the
// registry never expires records.
func (c Config) APIKeyTTL() time.Duration {
	return time.Duration(c.Auth.APIKeyTTLSeconds) * time.Second
}

// RenderTimeout converts the navigation deadline into a duration.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}
