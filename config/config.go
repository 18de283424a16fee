// Package config loads process configuration from LINKSCAN_* environment
// variables and an optional YAML site file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Browser   BrowserConfig
	Engine    EngineConfig
	Crawl     CrawlConfig
	Jobs      JobsConfig

	// File is the path of the YAML site file, if any.
	File string
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// AuthConfig controls API key authentication of the job API.
type AuthConfig struct {
	Enabled bool // default: true
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting of the job API.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 2
	Burst             int     // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level   string // default: "info"
	Format  string // "json" or "text"; default: "json"
	Verbose bool
}

// BrowserConfig controls the headless render path.
type BrowserConfig struct {
	// Enabled turns escalation to a headless render on or off.
	Enabled bool // default: true

	// Headless can be switched off to watch renders locally.
	Headless   bool // default: true
	NoSandbox  bool
	BrowserBin string
	Proxy      string

	// MaxContexts caps concurrent browser pages.
	MaxContexts int // default: 4

	RenderTimeout time.Duration // default: 30s
	SettleDelay   time.Duration // default: 500ms

	// BlockedResourceTypes are not loaded during renders.
	// default: ["Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
	BlockAds             bool // default: true
	Stealth              bool // default: false
}

// EngineConfig controls the static fetch path and the validator.
type EngineConfig struct {
	StaticTimeout   time.Duration // default: 10s
	MaxRedirects    int           // default: 5
	UserAgent       string
	DomainMemoryTTL time.Duration // default: 24h
}

// CrawlConfig holds the engine-wide scan bounds.
type CrawlConfig struct {
	Concurrency     int           // default: 8
	MaxDepth        int           // default: 3
	MaxPages        int           // default: 200
	MaxDuration     time.Duration // default: 10m
	PolitenessDelay time.Duration // default: 250ms
	MaxHeapMB       int           // default: 2048; 0 disables
	MaxFrontier     int           // default: 100000; 0 disables
}

// JobsConfig controls the in-memory scan job store.
type JobsConfig struct {
	TTL            time.Duration // default: 1h
	MaxJobs        int           // default: 1000
	MaxConcurrent  int           // default: 4
	WebhookTimeout time.Duration // default: 10s
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("LINKSCAN_HOST", "0.0.0.0"),
			Port: envIntOr("LINKSCAN_PORT", 8080),
			Mode: envOr("LINKSCAN_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("LINKSCAN_AUTH_ENABLED", true),
			APIKeys: envSliceOr("LINKSCAN_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("LINKSCAN_RATE_RPS", 2.0),
			Burst:             envIntOr("LINKSCAN_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:   envOr("LINKSCAN_LOG_LEVEL", "info"),
			Format:  envOr("LINKSCAN_LOG_FORMAT", "json"),
			Verbose: envBoolOr("LINKSCAN_VERBOSE", false),
		},
		Browser: BrowserConfig{
			Enabled:       envBoolOr("LINKSCAN_RENDER", true),
			Headless:      envBoolOr("LINKSCAN_HEADLESS", true),
			NoSandbox:     envBoolOr("LINKSCAN_NO_SANDBOX", false),
			BrowserBin:    os.Getenv("LINKSCAN_BROWSER_BIN"),
			Proxy:         os.Getenv("LINKSCAN_PROXY"),
			MaxContexts:   envIntOr("LINKSCAN_RENDER_CONTEXTS", 4),
			RenderTimeout: envDurationOr("LINKSCAN_RENDER_TIMEOUT", 30*time.Second),
			SettleDelay:   envDurationOr("LINKSCAN_SETTLE_DELAY", 500*time.Millisecond),
			BlockedResourceTypes: envSliceOr("LINKSCAN_BLOCKED_RESOURCES", []string{
				"Stylesheet", "Font", "Media",
			}),
			BlockAds: envBoolOr("LINKSCAN_BLOCK_ADS", true),
			Stealth:  envBoolOr("LINKSCAN_STEALTH", false),
		},
		Engine: EngineConfig{
			StaticTimeout:   envDurationOr("LINKSCAN_STATIC_TIMEOUT", 10*time.Second),
			MaxRedirects:    envIntOr("LINKSCAN_MAX_REDIRECTS", 5),
			UserAgent:       os.Getenv("LINKSCAN_USER_AGENT"),
			DomainMemoryTTL: envDurationOr("LINKSCAN_DOMAIN_MEMORY_TTL", 24*time.Hour),
		},
		Crawl: CrawlConfig{
			Concurrency:     envIntOr("LINKSCAN_CONCURRENCY", 8),
			MaxDepth:        envIntOr("LINKSCAN_MAX_DEPTH", 3),
			MaxPages:        envIntOr("LINKSCAN_MAX_PAGES", 200),
			MaxDuration:     envDurationOr("LINKSCAN_MAX_DURATION", 10*time.Minute),
			PolitenessDelay: envDurationOr("LINKSCAN_POLITENESS_DELAY", 250*time.Millisecond),
			MaxHeapMB:       envIntOr("LINKSCAN_MAX_HEAP_MB", 2048),
			MaxFrontier:     envIntOr("LINKSCAN_MAX_FRONTIER", 100_000),
		},
		Jobs: JobsConfig{
			TTL:            envDurationOr("LINKSCAN_JOB_TTL", time.Hour),
			MaxJobs:        envIntOr("LINKSCAN_MAX_JOBS", 1000),
			MaxConcurrent:  envIntOr("LINKSCAN_MAX_CONCURRENT_SCANS", 4),
			WebhookTimeout: envDurationOr("LINKSCAN_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		File: os.Getenv("LINKSCAN_CONFIG"),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return ErrInvalidPort
	case c.Crawl.Concurrency <= 0:
		return ErrInvalidConcurrency
	case c.Crawl.MaxPages <= 0:
		return ErrInvalidMaxPages
	case c.Crawl.MaxDepth < 0:
		return ErrInvalidDepth
	case c.Crawl.PolitenessDelay < 0:
		return ErrInvalidDelay
	case c.Engine.StaticTimeout <= 0, c.Browser.RenderTimeout <= 0:
		return ErrInvalidTimeout
	case c.Browser.Enabled && c.Browser.MaxContexts <= 0:
		return ErrInvalidContexts
	case c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0:
		return ErrInvalidRate
	}
	return nil
}

// ValidateServer additionally checks settings only the API server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return ErrNoAPIKeys
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
