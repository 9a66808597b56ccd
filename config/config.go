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
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Analysis  AnalysisConfig
	LLM       LLMConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity, which is also the number of
	// analysis runs that can hold a rendering session at once.
	MaxPages int // default: 4

	// DefaultProxy is the proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls how listing pages are fetched and scrolled.
type ScraperConfig struct {
	// Backend selects the Source Fetcher: "rod", "http", "file", or
	// "auto" (static first, rod when the page needs a browser).
	Backend string // default: "rod"

	// DomainMemoryTTL is how long "auto" remembers a browser-only domain.
	DomainMemoryTTL time.Duration // default: 24h

	// FixtureDir is the directory read by the "file" backend.
	FixtureDir string

	// NavigationTimeout is the max time for navigation and first settle.
	NavigationTimeout time.Duration // default: 30s

	// SettleDelay is how long to wait for lazy content after each scroll.
	SettleDelay time.Duration // default: 1500ms

	// FetchAttempts is the number of navigation attempts on timeout.
	FetchAttempts int // default: 3

	// RetryBackoff is the pause between navigation attempts.
	RetryBackoff time.Duration // default: 2s

	// UserAgent is the outbound identity string.
	UserAgent string

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockAds blocks requests to known ad/tracking domains.
	BlockAds bool // default: true

	// Anchors are selectors of which at least one must be present after
	// the first settle; a page with none is treated as a challenge page.
	Anchors []string
}

// AnalysisConfig holds the pipeline's tunable thresholds.
type AnalysisConfig struct {
	MaxReviews         int     // default: 100
	StallCycles        int     // default: 10
	FakeScoreThreshold float64 // default: 0.6
	ReportThreshold    float64 // default: 0.3
	MinCredibility     int     // default: 30
	MinTextLength      int     // default: 10

	// PromotionalLexicon overrides the built-in lexicon when non-empty.
	PromotionalLexicon []string

	// RunTimeout bounds one whole analysis run.
	RunTimeout time.Duration // default: 3m
}

// LLMConfig controls the AI scorer. An empty APIKey disables AI scoring.
type LLMConfig struct {
	Provider  string // "openai" or "anthropic"; default: "openai"
	APIKey    string
	Model     string        // default: "gpt-4o-mini"
	BaseURL   string        // default: "https://api.openai.com/v1"
	Timeout   time.Duration // default: 30s
	BatchSize int           // default: 25
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend       string // "memory" or "redis"; default: "memory"
	MaxEntries    int    // memory capacity; default: 1000
	RedisAddr     string // default: "localhost:6379"
	RedisPassword string
	RedisDB       int
	TTL           time.Duration // redis key TTL; 0 keeps results forever
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DefaultAnchors match a rendered listing page. They are review or
// listing specific; sign-in, consent and challenge pages carry none of
// them even though they usually have a heading and a main region.
var DefaultAnchors = []string{
	`[data-review-id]`,
	`[itemprop="review"]`,
	`[itemtype*="schema.org/Restaurant"]`,
	`[itemprop="aggregateRating"]`,
	`h1.DUwDvf`,
	`div.F7nice`,
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("REVIEWGUARD_HOST", "0.0.0.0"),
			Port: envIntOr("REVIEWGUARD_PORT", 8080),
			Mode: envOr("REVIEWGUARD_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("REVIEWGUARD_HEADLESS", true),
			MaxPages:     envIntOr("REVIEWGUARD_MAX_PAGES", 4),
			DefaultProxy: os.Getenv("REVIEWGUARD_PROXY"),
			NoSandbox:    envBoolOr("REVIEWGUARD_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("REVIEWGUARD_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			Backend:           envOr("REVIEWGUARD_FETCH_BACKEND", "rod"),
			FixtureDir:        envOr("REVIEWGUARD_FIXTURE_DIR", "testdata"),
			DomainMemoryTTL:   envDurationOr("REVIEWGUARD_DOMAIN_MEMORY_TTL", 24*time.Hour),
			NavigationTimeout: envDurationOr("REVIEWGUARD_NAV_TIMEOUT", 30*time.Second),
			SettleDelay:       envDurationOr("REVIEWGUARD_SETTLE_DELAY", 1500*time.Millisecond),
			FetchAttempts:     envIntOr("REVIEWGUARD_FETCH_ATTEMPTS", 3),
			RetryBackoff:      envDurationOr("REVIEWGUARD_RETRY_BACKOFF", 2*time.Second),
			UserAgent: envOr("REVIEWGUARD_USER_AGENT",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
			BlockedResourceTypes: envSliceOr("REVIEWGUARD_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockAds: envBoolOr("REVIEWGUARD_BLOCK_ADS", true),
			Anchors:  envSliceOr("REVIEWGUARD_ANCHORS", DefaultAnchors),
		},
		Analysis: AnalysisConfig{
			MaxReviews:         envIntOr("REVIEWGUARD_MAX_REVIEWS", 100),
			StallCycles:        envIntOr("REVIEWGUARD_STALL_CYCLES", 10),
			FakeScoreThreshold: envFloatOr("REVIEWGUARD_FAKE_THRESHOLD", 0.6),
			ReportThreshold:    envFloatOr("REVIEWGUARD_REPORT_THRESHOLD", 0.3),
			MinCredibility:     envIntOr("REVIEWGUARD_MIN_CREDIBILITY", 30),
			MinTextLength:      envIntOr("REVIEWGUARD_MIN_TEXT_LENGTH", 10),
			PromotionalLexicon: envSliceOr("REVIEWGUARD_PROMO_LEXICON", nil),
			RunTimeout:         envDurationOr("REVIEWGUARD_RUN_TIMEOUT", 3*time.Minute),
		},
		LLM: LLMConfig{
			Provider:  envOr("REVIEWGUARD_LLM_PROVIDER", "openai"),
			APIKey:    os.Getenv("REVIEWGUARD_LLM_API_KEY"),
			Model:     envOr("REVIEWGUARD_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:   envOr("REVIEWGUARD_LLM_BASE_URL", "https://api.openai.com/v1"),
			Timeout:   envDurationOr("REVIEWGUARD_LLM_TIMEOUT", 30*time.Second),
			BatchSize: envIntOr("REVIEWGUARD_LLM_BATCH_SIZE", 25),
		},
		Store: StoreConfig{
			Backend:       envOr("REVIEWGUARD_STORE", "memory"),
			MaxEntries:    envIntOr("REVIEWGUARD_STORE_MAX_ENTRIES", 1000),
			RedisAddr:     envOr("REVIEWGUARD_REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REVIEWGUARD_REDIS_PASSWORD"),
			RedisDB:       envIntOr("REVIEWGUARD_REDIS_DB", 0),
			TTL:           envDurationOr("REVIEWGUARD_STORE_TTL", 0),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("REVIEWGUARD_AUTH_ENABLED", true),
			APIKeys: envSliceOr("REVIEWGUARD_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("REVIEWGUARD_RATE_RPS", 1.0),
			Burst:             envIntOr("REVIEWGUARD_RATE_BURST", 3),
		},
		Log: LogConfig{
			Level:  envOr("REVIEWGUARD_LOG_LEVEL", "info"),
			Format: envOr("REVIEWGUARD_LOG_FORMAT", "json"),
		},
	}
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
