package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Queue       QueueConfig       `toml:"queue"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	WebSocket   WebSocketConfig   `toml:"websocket"`
	Browser     BrowserConfig     `toml:"browser"`
	Portal      PortalConfig      `toml:"portal"`
	Publish     PublishConfig     `toml:"publish"`
	Generate    GenerateConfig    `toml:"generate"`
	Gemini      GeminiConfig      `toml:"gemini"`
	Claude      ClaudeConfig      `toml:"claude"`
	LLM         LLMConfig         `toml:"llm"`
	Scraper     ScraperConfig     `toml:"scraper"`
	Credentials CredentialsConfig `toml:"credentials"`
	Cleanup     CleanupConfig     `toml:"cleanup"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	Host           string   `toml:"host"`
	AllowedOrigins []string `toml:"allowed_origins"` // CORS origins; "*" allows any
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g., "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // Must exceed the longest job timeout
	MaxReceive        int    `toml:"max_receive"`        // 1 = a crashed job is never redelivered
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger      BadgerConfig      `toml:"badger"`
	Screenshots ScreenshotsConfig `toml:"screenshots"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
	SyncWrites     bool   `toml:"sync_writes"`      // fsync every commit; attempt logs must survive a crash
}

// ScreenshotsConfig controls where diagnostic screenshots are written
type ScreenshotsConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// WebSocketConfig contains configuration for progress streaming
type WebSocketConfig struct {
	ProgressInterval string `toml:"progress_interval"` // Min gap between progress frames per post, e.g. "250ms"
	ProgressBurst    int    `toml:"progress_burst"`
	OutboxSize       int    `toml:"outbox_size"` // Buffered events awaiting broadcast
}

// BrowserConfig describes the fingerprint and timeouts of each automation session
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	UserAgent         string `toml:"user_agent"`
	Locale            string `toml:"locale"`
	Timezone          string `toml:"timezone"`
	AcceptLanguage    string `toml:"accept_language"`
	WindowWidth       int    `toml:"window_width"`
	WindowHeight      int    `toml:"window_height"`
	NavigationTimeout string `toml:"navigation_timeout"` // default "60s"
	ActionTimeout     string `toml:"action_timeout"`     // default "10s"
	LaunchesPerMinute int    `toml:"launches_per_minute"`
	MaxSessions       int    `toml:"max_sessions"` // Concurrent browser processes
}

// PortalConfig points at the target portal and its selector catalogue
type PortalConfig struct {
	BaseURL       string `toml:"base_url"`
	LoginURL      string `toml:"login_url"`
	SelectorsFile string `toml:"selectors_file"` // Empty uses the embedded catalogue
}

// PublishConfig contains retry and form defaults for publish jobs
type PublishConfig struct {
	MaxRetries   int    `toml:"max_retries"`   // Follow-up attempts after the first
	RetryBackoff string `toml:"retry_backoff"` // Multiplied by attempt number
	JobTimeout   string `toml:"job_timeout"`
	CategoryCode string `toml:"category_code"`
	TitleLimit   int    `toml:"title_limit"`
	ImageDir     string `toml:"image_dir"` // Post images are resolved relative to this directory
}

// GenerateConfig contains retry settings for generation jobs
type GenerateConfig struct {
	MaxRetries   int    `toml:"max_retries"`
	RetryBackoff string `toml:"retry_backoff"`
	JobTimeout   string `toml:"job_timeout"`
	Variations   int    `toml:"variations"` // Number of drafts requested per generation
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the content generator provider
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"`
}

// ScraperConfig contains Hot Pepper Beauty scraping configuration
type ScraperConfig struct {
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"`
	CacheTTL       string `toml:"cache_ttl"`
	MaxCouponPages int    `toml:"max_coupon_pages"`
}

// CredentialsConfig holds the key that seals portal passwords at rest
type CredentialsConfig struct {
	SecretKey string `toml:"secret_key"` // 64 hex characters (32 bytes)
}

// CleanupConfig controls removal of stale failed posts
type CleanupConfig struct {
	Enabled       bool   `toml:"enabled"`
	Schedule      string `toml:"schedule"` // Cron schedule with seconds field
	RetentionDays int    `toml:"retention_days"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:           8085,
			Host:           "localhost",
			AllowedOrigins: []string{"*"},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "20m",
			MaxReceive:        1, // Publishing is not idempotent
			QueueName:         "salonpress_jobs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:       "./data",
				SyncWrites: true,
			},
			Screenshots: ScreenshotsConfig{
				Dir: "./data/screenshots",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			ProgressInterval: "250ms",
			ProgressBurst:    4,
			OutboxSize:       256,
		},
		Browser: BrowserConfig{
			Headless:          true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			Locale:            "ja-JP",
			Timezone:          "Asia/Tokyo",
			AcceptLanguage:    "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
			WindowWidth:       1920,
			WindowHeight:      1080,
			NavigationTimeout: "60s",
			ActionTimeout:     "10s",
			LaunchesPerMinute: 6,
			MaxSessions:       2,
		},
		Portal: PortalConfig{
			BaseURL:  "https://salonboard.com",
			LoginURL: "https://salonboard.com/login/",
		},
		Publish: PublishConfig{
			MaxRetries:   2,
			RetryBackoff: "120s",
			JobTimeout:   "10m",
			CategoryCode: "BL02",
			TitleLimit:   25,
			ImageDir:     "./data/images",
		},
		Generate: GenerateConfig{
			MaxRetries:   2,
			RetryBackoff: "60s",
			JobTimeout:   "3m",
			Variations:   3,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "2m",
			Temperature: 0.8,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-5",
			MaxTokens:   4096,
			Timeout:     "2m",
			Temperature: 0.8,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
		Scraper: ScraperConfig{
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
			CacheTTL:       "6h",
			MaxCouponPages: 10,
		},
		Cleanup: CleanupConfig{
			Enabled:       true,
			Schedule:      "0 0 3 * * *", // 03:00 daily
			RetentionDays: 30,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SALONPRESS_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SALONPRESS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SALONPRESS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if concurrency := os.Getenv("SALONPRESS_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("SALONPRESS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if shots := os.Getenv("SALONPRESS_SCREENSHOT_DIR"); shots != "" {
		config.Storage.Screenshots.Dir = shots
	}

	// Logging configuration
	if level := os.Getenv("SALONPRESS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SALONPRESS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Browser configuration
	if headless := os.Getenv("SALONPRESS_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}
	if selectors := os.Getenv("SALONPRESS_SELECTORS_FILE"); selectors != "" {
		config.Portal.SelectorsFile = selectors
	}

	// Secrets are usually supplied through the environment
	if key := os.Getenv("SALONPRESS_SECRET_KEY"); key != "" {
		config.Credentials.SecretKey = key
	}
	if key := os.Getenv("SALONPRESS_GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("SALONPRESS_CLAUDE_API_KEY"); key != "" {
		config.Claude.APIKey = key
	} else if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
	if provider := os.Getenv("SALONPRESS_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string from config, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
