package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/optout/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Engine     EngineConfig     `toml:"engine"`
	Browser    BrowserConfig    `toml:"browser"`
	Validator  ValidatorConfig  `toml:"validator"`
	Safety     SafetyConfig     `toml:"safety"`
	Classifier ClassifierConfig `toml:"classifier"`
	Claude     ClaudeConfig     `toml:"claude"`
	Gemini     GeminiConfig     `toml:"gemini"`
	IMAP       IMAPConfig       `toml:"imap"`
	Runner     RunnerConfig     `toml:"runner"`
	Whitelist  WhitelistConfig  `toml:"whitelist"`
	Storage    StorageConfig    `toml:"storage"`
	Logging    LoggingConfig    `toml:"logging"`
}

// EngineConfig controls the execution ladder
type EngineConfig struct {
	DryRun         bool   `toml:"dry_run"`         // Simulate only, no network or browser side effects (default: true)
	UserAgent      string `toml:"user_agent"`      // User agent for direct HTTP unsubscribe requests
	RequestTimeout string `toml:"request_timeout"` // Duration string (default: "30s")
	HostRateLimit  string `toml:"host_rate_limit"` // Minimum spacing between requests to the same host, "0s" disables
}

// BrowserConfig controls the headless browser used for link-based unsubscribes
type BrowserConfig struct {
	Enabled           bool   `toml:"enabled"` // When false, browser-link candidates fail without launching
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	DisableGPU        bool   `toml:"disable_gpu"`
	UserAgent         string `toml:"user_agent"`
	NavigationTimeout string `toml:"navigation_timeout"` // Navigate + network idle bound (default: "30s")
	StrategyTimeout   string `toml:"strategy_timeout"`   // Per selector strategy (default: "5s")
	SettleDelay       string `toml:"settle_delay"`       // Grace period after a click (default: "2s")
}

// ValidatorConfig controls candidate validation
type ValidatorConfig struct {
	ShortenerDomains []string `toml:"shortener_domains"` // Hosts that hide the real destination
}

// SafetyConfig controls the safety gate warnings
type SafetyConfig struct {
	MinConfidence          float64  `toml:"min_confidence" validate:"gte=0,lte=1"`
	TransactionalKeywords  []string `toml:"transactional_keywords"`
	ImportantSenderMarkers []string `toml:"important_sender_markers"`
}

// ClassifierConfig selects the classification oracle
type ClassifierConfig struct {
	Mode     string `toml:"mode" validate:"oneof=rules ai"` // "rules" or "ai"
	Provider string `toml:"provider" validate:"oneof=claude gemini"`
}

// ClaudeConfig contains Anthropic Claude API configuration for the AI classifier
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration for the AI classifier
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// IMAPConfig holds mailbox credentials. Values may reference KV keys as {key}.
type IMAPConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	UseTLS     bool   `toml:"use_tls"`
	Mailbox    string `toml:"mailbox"`
	AuthMethod string `toml:"auth_method" validate:"omitempty,oneof=password oauth2"` // "password" (default) or "oauth2"

	// OAuth2 refresh-token flow, used when auth_method = "oauth2"
	OAuthClientID     string `toml:"oauth_client_id"`
	OAuthClientSecret string `toml:"oauth_client_secret"`
	OAuthRefreshToken string `toml:"oauth_refresh_token"`
	OAuthTokenURL     string `toml:"oauth_token_url"` // default: Google token endpoint
}

// RunnerConfig controls batch processing
type RunnerConfig struct {
	Query         string  `toml:"query"`       // Subject filter passed to the mail source
	MaxEmails     int     `toml:"max_emails" validate:"gt=0"`
	MinConfidence float64 `toml:"min_confidence" validate:"gte=0,lte=1"` // Classifier confidence needed to consider an email
	Concurrency   int     `toml:"concurrency" validate:"gte=1"`          // Emails processed in parallel
	Schedule      string  `toml:"schedule"`                              // Optional cron expression (with seconds)
}

// WhitelistConfig points at the whitelist seed file
type WhitelistConfig struct {
	File string `toml:"file"` // .toml, .yaml/.yml or .json
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// DefaultShortenerDomains are link shorteners rejected by the validator
var DefaultShortenerDomains = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd",
	"buff.ly", "rebrand.ly", "cutt.ly", "shorturl.at", "tiny.cc",
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DryRun:         true, // Safe default; disable explicitly with dry_run = false or -live
			UserAgent:      "Mozilla/5.0 (compatible; UnsubscribeBot/1.0)",
			RequestTimeout: "30s",
			HostRateLimit:  "500ms",
		},
		Browser: BrowserConfig{
			Enabled:           true,
			Headless:          true,
			NoSandbox:         true,
			DisableGPU:        true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NavigationTimeout: "30s",
			StrategyTimeout:   "5s",
			SettleDelay:       "2s",
		},
		Validator: ValidatorConfig{
			ShortenerDomains: append([]string(nil), DefaultShortenerDomains...),
		},
		Safety: SafetyConfig{
			MinConfidence: 0.7,
			TransactionalKeywords: []string{
				"receipt", "invoice", "order confirmation", "shipping", "delivery",
				"password reset", "verification", "account",
			},
			ImportantSenderMarkers: []string{"bank", "paypal", "amazon", "apple", "microsoft", "google"},
		},
		Classifier: ClassifierConfig{
			Mode:     "rules",
			Provider: "claude",
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-4-5",
			MaxTokens:   1024,
			Timeout:     "60s",
			Temperature: 0.3,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "60s",
			Temperature: 0.3,
		},
		IMAP: IMAPConfig{
			Port:          993,
			UseTLS:        true,
			Mailbox:       "INBOX",
			AuthMethod:    "password",
			OAuthTokenURL: "https://oauth2.googleapis.com/token",
		},
		Runner: RunnerConfig{
			MaxEmails:     50,
			MinConfidence: 0.7,
			Concurrency:   1,
		},
		Whitelist: WhitelistConfig{
			File: "./whitelist.toml",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. kvStorage can be nil (replacement will be skipped).
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
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

	if kvStorage != nil {
		ApplyKeyReplacements(context.Background(), config, kvStorage, arbor.NewLogger())
	}

	applyEnvOverrides(config)

	return config, nil
}

// ApplyKeyReplacements resolves {key-name} references against the KV store.
// Failures degrade gracefully: the config is left unchanged.
func ApplyKeyReplacements(ctx context.Context, config *Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) {
	kvMap, err := kvStorage.GetAll(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		return
	}
	if err := ReplaceInStruct(config, kvMap, logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to replace key references in config")
		return
	}
	logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
}

// applyEnvOverrides applies OPTOUT_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Engine configuration
	if dryRun := os.Getenv("OPTOUT_DRY_RUN"); dryRun != "" {
		if dr, err := strconv.ParseBool(dryRun); err == nil {
			config.Engine.DryRun = dr
		}
	}
	if userAgent := os.Getenv("OPTOUT_USER_AGENT"); userAgent != "" {
		config.Engine.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("OPTOUT_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.Engine.RequestTimeout = requestTimeout
		}
	}

	// Browser configuration
	if enabled := os.Getenv("OPTOUT_BROWSER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Browser.Enabled = e
		}
	}
	if headless := os.Getenv("OPTOUT_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if navTimeout := os.Getenv("OPTOUT_BROWSER_NAVIGATION_TIMEOUT"); navTimeout != "" {
		if _, err := time.ParseDuration(navTimeout); err == nil {
			config.Browser.NavigationTimeout = navTimeout
		}
	}

	// Validator configuration
	if shorteners := os.Getenv("OPTOUT_SHORTENER_DOMAINS"); shorteners != "" {
		if domains := splitList(shorteners); len(domains) > 0 {
			config.Validator.ShortenerDomains = domains
		}
	}

	// Classifier configuration
	if mode := os.Getenv("OPTOUT_CLASSIFIER_MODE"); mode != "" {
		config.Classifier.Mode = mode
	}
	if provider := os.Getenv("OPTOUT_CLASSIFIER_PROVIDER"); provider != "" {
		config.Classifier.Provider = provider
	}

	// IMAP configuration
	if host := os.Getenv("OPTOUT_IMAP_HOST"); host != "" {
		config.IMAP.Host = host
	}
	if port := os.Getenv("OPTOUT_IMAP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.IMAP.Port = p
		}
	}
	if username := os.Getenv("OPTOUT_IMAP_USERNAME"); username != "" {
		config.IMAP.Username = username
	}
	if password := os.Getenv("OPTOUT_IMAP_PASSWORD"); password != "" {
		config.IMAP.Password = password
	}
	if refreshToken := os.Getenv("OPTOUT_IMAP_OAUTH_REFRESH_TOKEN"); refreshToken != "" {
		config.IMAP.OAuthRefreshToken = refreshToken
		config.IMAP.AuthMethod = "oauth2"
	}

	// Runner configuration
	if query := os.Getenv("OPTOUT_QUERY"); query != "" {
		config.Runner.Query = query
	}
	if maxEmails := os.Getenv("OPTOUT_MAX_EMAILS"); maxEmails != "" {
		if me, err := strconv.Atoi(maxEmails); err == nil {
			config.Runner.MaxEmails = me
		}
	}
	if minConfidence := os.Getenv("OPTOUT_MIN_CONFIDENCE"); minConfidence != "" {
		if mc, err := strconv.ParseFloat(minConfidence, 64); err == nil {
			config.Runner.MinConfidence = mc
		}
	}
	if concurrency := os.Getenv("OPTOUT_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Runner.Concurrency = c
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("OPTOUT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if whitelistFile := os.Getenv("OPTOUT_WHITELIST_FILE"); whitelistFile != "" {
		config.Whitelist.File = whitelistFile
	}

	// Logging configuration
	if level := os.Getenv("OPTOUT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("OPTOUT_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// FlagOverrides carries command-line values; zero values leave config untouched
type FlagOverrides struct {
	Live      bool
	MaxEmails int
	Query     string
	Schedule  string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	// Command-line flags have highest priority
	if flags.Live {
		config.Engine.DryRun = false
	}
	if flags.MaxEmails > 0 {
		config.Runner.MaxEmails = flags.MaxEmails
	}
	if flags.Query != "" {
		config.Runner.Query = flags.Query
	}
	if flags.Schedule != "" {
		config.Runner.Schedule = flags.Schedule
	}
}

// Validate checks struct constraints, duration strings and the optional cron schedule
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	durations := map[string]string{
		"engine.request_timeout":     c.Engine.RequestTimeout,
		"engine.host_rate_limit":     c.Engine.HostRateLimit,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.strategy_timeout":   c.Browser.StrategyTimeout,
		"browser.settle_delay":       c.Browser.SettleDelay,
		"claude.timeout":             c.Claude.Timeout,
		"gemini.timeout":             c.Gemini.Timeout,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s '%s': %w", name, value, err)
		}
	}
	if c.Runner.Schedule != "" {
		if err := ValidateSchedule(c.Runner.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleParser parses cron expressions with an optional seconds field
var ScheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule validates a cron expression (seconds field optional)
func ValidateSchedule(schedule string) error {
	if _, err := ScheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}
	return nil
}

// ResolveAPIKey resolves an API key by name.
// Resolution order: environment variables → KV store → config fallback → error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"anthropic_api_key": {"OPTOUT_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"gemini_api_key":    {"OPTOUT_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	}

	for _, envVarName := range keyToEnvMapping[name] {
		if envValue := os.Getenv(envVarName); envValue != "" {
			return envValue, nil
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	// An unresolved {key} reference is not a key
	if configFallback != "" && !keyRefPattern.MatchString(configFallback) {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// RequestTimeoutDuration returns the HTTP request timeout
func (c EngineConfig) RequestTimeoutDuration() time.Duration {
	return ParseDurationOr(c.RequestTimeout, 30*time.Second)
}

// HostRateLimitDuration returns the minimum spacing per host, 0 when disabled
func (c EngineConfig) HostRateLimitDuration() time.Duration {
	return ParseDurationOr(c.HostRateLimit, 0)
}

// NavigationTimeoutDuration returns the navigation bound
func (c BrowserConfig) NavigationTimeoutDuration() time.Duration {
	return ParseDurationOr(c.NavigationTimeout, 30*time.Second)
}

// StrategyTimeoutDuration returns the per-strategy bound
func (c BrowserConfig) StrategyTimeoutDuration() time.Duration {
	return ParseDurationOr(c.StrategyTimeout, 5*time.Second)
}

// SettleDelayDuration returns the post-click grace period
func (c BrowserConfig) SettleDelayDuration() time.Duration {
	return ParseDurationOr(c.SettleDelay, 2*time.Second)
}
