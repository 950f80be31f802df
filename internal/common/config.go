package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // CRON_TZ schedules must resolve on hosts without zoneinfo

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/moverwatch/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig  `toml:"logging"`
	LLM         LLMConfig      `toml:"llm"`
	Claude      ClaudeConfig   `toml:"claude"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Market      MarketConfig   `toml:"market"`
	Browser     BrowserConfig  `toml:"browser"`
	Sandbox     SandboxConfig  `toml:"sandbox"`
	Email       EmailConfig    `toml:"email"`
	Analysis    AnalysisConfig `toml:"analysis"`
	Schedule    ScheduleConfig `toml:"schedule"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig controls the failover candidate list and the session loop
type LLMConfig struct {
	Models          []string    `toml:"models"`           // Ordered model identifiers; order is the failover order
	DefaultProvider LLMProvider `toml:"default_provider"` // Provider for model strings without a recognised prefix
	MaxTurns        int         `toml:"max_turns"`        // Maximum assistant turns per session (default: 20)
	Timeout         string      `toml:"timeout"`          // Per-turn API timeout (default: "2m")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKeys     []string `toml:"api_keys"`    // Ordered credentials; env ANTHROPIC_API_KEY[_2,_3] are appended
	MaxTokens   int      `toml:"max_tokens"`  // Maximum tokens in response (default: 4096)
	Temperature float32  `toml:"temperature"` // Completion temperature (default: 0.2)
	MaxRetries  int      `toml:"max_retries"` // SDK-level retries before a 429 reaches the failover (default: 0)
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKeys        []string `toml:"api_keys"`        // Ordered credentials; env GEMINI_API_KEY[_2,_3] are appended
	Temperature    float32  `toml:"temperature"`     // Completion temperature (default: 0.2)
	Thinking       string   `toml:"thinking"`        // Thinking level for ThinkingModels: MINIMAL, LOW, MEDIUM, HIGH
	ThinkingModels []string `toml:"thinking_models"` // Models that receive the thinking config
}

// MarketConfig configures the structured primary source and the fallback switch
type MarketConfig struct {
	UseScraper     bool    `toml:"use_scraper"`      // Skip the structured API and always scrape
	BaseURL        string  `toml:"base_url"`         // Yahoo Finance query host
	CookieURL      string  `toml:"cookie_url"`       // Host that issues the session cookie for the crumb
	RequestTimeout string  `toml:"request_timeout"`  // HTTP timeout (default: "20s")
	RateLimit      int     `toml:"rate_limit"`       // Requests per second (default: 2)
	UserAgent      string  `toml:"user_agent"`       // User agent sent to Yahoo
	ScreenSize     int     `toml:"screen_size"`      // Candidates requested from the screener (default: 25)
	MinPrice       float64 `toml:"min_price"`        // Screener intraday price floor (default: 1)
	MinVolume      int64   `toml:"min_volume"`       // Screener day volume floor (default: 100000)
	MinChangePct   float64 `toml:"min_change_pct"`   // Screener percent change floor (default: 3)
	NewsCount      int     `toml:"news_count"`       // Headlines requested (capped at 10)
	HistoryBaseURL string  `toml:"history_base_url"` // Public quote pages used by the scraper
	GainersURL     string  `toml:"gainers_url"`      // Public top-gainers page used by the scraper
}

// BrowserConfig configures the headless browser used by the fallback path
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	DisableGPU        bool   `toml:"disable_gpu"`
	UserAgent         string `toml:"user_agent"`
	NavigationTimeout string `toml:"navigation_timeout"` // Whole render budget per page (default: "60s")
	WaitTimeout       string `toml:"wait_timeout"`       // Budget for the ready selector (default: "20s")
}

// SandboxConfig configures the isolated analysis runner
type SandboxConfig struct {
	Engine         string `toml:"engine"`           // Container engine binary (default: "docker")
	Image          string `toml:"image"`            // Image with python, pandas and numpy
	Timeout        string `toml:"timeout"`          // Wall-clock budget (default: "15s")
	Memory         string `toml:"memory"`           // Hard memory ceiling (default: "128m")
	CPUs           string `toml:"cpus"`             // Fractional CPU ceiling (default: "0.5")
	PidsLimit      int    `toml:"pids_limit"`       // Process ceiling (default: 64)
	MaxOutputBytes int    `toml:"max_output_bytes"` // stdout ceiling (default: 20000)
}

// EmailConfig holds SMTP settings for the report email
type EmailConfig struct {
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	From       string   `toml:"from"`
	FromName   string   `toml:"from_name"`
	UseTLS     bool     `toml:"use_tls"`
	Recipients []string `toml:"recipients"`
}

// AnalysisConfig holds defaults for the daily run
type AnalysisConfig struct {
	Period string `toml:"period"` // History period token (default: "5d")
}

// ScheduleConfig controls the recurring run
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"` // 5-field cron spec, CRON_TZ prefix allowed (default: weekdays 16:30 New York)
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		LLM: LLMConfig{
			Models: []string{
				"claude-sonnet-4-20250514",
				"gemini-3-flash-preview",
				"claude-3-5-haiku-20241022",
			},
			DefaultProvider: LLMProviderClaude,
			MaxTurns:        20,
			Timeout:         "2m",
		},
		Claude: ClaudeConfig{
			MaxTokens:   4096,
			Temperature: 0.2,
			MaxRetries:  0,
		},
		Gemini: GeminiConfig{
			Temperature: 0.2,
			Thinking:    "LOW",
		},
		Market: MarketConfig{
			BaseURL:        "https://query2.finance.yahoo.com",
			CookieURL:      "https://fc.yahoo.com",
			RequestTimeout: "20s",
			RateLimit:      2,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			ScreenSize:     25,
			MinPrice:       1,
			MinVolume:      100000,
			MinChangePct:   3,
			NewsCount:      models.MaxNewsItems,
			HistoryBaseURL: "https://finance.yahoo.com",
			GainersURL:     "https://www.futunn.com/en/quote/us/stock-list/nasdaq/top-gainers",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			DisableGPU:        true,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NavigationTimeout: "60s",
			WaitTimeout:       "20s",
		},
		Sandbox: SandboxConfig{
			Engine:         "docker",
			Image:          "stock-analyzer-sandbox",
			Timeout:        "15s",
			Memory:         "128m",
			CPUs:           "0.5",
			PidsLimit:      64,
			MaxOutputBytes: 20000,
		},
		Email: EmailConfig{
			Host:     "smtp.gmail.com",
			Port:     465,
			FromName: "Moverwatch",
			UseTLS:   true,
		},
		Analysis: AnalysisConfig{
			Period: string(models.DefaultPeriod),
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "CRON_TZ=America/New_York 30 16 * * 1-5",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied by the caller afterwards.
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
	if env := os.Getenv("MOVERWATCH_ENV"); env != "" {
		config.Environment = env
	}

	// Logging configuration
	if level := os.Getenv("MOVERWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MOVERWATCH_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Model list and credentials
	if modelList := os.Getenv("MOVERWATCH_MODELS"); modelList != "" {
		if list := splitList(modelList); len(list) > 0 {
			config.LLM.Models = list
		}
	}
	config.Claude.APIKeys = appendKeys(config.Claude.APIKeys,
		"ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY_2", "ANTHROPIC_API_KEY_3", "MOVERWATCH_CLAUDE_API_KEY")
	config.Gemini.APIKeys = appendKeys(config.Gemini.APIKeys,
		"GEMINI_API_KEY", "GEMINI_API_KEY_2", "GEMINI_API_KEY_3", "MOVERWATCH_GEMINI_API_KEY")

	// Fallback switch: the short name is kept for operators used to it.
	// Empty values are ignored like every other override.
	for _, name := range []string{"USE_SCRAPER", "MOVERWATCH_USE_SCRAPER"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			config.Market.UseScraper = ParseSwitch(v)
		}
	}

	// Sandbox configuration
	if image := os.Getenv("MOVERWATCH_SANDBOX_IMAGE"); image != "" {
		config.Sandbox.Image = image
	}
	if engine := os.Getenv("MOVERWATCH_SANDBOX_ENGINE"); engine != "" {
		config.Sandbox.Engine = engine
	}

	// Email configuration
	if host := os.Getenv("SMTP_HOST"); host != "" {
		config.Email.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Email.Port = p
		}
	}
	for _, name := range []string{"GMAIL_SENDER", "SMTP_USERNAME"} {
		if v := os.Getenv(name); v != "" {
			config.Email.Username = v
			if config.Email.From == "" {
				config.Email.From = v
			}
		}
	}
	for _, name := range []string{"GMAIL_APP_PASSWORD", "SMTP_PASSWORD"} {
		if v := os.Getenv(name); v != "" {
			config.Email.Password = v
		}
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		config.Email.From = from
	}

	// Schedule configuration
	if spec := os.Getenv("MOVERWATCH_SCHEDULE"); spec != "" {
		config.Schedule.Cron = spec
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, period string, recipients []string) {
	if period != "" {
		config.Analysis.Period = period
	}
	if len(recipients) > 0 {
		config.Email.Recipients = recipients
	}
}

// Validate checks the settings that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	if _, err := models.ParsePeriod(c.Analysis.Period); err != nil {
		return fmt.Errorf("analysis.period: %w", err)
	}
	if len(c.LLM.Models) == 0 {
		return fmt.Errorf("llm.models: at least one model is required")
	}
	if c.LLM.MaxTurns <= 0 {
		return fmt.Errorf("llm.max_turns must be greater than 0, got %d", c.LLM.MaxTurns)
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: invalid cron expression %q: %w", c.Schedule.Cron, err)
		}
	}
	for name, value := range map[string]string{
		"llm.timeout":                c.LLM.Timeout,
		"market.request_timeout":     c.Market.RequestTimeout,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.wait_timeout":       c.Browser.WaitTimeout,
		"sandbox.timeout":            c.Sandbox.Timeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
		}
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be greater than 0, got %d", c.Sandbox.MaxOutputBytes)
	}
	return nil
}

// Duration parses a duration setting, falling back when it is empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return fallback
}

// ParseSwitch interprets boolean-like environment values.
func ParseSwitch(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

// appendKeys adds non-empty credentials from the named variables, skipping duplicates.
func appendKeys(keys []string, envNames ...string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys)+len(envNames))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	for _, name := range envNames {
		k := strings.TrimSpace(os.Getenv(name))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// splitList splits a comma-separated value and drops empty entries.
func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SplitList is exported for CLI flag parsing.
func SplitList(s string) []string {
	return splitList(s)
}
