package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: openai, gemini or ollama (default: openai)
// - LLM_API_KEY: API key for the provider (required except for ollama)
// - LLM_API_URL: API endpoint URL (default depends on the provider)
// - LLM_FAST_MODEL: model id used for the fast tier
// - LLM_QUALITY_MODEL: model id used for the quality tier and context checks
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Pipeline Configuration:
// - PIPELINE_BATCH_DELAY_MS: pause between batches (default: 1000)
// - DEFAULT_SOURCE_LANG, DEFAULT_TARGET_LANG, DEFAULT_GENRE,
//   DEFAULT_BATCH_SIZE, DEFAULT_PRO_ALLOCATION: run defaults
//
// Server Configuration:
// - HTTP_ADDR: listen address (default: :8080)
// - HTTP_CORS_ORIGINS: comma separated allowed origins (default: *)
// - WATCH_DIR: directory scanned for new .srt files (optional)
// - WATCH_CRON: scan schedule (default: */10 * * * *)
// - SETTINGS_FILE: TOML file holding the default run settings (optional)
//
// Logging:
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: additional JSON log file (optional)
type Config struct {
	LLM      LLMConfig      `json:"llm"`
	Pipeline PipelineConfig `json:"pipeline"`
	HTTP     HTTPConfig     `json:"http"`
	Watch    WatchConfig    `json:"watch"`
	Log      LogConfig      `json:"log"`

	SettingsFile string `json:"settings_file"`
}

// LLMConfig holds the configuration for the remote model provider.
type LLMConfig struct {
	Provider     string `json:"provider"`
	APIKey       string `json:"-"`
	APIURL       string `json:"api_url"`
	FastModel    string `json:"fast_model"`
	QualityModel string `json:"quality_model"`
	MaxTokens    int    `json:"max_tokens"`
	Timeout      int    `json:"timeout"`
	SiteURL      string `json:"site_url"`
	AppName      string `json:"app_name"`
}

func (c LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

type PipelineConfig struct {
	BatchDelay time.Duration `json:"batch_delay"`
	Defaults   RunConfig     `json:"defaults"`
}

type HTTPConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins"`
}

type WatchConfig struct {
	Dir      string `json:"dir"`
	CronExpr string `json:"cron_expr"`
}

func (c WatchConfig) Enabled() bool {
	return strings.TrimSpace(c.Dir) != ""
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

var defaultModels = map[string][2]string{
	ProviderOpenAI: {"google/gemini-2.5-flash", "google/gemini-2.5-pro"},
	ProviderGemini: {"gemini-2.5-flash", "gemini-2.5-pro"},
	ProviderOllama: {"llama3.1:8b", "llama3.1:70b"},
}

var defaultURLs = map[string]string{
	ProviderOpenAI: "https://openrouter.ai/api/v1",
	ProviderGemini: "https://generativelanguage.googleapis.com/v1beta",
	ProviderOllama: "http://localhost:11434",
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithLLM(llm LLMConfig) Option {
	return func(c *Config) { c.LLM = llm }
}

func WithAPIKey(key string) Option {
	return func(c *Config) { c.LLM.APIKey = key }
}

func WithWatchDir(dir string) Option {
	return func(c *Config) { c.Watch.Dir = dir }
}

func WithHTTPAddr(addr string) Option {
	return func(c *Config) { c.HTTP.Addr = addr }
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	provider := strings.ToLower(getEnvString("LLM_PROVIDER", ProviderOpenAI))
	models := defaultModels[provider]

	defaults := DefaultRunConfig()
	defaults.SourceLang = getEnvString("DEFAULT_SOURCE_LANG", defaults.SourceLang)
	defaults.TargetLang = getEnvString("DEFAULT_TARGET_LANG", defaults.TargetLang)
	defaults.Genre = getEnvString("DEFAULT_GENRE", defaults.Genre)
	defaults.BatchSize = getEnvInt("DEFAULT_BATCH_SIZE", defaults.BatchSize)
	if pro := getEnvInt("DEFAULT_PRO_ALLOCATION", -1); pro >= 0 {
		defaults.ProAllocation = pro
		defaults.FlashAllocation = 100 - pro
	}

	config := &Config{
		LLM: LLMConfig{
			Provider:     provider,
			APIKey:       getEnvString("LLM_API_KEY", ""),
			APIURL:       getEnvString("LLM_API_URL", defaultURLs[provider]),
			FastModel:    getEnvString("LLM_FAST_MODEL", models[0]),
			QualityModel: getEnvString("LLM_QUALITY_MODEL", models[1]),
			MaxTokens:    getEnvInt("LLM_MAX_TOKENS", 8000),
			Timeout:      getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:      getEnvString("LLM_SITE_URL", ""),
			AppName:      getEnvString("LLM_APP_NAME", ""),
		},
		Pipeline: PipelineConfig{
			BatchDelay: time.Duration(getEnvInt("PIPELINE_BATCH_DELAY_MS", 1000)) * time.Millisecond,
			Defaults:   defaults,
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			CORSOrigins: getEnvList("HTTP_CORS_ORIGINS", []string{"*"}),
		},
		Watch: WatchConfig{
			Dir:      getEnvString("WATCH_DIR", ""),
			CronExpr: getEnvString("WATCH_CRON", "*/10 * * * *"),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
			File:  getEnvString("LOG_FILE", ""),
		},
		SettingsFile: getEnvString("SETTINGS_FILE", ""),
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("%w: LLM_API_KEY is required for provider %s", ErrInvalid, c.LLM.Provider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown LLM_PROVIDER %q", ErrInvalid, c.LLM.Provider)
	}
	if c.LLM.FastModel == "" || c.LLM.QualityModel == "" {
		return fmt.Errorf("%w: both LLM_FAST_MODEL and LLM_QUALITY_MODEL are required", ErrInvalid)
	}
	if c.Pipeline.BatchDelay < 0 {
		return fmt.Errorf("%w: PIPELINE_BATCH_DELAY_MS must not be negative", ErrInvalid)
	}
	if c.Watch.Enabled() {
		if _, err := cron.ParseStandard(c.Watch.CronExpr); err != nil {
			return fmt.Errorf("%w: invalid WATCH_CRON: %v", ErrInvalid, err)
		}
	}
	defaults := c.Pipeline.Defaults.Normalize()
	if err := defaults.Validate(); err != nil {
		return err
	}
	c.Pipeline.Defaults = defaults
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty parts.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var ret []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	if len(ret) == 0 {
		return defaultValue
	}
	return ret
}
