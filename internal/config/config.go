package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Mistral    MistralConfig    `yaml:"mistral" mapstructure:"mistral"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Document   DocumentConfig   `yaml:"document" mapstructure:"document"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string        `yaml:"key" mapstructure:"key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// OpenAIConfig holds OpenAI vision settings.
type OpenAIConfig struct {
	Key       string        `yaml:"key" mapstructure:"key"`
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Model     string        `yaml:"model" mapstructure:"model"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MistralConfig holds Mistral OCR settings.
type MistralConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// OCRConfig selects the text extractor used by the OCR strategies.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// SearchConfig configures the web search fan-out.
type SearchConfig struct {
	SlotTimeout     time.Duration `yaml:"slot_timeout" mapstructure:"slot_timeout"`
	PartConcurrency int           `yaml:"part_concurrency" mapstructure:"part_concurrency"`
	BreakerFailures int           `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// DocumentConfig configures document extraction.
type DocumentConfig struct {
	Strategy       string `yaml:"strategy" mapstructure:"strategy"`
	VisionProvider string `yaml:"vision_provider" mapstructure:"vision_provider"`
	JSONFailure    string `yaml:"json_failure" mapstructure:"json_failure"`
	MaxUploadMB    int64  `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// CacheConfig configures the optional response cache.
type CacheConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RedisURL    string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL         time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// FetchConfig configures downloading datasheets by URL.
type FetchConfig struct {
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	HostRate   float64       `yaml:"host_rate" mapstructure:"host_rate"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	SearchPerMin   int      `yaml:"search_per_min" mapstructure:"search_per_min"`
	DocumentPerMin int      `yaml:"document_per_min" mapstructure:"document_per_min"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Mistral    MistralPricing          `yaml:"mistral" mapstructure:"mistral"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// MistralPricing holds Mistral OCR pricing.
type MistralPricing struct {
	PerPage float64 `yaml:"per_page" mapstructure:"per_page"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Document strategies.
const (
	StrategyVision   = "vision"
	StrategyOCRLLM   = "ocr_llm"
	StrategyOCRRegex = "ocr_regex"
)

// bareEnv maps config keys to the unprefixed variables deployments already set.
var bareEnv = map[string]string{
	"perplexity.key": "PERPLEXITY_API_KEY",
	"openai.key":     "OPENAI_API_KEY",
	"anthropic.key":  "ANTHROPIC_API_KEY",
	"mistral.key":    "MISTRAL_API_KEY",
	"server.port":    "PORT",
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SPECSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range bareEnv {
		prefixed := "SPECSEARCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, name); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.search_per_min", 10)
	v.SetDefault("server.document_per_min", 5)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.timeout", "30s")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 4096)
	v.SetDefault("openai.timeout", "120s")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("mistral.base_url", "https://api.mistral.ai")
	v.SetDefault("mistral.model", "mistral-ocr-latest")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("search.slot_timeout", "20s")
	v.SetDefault("search.part_concurrency", 1)
	v.SetDefault("search.breaker_failures", 5)
	v.SetDefault("search.breaker_cooldown", "30s")
	v.SetDefault("document.strategy", StrategyVision)
	v.SetDefault("document.vision_provider", "openai")
	v.SetDefault("document.json_failure", "empty")
	v.SetDefault("document.max_upload_mb", 50)
	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.sqlite_path", "spec-search.db")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("fetch.user_agent", "spec-search/1.0")
	v.SetDefault("fetch.timeout", "60s")
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.host_rate", 2.0)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.mistral.per_page", 0.001)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0},
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0},
	})
	v.SetDefault("pricing.openai", map[string]any{
		"gpt-4o":      map[string]any{"input": 2.5, "output": 10.0},
		"gpt-4o-mini": map[string]any{"input": 0.15, "output": 0.6},
	})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects enum values the rest of the program cannot act on.
func (c *Config) Validate() error {
	switch c.Document.Strategy {
	case StrategyVision, StrategyOCRLLM, StrategyOCRRegex:
	default:
		return eris.Errorf("config: unknown document.strategy %q", c.Document.Strategy)
	}
	switch c.Document.VisionProvider {
	case "openai", "anthropic":
	default:
		return eris.Errorf("config: unknown document.vision_provider %q", c.Document.VisionProvider)
	}
	switch c.Document.JSONFailure {
	case "empty", "regex":
	default:
		return eris.Errorf("config: unknown document.json_failure %q", c.Document.JSONFailure)
	}
	switch c.Cache.Driver {
	case "none", "sqlite", "postgres", "redis":
	default:
		return eris.Errorf("config: unknown cache.driver %q", c.Cache.Driver)
	}
	switch c.OCR.Provider {
	case "local", "mistral":
	default:
		return eris.Errorf("config: unknown ocr.provider %q", c.OCR.Provider)
	}
	if c.Search.PartConcurrency < 1 {
		c.Search.PartConcurrency = 1
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
