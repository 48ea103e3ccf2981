package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Fallback   FallbackConfig   `yaml:"fallback" mapstructure:"fallback"`
	Images     ImagesConfig     `yaml:"images" mapstructure:"images"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GoogleConfig holds Custom Search credentials for image search.
type GoogleConfig struct {
	SearchKey      string `yaml:"search_key" mapstructure:"search_key"`
	SearchEngineID string `yaml:"search_engine_id" mapstructure:"search_engine_id"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
}

// FallbackConfig selects the non-search spec backend.
type FallbackConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // openai, anthropic or gemini
}

// ImagesConfig configures image discovery and acquisition.
type ImagesConfig struct {
	MaxDownloads     int `yaml:"max_downloads" mapstructure:"max_downloads"`
	SearchLimit      int `yaml:"search_limit" mapstructure:"search_limit"`
	MaxScrapeSources int `yaml:"max_scrape_sources" mapstructure:"max_scrape_sources"`
	MaxCandidates    int `yaml:"max_candidates" mapstructure:"max_candidates"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ScrapeConfig configures source page fetching.
type ScrapeConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxBodyBytes      int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CacheTTLHours     int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"` // 0 disables the page cache
}

// StorageConfig configures the blob store for downloaded images.
type StorageConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// ResearchConfig configures the orchestrator.
type ResearchConfig struct {
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "watch-research.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.model", "gemini-1.5-pro")
	v.SetDefault("google.search_key", "")
	v.SetDefault("google.search_engine_id", "")
	v.SetDefault("google.base_url", "")
	v.SetDefault("fallback.backend", "openai")
	v.SetDefault("images.max_downloads", 5)
	v.SetDefault("images.search_limit", 10)
	v.SetDefault("images.max_scrape_sources", 5)
	v.SetDefault("images.max_candidates", 15)
	v.SetDefault("images.timeout_secs", 15)
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("scrape.requests_per_second", 2.0)
	v.SetDefault("scrape.max_body_bytes", 2<<20)
	v.SetDefault("scrape.cache_ttl_hours", 24)
	v.SetDefault("storage.root", "storage")
	v.SetDefault("research.policy_file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}

	switch mode {
	case "research":
		switch c.Fallback.Backend {
		case "openai", "anthropic", "gemini":
		default:
			return eris.Errorf("config: unknown fallback backend %q", c.Fallback.Backend)
		}
		if c.Images.MaxDownloads < 0 {
			return eris.Errorf("config: images.max_downloads must be >= 0, got %d", c.Images.MaxDownloads)
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: invalid server.port %d", c.Server.Port)
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields for %s: %s", mode, strings.Join(missing, ", "))
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
