package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	DocSource DocSourceConfig `yaml:"docsource" mapstructure:"docsource"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Finance   FinanceConfig   `yaml:"finance" mapstructure:"finance"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// DocSourceConfig configures document retrieval.
type DocSourceConfig struct {
	FTPTimeout time.Duration `yaml:"ftp_timeout" mapstructure:"ftp_timeout"`
}

// MarshalYAML renders durations in the form the config file accepts, not
// raw nanoseconds.
func (d DocSourceConfig) MarshalYAML() (any, error) {
	return struct {
		FTPTimeout string `yaml:"ftp_timeout"`
	}{d.FTPTimeout.String()}, nil
}

// PipelineConfig configures extraction pipeline behavior.
type PipelineConfig struct {
	Mode          string        `yaml:"mode" mapstructure:"mode"`
	StageTimeout  time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
	HRMaxAttempts int           `yaml:"hr_max_attempts" mapstructure:"hr_max_attempts"`
	HRBackoff     time.Duration `yaml:"hr_backoff" mapstructure:"hr_backoff"`
	HRMinInsights int           `yaml:"hr_min_insights" mapstructure:"hr_min_insights"`
}

// MarshalYAML renders durations in the form the config file accepts, not
// raw nanoseconds.
func (p PipelineConfig) MarshalYAML() (any, error) {
	return struct {
		Mode          string `yaml:"mode"`
		StageTimeout  string `yaml:"stage_timeout"`
		HRMaxAttempts int    `yaml:"hr_max_attempts"`
		HRBackoff     string `yaml:"hr_backoff"`
		HRMinInsights int    `yaml:"hr_min_insights"`
	}{p.Mode, p.StageTimeout.String(), p.HRMaxAttempts, p.HRBackoff.String(), p.HRMinInsights}, nil
}

// FinanceConfig configures the financial metrics normalizer. ConfigPath
// points at an optional YAML file overriding the built-in currency table
// and keyword lists; the scalar fields override bounds individually.
type FinanceConfig struct {
	BaseCurrency string  `yaml:"base_currency" mapstructure:"base_currency"`
	ConfigPath   string  `yaml:"config_path" mapstructure:"config_path"`
	MinEmployees int     `yaml:"min_employees" mapstructure:"min_employees"`
	MaxEmployees int     `yaml:"max_employees" mapstructure:"max_employees"`
	MinRevenue   float64 `yaml:"min_revenue" mapstructure:"min_revenue"`
	MaxRevenue   float64 `yaml:"max_revenue" mapstructure:"max_revenue"`
}

// NotionConfig holds review queue credentials. The review queue is
// disabled when APIKey is empty.
type NotionConfig struct {
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	ReviewDBID string `yaml:"review_db_id" mapstructure:"review_db_id"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ExportConfig configures workbook export.
type ExportConfig struct {
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// defaultStorePath returns ~/.reportflow/reportflow.db, falling back to
// the working directory when the home directory cannot be determined.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".reportflow", "reportflow.db")
	}
	return filepath.Join(home, ".reportflow", "reportflow.db")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REPORTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a useful default still get an empty one:
	// Unmarshal only maps environment values onto keys viper knows about.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("store.dsn", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.rate_limit", 2)
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("docsource.ftp_timeout", "30s")
	v.SetDefault("pipeline.mode", "sequential")
	v.SetDefault("pipeline.stage_timeout", "120s")
	v.SetDefault("pipeline.hr_max_attempts", 3)
	v.SetDefault("pipeline.hr_backoff", "2s")
	v.SetDefault("pipeline.hr_min_insights", 3)
	v.SetDefault("finance.base_currency", "USD")
	v.SetDefault("finance.config_path", "")
	v.SetDefault("finance.min_employees", 10)
	v.SetDefault("finance.max_employees", 5_000_000)
	v.SetDefault("finance.min_revenue", 100_000.0)
	v.SetDefault("finance.max_revenue", 10_000_000_000_000.0)
	v.SetDefault("notion.api_key", "")
	v.SetDefault("notion.review_db_id", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("export.limit", 200)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// failures deep inside a subsystem.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return eris.New("config: postgres driver requires store.dsn")
	}
	switch c.Pipeline.Mode {
	case "sequential", "parallel":
	default:
		return eris.Errorf("config: unknown pipeline mode %q", c.Pipeline.Mode)
	}
	if c.Pipeline.HRMaxAttempts < 1 {
		return eris.New("config: pipeline.hr_max_attempts must be at least 1")
	}
	if c.Pipeline.HRMinInsights < 1 {
		return eris.New("config: pipeline.hr_min_insights must be at least 1")
	}
	if c.Anthropic.MaxTokens <= 0 {
		return eris.New("config: anthropic.max_tokens must be positive")
	}
	if c.Export.Limit <= 0 {
		return eris.New("config: export.limit must be positive")
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
