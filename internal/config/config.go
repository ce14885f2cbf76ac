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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
	ExtractModel  string `yaml:"extract_model" mapstructure:"extract_model"`
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures triage behavior and review thresholds.
type PipelineConfig struct {
	City                    string  `yaml:"city" mapstructure:"city"`
	TriageThreshold         float64 `yaml:"triage_threshold" mapstructure:"triage_threshold"`
	ValidationThreshold     float64 `yaml:"validation_threshold" mapstructure:"validation_threshold"`
	ClassificationThreshold float64 `yaml:"classification_threshold" mapstructure:"classification_threshold"`
	OverallThreshold        float64 `yaml:"overall_threshold" mapstructure:"overall_threshold"`
}

// GeocodeConfig configures address geocoding.
type GeocodeConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	DefaultCity string  `yaml:"default_city" mapstructure:"default_city"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
}

// ServerConfig configures the intake HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ImportConfig configures historical CSV imports.
type ImportConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
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
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_requests", 5)
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.extract_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("pipeline.city", "Boston")
	v.SetDefault("pipeline.triage_threshold", 0.75)
	v.SetDefault("pipeline.validation_threshold", 0.80)
	v.SetDefault("pipeline.classification_threshold", 0.75)
	v.SetDefault("pipeline.overall_threshold", 0.70)
	v.SetDefault("geocode.enabled", false)
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.default_city", "Boston, MA")
	v.SetDefault("geocode.timeout_secs", 30)

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "triage" (classification + extraction), "persist" (triage plus
// database writes), "serve" (intake server), "import" (CSV loading).
func (c *Config) Validate(mode string) error {
	var problems []string

	checkThreshold := func(name string, val float64) {
		if val < 0 || val > 1 {
			problems = append(problems, "pipeline."+name+" must be between 0 and 1")
		}
	}
	checkThreshold("triage_threshold", c.Pipeline.TriageThreshold)
	checkThreshold("validation_threshold", c.Pipeline.ValidationThreshold)
	checkThreshold("classification_threshold", c.Pipeline.ClassificationThreshold)
	checkThreshold("overall_threshold", c.Pipeline.OverallThreshold)

	if c.Batch.MaxConcurrentRequests < 1 || c.Batch.MaxConcurrentRequests > 50 {
		problems = append(problems, "batch.max_concurrent_requests must be between 1 and 50")
	}

	needsKey := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	}
	needsDB := func() {
		// SQLite falls back to a local file when no URL is set.
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "triage":
		needsKey()
	case "persist":
		needsKey()
		needsDB()
	case "serve":
		needsKey()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "import":
		needsDB()
		if c.Import.BatchSize < 1 {
			problems = append(problems, "import.batch_size must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
