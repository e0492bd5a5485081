package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Assets     AssetsConfig     `yaml:"assets" mapstructure:"assets"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PipelineConfig configures item mutation pipelines.
type PipelineConfig struct {
	// ResyncDelayMs is the delay between a successful images step and the
	// follow-up reload of the item.
	ResyncDelayMs int  `yaml:"resync_delay_ms" mapstructure:"resync_delay_ms"`
	TimeoutSecs   int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ArchiveTasks  bool `yaml:"archive_tasks" mapstructure:"archive_tasks"`
}

// ResyncDelay returns ResyncDelayMs as a duration.
func (c PipelineConfig) ResyncDelay() time.Duration {
	return time.Duration(c.ResyncDelayMs) * time.Millisecond
}

// Timeout returns TimeoutSecs as a duration. Zero disables the timeout.
func (c PipelineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BatchConfig configures batch item creation.
type BatchConfig struct {
	Size    int `yaml:"size" mapstructure:"size"`
	PauseMs int `yaml:"pause_ms" mapstructure:"pause_ms"`
}

// Pause returns PauseMs as a duration.
func (c BatchConfig) Pause() time.Duration {
	return time.Duration(c.PauseMs) * time.Millisecond
}

// AssetsConfig configures the binary asset service used for image uploads.
type AssetsConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Key               string  `yaml:"key" mapstructure:"key"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	MaxDimension      int     `yaml:"max_dimension" mapstructure:"max_dimension"`
	JPEGQuality       int     `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}

// RetryConfig configures retries of transient asset-service failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the asset-service circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// PricingConfig controls how prices are displayed.
type PricingConfig struct {
	Currency string `yaml:"currency" mapstructure:"currency"`
	Language string `yaml:"language" mapstructure:"language"`
}

// MonitoringConfig configures periodic task health checks and webhook alerts.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinFinished          int     `yaml:"min_finished" mapstructure:"min_finished"`
	StuckAfterSecs       int     `yaml:"stuck_after_secs" mapstructure:"stuck_after_secs"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowMins   int     `yaml:"lookback_window_mins" mapstructure:"lookback_window_mins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("pipeline.resync_delay_ms", 500)
	v.SetDefault("pipeline.timeout_secs", 0)
	v.SetDefault("pipeline.archive_tasks", true)
	v.SetDefault("batch.size", 3)
	v.SetDefault("batch.pause_ms", 1000)
	v.SetDefault("assets.requests_per_second", 5.0)
	v.SetDefault("assets.burst", 2)
	v.SetDefault("assets.max_dimension", 1600)
	v.SetDefault("assets.jpeg_quality", 82)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("pricing.currency", "USD")
	v.SetDefault("pricing.language", "en")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.min_finished", 5)
	v.SetDefault("monitoring.stuck_after_secs", 600)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_mins", 60)

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

// Validate checks that the settings required by a command mode are present.
// Every mode that touches the store ("serve", "batch", "store") needs a
// database URL when the postgres driver is selected.
func (c *Config) Validate(mode string) error {
	var missing []string
	switch mode {
	case "serve", "batch", "store":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required (CATALOG_STORE_DATABASE_URL)")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}
	if c.Batch.Size < 0 {
		missing = append(missing, fmt.Sprintf("batch.size must not be negative, got %d", c.Batch.Size))
	}
	if c.Assets.BaseURL == "" && mode == "serve" {
		zap.L().Warn("assets.base_url not set, raw image uploads will be rejected")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: %s: %s", mode, strings.Join(missing, "; "))
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
