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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	OnDemand OnDemandConfig `yaml:"ondemand" mapstructure:"ondemand"`
	Claude   ClaudeConfig   `yaml:"claude" mapstructure:"claude"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Alerting AlertingConfig `yaml:"alerting" mapstructure:"alerting"`
}

// StoreConfig configures the persistence backends: the primary database
// plus the local file fallback directory.
type StoreConfig struct {
	Driver       string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath   string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	FallbackDir  string `yaml:"fallback_dir" mapstructure:"fallback_dir"`
	ProbeSeconds int    `yaml:"probe_seconds" mapstructure:"probe_seconds"`
}

// OnDemandConfig holds agent platform credentials and routing.
type OnDemandConfig struct {
	Key         string            `yaml:"key" mapstructure:"key"`
	WorkspaceID string            `yaml:"workspace_id" mapstructure:"workspace_id"`
	BaseURL     string            `yaml:"base_url" mapstructure:"base_url"`
	Agents      map[string]string `yaml:"agents" mapstructure:"agents"`
	RateLimit   float64           `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst   int               `yaml:"rate_burst" mapstructure:"rate_burst"`
	SchemaPath  string            `yaml:"schema_path" mapstructure:"schema_path"`
}

// ClaudeConfig holds Anthropic API settings for the composer backend.
type ClaudeConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	// UseComposer routes compose_email and generate_call_script to
	// Claude instead of the agent platform.
	UseComposer bool `yaml:"use_composer" mapstructure:"use_composer"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	QualificationCutoff float64        `yaml:"qualification_cutoff" mapstructure:"qualification_cutoff"`
	ICPCriteria         map[string]any `yaml:"icp_criteria" mapstructure:"icp_criteria"`
	CampaignType        string         `yaml:"campaign_type" mapstructure:"campaign_type"`
	Tone                string         `yaml:"tone" mapstructure:"tone"`
	CallObjective       string         `yaml:"call_objective" mapstructure:"call_objective"`
	ValidateContacts    bool           `yaml:"validate_contacts" mapstructure:"validate_contacts"`
}

// CacheConfig configures the capability result cache.
type CacheConfig struct {
	TTLHours   int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// RetryConfig configures the shared retry policy and the circuit
// breaker thresholds built from it.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS      int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	FailureThreshold  int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSeconds   int     `yaml:"cooldown_seconds" mapstructure:"cooldown_seconds"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentLeads int `yaml:"max_concurrent_leads" mapstructure:"max_concurrent_leads"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AlertingConfig configures webhook alerting.
type AlertingConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinFinished          int     `yaml:"min_finished" mapstructure:"min_finished"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "outreach.db")
	v.SetDefault("store.fallback_dir", ".outreach/fallback")
	v.SetDefault("store.probe_seconds", 30)
	v.SetDefault("ondemand.base_url", "https://api.ondemand.io/v1")
	v.SetDefault("ondemand.rate_limit", 5.0)
	v.SetDefault("ondemand.rate_burst", 5)
	v.SetDefault("claude.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("claude.max_tokens", 2048)
	v.SetDefault("pipeline.qualification_cutoff", 60.0)
	v.SetDefault("pipeline.campaign_type", "cold_outreach")
	v.SetDefault("pipeline.call_objective", "book_discovery_call")
	v.SetDefault("pipeline.validate_contacts", true)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.cooldown_seconds", 30)
	v.SetDefault("batch.max_concurrent_leads", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("alerting.failure_rate_threshold", 0.5)
	v.SetDefault("alerting.min_finished", 5)
	v.SetDefault("alerting.check_interval_secs", 300)

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
