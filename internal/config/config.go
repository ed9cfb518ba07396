package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/deadonfilm/deadonfilm/internal/source"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string     `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds postgres connection pool tuning.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	CleanupModel string `yaml:"cleanup_model" mapstructure:"cleanup_model"`
}

// EnrichConfig holds default run parameters. Command-line flags override
// these per run.
type EnrichConfig struct {
	Categories          []string `yaml:"categories" mapstructure:"categories"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	StopOnMatch         bool     `yaml:"stop_on_match" mapstructure:"stop_on_match"`
	GatherAllSources    bool     `yaml:"gather_all_sources" mapstructure:"gather_all_sources"`
	ClaudeCleanup       bool     `yaml:"claude_cleanup" mapstructure:"claude_cleanup"`
	MaxCostPerSubject   float64  `yaml:"max_cost_per_subject_usd" mapstructure:"max_cost_per_subject_usd"`
	MaxTotalCost        float64  `yaml:"max_total_cost_usd" mapstructure:"max_total_cost_usd"`
	Concurrency         int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// SourcesConfig points at the optional per-source overrides file.
type SourcesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// SyncConfig configures the IMDb dataset refresh.
type SyncConfig struct {
	DatasetURL string `yaml:"dataset_url" mapstructure:"dataset_url"`
	TempDir    string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ServerConfig configures the review API server.
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
	v.SetEnvPrefix("DEADONFILM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "deadonfilm.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.cleanup_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("enrich.categories", []string{"free", "paid", "ai"})
	v.SetDefault("enrich.confidence_threshold", 0.7)
	v.SetDefault("enrich.stop_on_match", true)
	v.SetDefault("enrich.claude_cleanup", true)
	v.SetDefault("enrich.max_cost_per_subject_usd", 0.25)
	v.SetDefault("enrich.max_total_cost_usd", 10.0)
	v.SetDefault("enrich.concurrency", 2)
	v.SetDefault("sync.temp_dir", "/tmp/deadonfilm")

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

// LoadSourceSettings reads per-source overrides (reliability, cost, pacing,
// disabled) from a YAML file keyed by source name. A missing path returns
// an empty map.
func LoadSourceSettings(path string) (map[string]source.Settings, error) {
	if path == "" {
		return map[string]source.Settings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]source.Settings{}, nil
		}
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}

	var settings map[string]source.Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, eris.Wrapf(err, "config: parse sources file %s", path)
	}
	return settings, nil
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
