package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Routing   RoutingConfig             `mapstructure:"routing"`
	Budget    BudgetConfig              `mapstructure:"budget"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	CORSOrigin       []string      `mapstructure:"cors_origin"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
	AuthTokens       []string      `mapstructure:"auth_tokens"`
}

type ProviderConfig struct {
	APIKey  string   `mapstructure:"api_key"`
	BaseURL string   `mapstructure:"base_url"`
	Models  []string `mapstructure:"models"`
}

type RoutingConfig struct {
	DefaultStrategy     string               `mapstructure:"default_strategy"`
	CascadeMinQuality   float64              `mapstructure:"cascade_min_quality"`
	ComplexityThresholds ComplexityThresholds `mapstructure:"complexity_thresholds"`
}

type ComplexityThresholds struct {
	Medium  float64 `mapstructure:"medium"`
	Complex float64 `mapstructure:"complex"`
}

type BudgetConfig struct {
	Daily              BudgetLimit `mapstructure:"daily"`
	Weekly             BudgetLimit `mapstructure:"weekly"`
	Monthly            BudgetLimit `mapstructure:"monthly"`
	EmergencyThreshold float64     `mapstructure:"emergency_threshold"`
	DisableProviders   []string    `mapstructure:"disable_providers"`
}

type BudgetLimit struct {
	Limit float64 `mapstructure:"limit"`
}

type CacheConfig struct {
	Adapter             string        `mapstructure:"adapter"`
	RedisURL            string        `mapstructure:"redis_url"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	MaxEntries          int           `mapstructure:"max_entries"`
	TTL                 time.Duration `mapstructure:"ttl"`
	RealtimeTTL         time.Duration `mapstructure:"realtime_ttl"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/switchyard")
	}

	setDefaults(v)

	v.SetEnvPrefix("SWITCHYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origin", []string{"*"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.graceful_shutdown", "15s")

	v.SetDefault("routing.default_strategy", "cascade")
	v.SetDefault("routing.cascade_min_quality", 6.0)
	v.SetDefault("routing.complexity_thresholds.medium", 0.30)
	v.SetDefault("routing.complexity_thresholds.complex", 0.70)

	v.SetDefault("budget.daily.limit", 10.0)
	v.SetDefault("budget.weekly.limit", 50.0)
	v.SetDefault("budget.monthly.limit", 150.0)
	v.SetDefault("budget.emergency_threshold", 95.0)

	v.SetDefault("cache.adapter", "memory")
	v.SetDefault("cache.similarity_threshold", 0.82)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.realtime_ttl", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

func (c *Config) Validate() error {
	switch c.Routing.DefaultStrategy {
	case "priority", "cost-optimized", "cascade", "emergency":
	default:
		return fmt.Errorf("invalid routing.default_strategy: %q", c.Routing.DefaultStrategy)
	}

	if c.Routing.CascadeMinQuality < 0 || c.Routing.CascadeMinQuality > 10 {
		return fmt.Errorf("routing.cascade_min_quality must be in [0,10], got %v", c.Routing.CascadeMinQuality)
	}

	if c.Budget.EmergencyThreshold < 0 || c.Budget.EmergencyThreshold > 100 {
		return fmt.Errorf("budget.emergency_threshold must be in [0,100], got %v", c.Budget.EmergencyThreshold)
	}

	switch c.Cache.Adapter {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.adapter: %q", c.Cache.Adapter)
	}

	if c.Cache.Adapter == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache.adapter is redis")
	}

	if t := c.Routing.ComplexityThresholds; t.Medium <= 0 || t.Complex <= t.Medium || t.Complex >= 1 {
		return fmt.Errorf("complexity thresholds must satisfy 0 < medium < complex < 1")
	}

	return nil
}
