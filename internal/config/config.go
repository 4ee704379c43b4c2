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
	Routing       RoutingConfig       `yaml:"routing" mapstructure:"routing"`
	FeatureServer FeatureServerConfig `yaml:"featureserver" mapstructure:"featureserver"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Batch         BatchConfig         `yaml:"batch" mapstructure:"batch"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// RoutingConfig configures allocation, depot planning and rebalancing.
type RoutingConfig struct {
	VisitsPerRoute       int    `yaml:"visits_per_route" mapstructure:"visits_per_route"`
	TotalRoutes          int    `yaml:"total_routes" mapstructure:"total_routes"`
	StartHour            int    `yaml:"start_hour" mapstructure:"start_hour"`
	StartMinute          int    `yaml:"start_minute" mapstructure:"start_minute"`
	NextDays             int    `yaml:"next_days" mapstructure:"next_days"`
	ClusterSeed          uint64 `yaml:"cluster_seed" mapstructure:"cluster_seed"`
	LateToleranceMinutes int    `yaml:"late_tolerance_minutes" mapstructure:"late_tolerance_minutes"`
	MaxResolvePasses     int    `yaml:"max_resolve_passes" mapstructure:"max_resolve_passes"`
	WorkdayHours         int    `yaml:"workday_hours" mapstructure:"workday_hours"`
	Timezone             string `yaml:"timezone" mapstructure:"timezone"`
	HolidaysFile         string `yaml:"holidays_file" mapstructure:"holidays_file"`
}

// FeatureServerConfig configures the remote feature layers.
type FeatureServerConfig struct {
	LeadsURL       string  `yaml:"leads_url" mapstructure:"leads_url"`
	RoutedURL      string  `yaml:"routed_url" mapstructure:"routed_url"`
	UnroutedURL    string  `yaml:"unrouted_url" mapstructure:"unrouted_url"`
	RoutesURL      string  `yaml:"routes_url" mapstructure:"routes_url"`
	Token          string  `yaml:"token" mapstructure:"token"`
	PageSize       int     `yaml:"page_size" mapstructure:"page_size"`
	RetryAttempts  int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetrySleepSecs int     `yaml:"retry_sleep_secs" mapstructure:"retry_sleep_secs"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Where          string  `yaml:"where" mapstructure:"where"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// BatchConfig configures per-group concurrency. Zero means NumCPU-1.
type BatchConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Location resolves the configured timezone. An empty name is local time.
func (r RoutingConfig) Location() (*time.Location, error) {
	if r.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", r.Timezone)
	}
	return loc, nil
}

// DSN returns the connection string for the configured driver.
func (s StoreConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.DatabaseURL
	}
	return s.Path
}

// Validate checks the settings a command mode depends on. Every failing
// field is reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Routing.VisitsPerRoute < 1 {
		problems = append(problems, "routing.visits_per_route must be >= 1")
	}
	if c.Routing.StartHour < 0 || c.Routing.StartHour > 23 {
		problems = append(problems, "routing.start_hour must be between 0 and 23")
	}
	if c.Routing.StartMinute < 0 || c.Routing.StartMinute > 59 {
		problems = append(problems, "routing.start_minute must be between 0 and 59")
	}
	if c.Batch.Workers < 0 {
		problems = append(problems, "batch.workers must be >= 0")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	switch mode {
	case "plan":
		if c.Routing.TotalRoutes < 0 {
			problems = append(problems, "routing.total_routes must be >= 0")
		}
		if c.Routing.NextDays < 1 {
			problems = append(problems, "routing.next_days must be >= 1")
		}
		if c.Routing.MaxResolvePasses < 0 {
			problems = append(problems, "routing.max_resolve_passes must be >= 0")
		}
	case "sync":
		if c.FeatureServer.LeadsURL == "" {
			problems = append(problems, "featureserver.leads_url is required")
		}
		if c.FeatureServer.PageSize < 1 {
			problems = append(problems, "featureserver.page_size must be >= 1")
		}
	case "publish":
		if c.FeatureServer.RoutedURL == "" || c.FeatureServer.UnroutedURL == "" || c.FeatureServer.RoutesURL == "" {
			problems = append(problems, "featureserver.routed_url, unrouted_url and routes_url are required")
		}
		if c.FeatureServer.RetryAttempts < 1 {
			problems = append(problems, "featureserver.retry_attempts must be >= 1")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("routing.visits_per_route", 30)
	v.SetDefault("routing.total_routes", 20)
	v.SetDefault("routing.start_hour", 8)
	v.SetDefault("routing.start_minute", 0)
	v.SetDefault("routing.next_days", 1)
	v.SetDefault("routing.cluster_seed", 0)
	v.SetDefault("routing.late_tolerance_minutes", 10)
	v.SetDefault("routing.max_resolve_passes", 2)
	v.SetDefault("routing.workday_hours", 10)
	v.SetDefault("routing.timezone", "America/Sao_Paulo")
	v.SetDefault("routing.holidays_file", "")
	v.SetDefault("featureserver.leads_url", "")
	v.SetDefault("featureserver.routed_url", "")
	v.SetDefault("featureserver.unrouted_url", "")
	v.SetDefault("featureserver.routes_url", "")
	v.SetDefault("featureserver.token", "")
	v.SetDefault("featureserver.page_size", 2000)
	v.SetDefault("featureserver.retry_attempts", 3)
	v.SetDefault("featureserver.retry_sleep_secs", 60)
	v.SetDefault("featureserver.rate_per_sec", 10)
	v.SetDefault("featureserver.where", "1=1")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "route-planner.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("batch.workers", 0)
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
