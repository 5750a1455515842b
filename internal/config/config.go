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
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PlacesConfig holds the Places API credentials and call pacing.
type PlacesConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Language  string  `yaml:"language" mapstructure:"language"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// BudgetConfig holds the monthly cap and per-call pricing (USD).
type BudgetConfig struct {
	MonthlyCap float64 `yaml:"monthly_cap" mapstructure:"monthly_cap"`
	Search     float64 `yaml:"search" mapstructure:"search"`
	Details    float64 `yaml:"details" mapstructure:"details"`
	Photo      float64 `yaml:"photo" mapstructure:"photo"`
	Default    float64 `yaml:"default" mapstructure:"default"`
}

// SchedulerConfig configures section seeding and selection.
type SchedulerConfig struct {
	GazetteerPath  string `yaml:"gazetteer_path" mapstructure:"gazetteer_path"`
	SectionsPerRun int    `yaml:"sections_per_run" mapstructure:"sections_per_run"`
}

// CrawlConfig configures the discovery phase.
type CrawlConfig struct {
	Queries []string `yaml:"queries" mapstructure:"queries"`
	RadiusM int      `yaml:"radius_m" mapstructure:"radius_m"`
}

// EnrichConfig configures the detail-refresh phase.
type EnrichConfig struct {
	StaleAfterDays int `yaml:"stale_after_days" mapstructure:"stale_after_days"`
	BatchLimit     int `yaml:"batch_limit" mapstructure:"batch_limit"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	PhotoMaxPx     int `yaml:"photo_max_px" mapstructure:"photo_max_px"`
}

// ExportConfig configures the CSV export.
type ExportConfig struct {
	Output          string `yaml:"output" mapstructure:"output"`
	WebsiteFallback string `yaml:"website_fallback" mapstructure:"website_fallback"`
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
	v.SetEnvPrefix("LISTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "listings.db")
	v.SetDefault("places.key", "")
	v.SetDefault("places.base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.language", "es")
	v.SetDefault("places.rate_limit", 10)
	v.SetDefault("budget.monthly_cap", 200)
	v.SetDefault("budget.search", 0.032)
	v.SetDefault("budget.details", 0.017)
	v.SetDefault("budget.photo", 0.007)
	v.SetDefault("budget.default", 1)
	v.SetDefault("scheduler.gazetteer_path", "sections.json")
	v.SetDefault("scheduler.sections_per_run", 10)
	v.SetDefault("crawl.queries", []string{"empresas cerca de %s"})
	v.SetDefault("crawl.radius_m", 50000)
	v.SetDefault("enrich.stale_after_days", 30)
	v.SetDefault("enrich.batch_limit", 200)
	v.SetDefault("enrich.concurrency", 1)
	v.SetDefault("enrich.photo_max_px", 1600)
	v.SetDefault("export.output", "exported_data.csv")
	v.SetDefault("export.website_fallback", "https://listings.invalid/no-web")
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

// ValidateAPI checks the settings required for commands that call the
// Places API. Store-only commands (export, costs, migrate) skip this.
func (c *Config) ValidateAPI() error {
	if c.Places.Key == "" {
		return eris.New("config: places.key is required (LISTINGS_PLACES_KEY)")
	}
	if c.Budget.MonthlyCap <= 0 {
		return eris.New("config: budget.monthly_cap must be positive")
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
