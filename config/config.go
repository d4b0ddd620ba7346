// Package config loads service settings from LOYALTY_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/warp/loyalty-engine/generic"
)

const EnvPrefix = "LOYALTY"

type Config struct {
	Env       string `envconfig:"ENV" default:"dev"`
	Port      int    `envconfig:"PORT" default:"8080"`
	DBPath    string `envconfig:"DB_PATH" default:"loyalty.db"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Reports
	MonthKey      string `envconfig:"MONTH_KEY" default:"year_month"`
	Timezone      string `envconfig:"TIMEZONE" default:"UTC"`
	Collation     string `envconfig:"COLLATION" default:"pt-BR"`
	ReportWorkers int    `envconfig:"REPORT_WORKERS" default:"8"`

	// Scheduler runs the previous month's reports on ReportCron.
	SchedulerEnabled bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`
	ReportCron       string `envconfig:"REPORT_CRON" default:"0 3 1 * *"`

	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %s_PORT %d", EnvPrefix, c.Port)
	}
	if c.ReportWorkers <= 0 {
		return fmt.Errorf("invalid %s_REPORT_WORKERS %d", EnvPrefix, c.ReportWorkers)
	}
	switch generic.MonthKeyMode(c.MonthKey) {
	case generic.MonthKeyYearMonth, generic.MonthKeyCalendarMonth:
	default:
		return fmt.Errorf("invalid %s_MONTH_KEY %q", EnvPrefix, c.MonthKey)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid %s_TIMEZONE: %w", EnvPrefix, err)
	}
	return nil
}

func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Env, "dev")
}

// Location returns the configured zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) MonthKeyMode() generic.MonthKeyMode {
	return generic.ParseMonthKeyMode(c.MonthKey)
}
