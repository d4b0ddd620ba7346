package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-engine/generic"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "loyalty.db", cfg.DBPath)
	assert.Equal(t, generic.MonthKeyYearMonth, cfg.MonthKeyMode())
	assert.Equal(t, 8, cfg.ReportWorkers)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.True(t, cfg.IsDev())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOYALTY_PORT", "9090")
	t.Setenv("LOYALTY_MONTH_KEY", "calendar_month")
	t.Setenv("LOYALTY_REPORT_WORKERS", "2")
	t.Setenv("LOYALTY_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOYALTY_SCHEDULER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, generic.MonthKeyCalendarMonth, cfg.MonthKeyMode())
	assert.Equal(t, 2, cfg.ReportWorkers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.False(t, cfg.SchedulerEnabled)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LOYALTY_MONTH_KEY":      "fortnight",
		"LOYALTY_REPORT_WORKERS": "0",
		"LOYALTY_TIMEZONE":       "Mars/Olympus",
		"LOYALTY_PORT":           "not-a-port",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
