package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/legal")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Reminders.SweepInterval)
	assert.Equal(t, 22*time.Hour, cfg.Reminders.Window24hMin)
	assert.Equal(t, 26*time.Hour, cfg.Reminders.Window24hMax)
	assert.Equal(t, 30*time.Minute, cfg.Reminders.Window1hMin)
	assert.Equal(t, 2*time.Hour, cfg.Reminders.Window1hMax)
	assert.Equal(t, 168*time.Hour, cfg.Ratings.RepromptAfter)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.False(t, cfg.Bids.AutoRejectLosing)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_MissingDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	_, err := Load()
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: "postgres://localhost/legal"},
		Auth:     AuthConfig{JWTSecret: "0123456789abcdef0123"},
		Reminders: ReminderConfig{
			SweepInterval: time.Hour,
			Window24hMin:  22 * time.Hour, Window24hMax: 26 * time.Hour,
			Window1hMin: 30 * time.Minute, Window1hMax: 2 * time.Hour,
			DeadlineMin: 22 * time.Hour, DeadlineMax: 26 * time.Hour,
		},
		Ratings: RatingConfig{ReminderInterval: 24 * time.Hour, RepromptAfter: 168 * time.Hour},
		Outbox:  OutboxConfig{RelayInterval: time.Minute, MaxAttempts: 3, DeliveryTimeout: time.Second},
	}
}

func TestValidate_WindowNarrowerThanSweep(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	// 1h window is 1.5h wide; a 2h tick could jump over it
	cfg.Reminders.SweepInterval = 2 * time.Hour
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window 1h")
}

func TestValidate_InvertedWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Reminders.Window24hMin = 27 * time.Hour
	assert.Error(t, cfg.Validate())
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"
	assert.Error(t, cfg.Validate())
}
