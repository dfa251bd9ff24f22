package config

import (
	"fmt"
	"time"
)

// Validate performs business-rule validation on the loaded configuration.
// Load calls it automatically.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters (got %d)", len(c.Auth.JWTSecret))
	}
	if err := c.Reminders.validate(); err != nil {
		return fmt.Errorf("reminders: %w", err)
	}
	if c.Ratings.ReminderInterval <= 0 {
		return fmt.Errorf("ratings: reminder_interval must be > 0")
	}
	if c.Ratings.RepromptAfter <= 0 {
		return fmt.Errorf("ratings: reprompt_after must be > 0")
	}
	if c.Outbox.MaxAttempts < 1 {
		return fmt.Errorf("outbox: max_attempts must be >= 1 (got %d)", c.Outbox.MaxAttempts)
	}
	if c.Outbox.RelayInterval <= 0 || c.Outbox.DeliveryTimeout <= 0 {
		return fmt.Errorf("outbox: relay_interval and delivery_timeout must be > 0")
	}
	return nil
}

// A sweep only sees an item once per tick, so a window narrower than the tick
// period can be skipped over entirely.
func (r *ReminderConfig) validate() error {
	if r.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be > 0")
	}
	windows := []struct {
		name     string
		min, max time.Duration
	}{
		{"24h", r.Window24hMin, r.Window24hMax},
		{"1h", r.Window1hMin, r.Window1hMax},
		{"deadline", r.DeadlineMin, r.DeadlineMax},
	}
	for _, w := range windows {
		if w.min < 0 || w.max <= w.min {
			return fmt.Errorf("window %s: max must be greater than min (got %s..%s)", w.name, w.min, w.max)
		}
		if w.max-w.min < r.SweepInterval {
			return fmt.Errorf("window %s: width %s is narrower than sweep_interval %s",
				w.name, w.max-w.min, r.SweepInterval)
		}
	}
	return nil
}
