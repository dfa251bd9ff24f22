package config

import "time"

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Log       LogConfig
	Redis     RedisConfig
	SMTP      SMTPConfig
	Reminders ReminderConfig
	Ratings   RatingConfig
	Outbox    OutboxConfig
	Bids      BidConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port   string `env:"PORT"    env-default:"3000"`
	AppEnv string `env:"APP_ENV" env-default:"production"`
}

func (s ServerConfig) Dev() bool { return s.AppEnv == "dev" }

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN string `env:"DATABASE_URL" env-required:"true"`
}

// AuthConfig holds JWT verification settings. Tokens are issued elsewhere,
// except for the dev-only token endpoint.
type AuthConfig struct {
	JWTSecret      string        `env:"JWT_SECRET"       env-required:"true"`
	DevTokenSecret string        `env:"DEV_TOKEN_SECRET"`
	DevTokenTTL    time.Duration `env:"DEV_TOKEN_TTL"    env-default:"24h"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

// RedisConfig enables the email queue and cross-instance realtime fan-out.
// An empty Addr turns both off.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

// SMTPConfig holds outbound mail settings. An empty Host logs emails instead.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT"     env-default:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"     env-default:"no-reply@legalbid.local"`
}

// ReminderConfig drives the reminder sweep and its windows.
type ReminderConfig struct {
	SweepInterval time.Duration `env:"REMINDER_SWEEP_INTERVAL" env-default:"1h"`
	Window24hMin  time.Duration `env:"REMINDER_24H_MIN"        env-default:"22h"`
	Window24hMax  time.Duration `env:"REMINDER_24H_MAX"        env-default:"26h"`
	Window1hMin   time.Duration `env:"REMINDER_1H_MIN"         env-default:"30m"`
	Window1hMax   time.Duration `env:"REMINDER_1H_MAX"         env-default:"2h"`
	DeadlineMin   time.Duration `env:"REMINDER_DEADLINE_MIN"   env-default:"22h"`
	DeadlineMax   time.Duration `env:"REMINDER_DEADLINE_MAX"   env-default:"26h"`
}

// RatingConfig drives re-prompting of dismissed ratings.
type RatingConfig struct {
	ReminderInterval time.Duration `env:"RATING_REMINDER_INTERVAL" env-default:"24h"`
	RepromptAfter    time.Duration `env:"RATING_REPROMPT_AFTER"    env-default:"168h"`
}

// OutboxConfig drives email delivery and retries.
type OutboxConfig struct {
	RelayInterval   time.Duration `env:"OUTBOX_RELAY_INTERVAL"   env-default:"5m"`
	MaxAttempts     int           `env:"OUTBOX_MAX_ATTEMPTS"     env-default:"5"`
	DeliveryTimeout time.Duration `env:"OUTBOX_DELIVERY_TIMEOUT" env-default:"10s"`
}

// BidConfig holds bid acceptance policy.
type BidConfig struct {
	AutoRejectLosing bool `env:"AUTO_REJECT_LOSING_BIDS" env-default:"false"`
}
