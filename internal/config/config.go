package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	AppEnv    string
	Port      string
	SentryDSN string

	DatabaseURL            string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	DBConnMaxIdleTime      time.Duration
	RunMigrationsOnStartup bool
	CleanupBatchSize       int
	CronSecret             string

	JWTSecret                      string
	AccessTokenTTL                 time.Duration
	RefreshTokenTTL                time.Duration
	ResetTokenTTL                  time.Duration
	RevokeSessionsOnPasswordChange bool
	BcryptCost                     int

	LoginRateLimitPerMinute int
	LoginRateLimitBurst     int

	// TrustedProxyHops is how many reverse proxies append to
	// X-Forwarded-For; 0 keys rate limits on the connection address.
	TrustedProxyHops int

	Mail Mail
}

type Mail struct {
	Host         string
	Port         int
	User         string
	Pass         string
	From         string
	ResetPageURL string
	Timeout      time.Duration
}

// Load reads the process environment, optionally seeded from a .env file.
// It does not validate; call Validate before wiring dependencies.
func Load(loadDotEnv bool) Config {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	mailUser := envOrDefault("MAIL_USER", "")

	return Config{
		AppEnv:    envOrDefault("APP_ENV", "development"),
		Port:      envOrDefault("PORT", "3000"),
		SentryDSN: envOrDefault("SENTRY_DSN", ""),

		DatabaseURL:            envOrDefault("DATABASE_URL", ""),
		DBMaxOpenConns:         envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:         envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:      envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime:      envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrationsOnStartup: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		CleanupBatchSize:       envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		CronSecret:             envOrDefault("CRON_SECRET", ""),

		JWTSecret:                      envOrDefault("JWT_SECRET", ""),
		AccessTokenTTL:                 envDurationOrDefault("JWT_EXPIRATION", time.Hour),
		RefreshTokenTTL:                envDaysOrDefault("REFRESH_TOKEN_EXPIRATION_DAYS", 3),
		ResetTokenTTL:                  envHoursOrDefault("RESET_TOKEN_EXPIRY_HOURS", 1),
		RevokeSessionsOnPasswordChange: EnvBoolOrDefault("REVOKE_SESSIONS_ON_PASSWORD_CHANGE", false),
		BcryptCost:                     envIntOrDefault("BCRYPT_COST", bcrypt.DefaultCost),

		LoginRateLimitPerMinute: envIntOrDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10),
		LoginRateLimitBurst:     envIntOrDefault("LOGIN_RATE_LIMIT_BURST", 5),
		TrustedProxyHops:        envIntOrDefault("TRUSTED_PROXY_HOPS", 0),

		Mail: Mail{
			Host:         envOrDefault("MAIL_HOST", ""),
			Port:         envIntOrDefault("MAIL_PORT", 587),
			User:         mailUser,
			Pass:         envOrDefault("MAIL_PASS", ""),
			From:         envOrDefault("MAIL_FROM", mailUser),
			ResetPageURL: envOrDefault("RESET_PASSWORD_URL", "http://localhost:3000/reset-password"),
			Timeout:      envDurationOrDefault("MAIL_TIMEOUT", 10*time.Second),
		},
	}
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, missing("DATABASE_URL"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, missing("JWT_SECRET"))
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		errs = append(errs, missing("MAIL_FROM"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return errors.Join(errs...)
}

// ValidateDatabase is the subset needed by commands that only touch the
// database.
func (c Config) ValidateDatabase() error {
	if c.DatabaseURL == "" {
		return missing("DATABASE_URL")
	}
	return nil
}

func missing(name string) error {
	return fmt.Errorf("missing required env: %s", name)
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// envDurationOrDefault accepts Go durations ("15m", "1h") and bare seconds.
func envDurationOrDefault(name string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
