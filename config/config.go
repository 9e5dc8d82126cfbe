package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinSessionSecretLength is the minimum length accepted for SESSION_SECRET.
const MinSessionSecretLength = 32

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Port     int    `env:"PORT" envDefault:"8080"`
	Domain   string `env:"DOMAIN" envDefault:"http://localhost:8080"`
	SiteName string `env:"SITE_NAME" envDefault:"Axis Cyber Technologies"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver             string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL          string `env:"DATABASE_URL" envDefault:"./data/axiscyber.db"`
	AnalyticsDatabaseURL string `env:"ANALYTICS_DATABASE_URL"`

	SessionSecret string `env:"SESSION_SECRET,required"`
	CookieSecure  bool   `env:"COOKIE_SECURE" envDefault:"false"`

	UploadsDir string        `env:"UPLOADS_DIR" envDefault:"./uploads"`
	CacheDir   string        `env:"CACHE_DIR" envDefault:"./cache"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	RedisURL   string        `env:"REDIS_URL"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"no-reply@axiscyber.tech"`
	NotifyEmail  string `env:"NOTIFY_EMAIL"`

	BackofficeEmails []string `env:"BACKOFFICE_EMAILS" envSeparator:","`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	GeoIPDBPath       string `env:"GEOIP_DB_PATH"`
	FormRatePerMinute int    `env:"FORM_RATE_PER_MINUTE" envDefault:"10"`

	// AnalyticsRetentionDays bounds how long raw analytics events are kept.
	AnalyticsRetentionDays int `env:"ANALYTICS_RETENTION_DAYS" envDefault:"395"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes long, got %d", MinSessionSecretLength, len(c.SessionSecret))
	}
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is empty")
	}
	if c.FormRatePerMinute <= 0 {
		return fmt.Errorf("FORM_RATE_PER_MINUTE must be positive, got %d", c.FormRatePerMinute)
	}
	if c.AnalyticsRetentionDays < 1 {
		return fmt.Errorf("ANALYTICS_RETENTION_DAYS must be positive, got %d", c.AnalyticsRetentionDays)
	}
	c.Domain = strings.TrimSuffix(c.Domain, "/")
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// IsBackofficeEmail reports whether email is allowed into the backoffice.
func (c *Config) IsBackofficeEmail(email string) bool {
	for _, e := range c.BackofficeEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}
