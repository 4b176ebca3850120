// Package config loads application configuration from config files, a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	SessionBackendDatabase = "database"
	SessionBackendRedis    = "redis"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env             string        `mapstructure:"APP_ENV"`
	Port            string        `mapstructure:"PORT"`
	PublicURL       string        `mapstructure:"PUBLIC_URL"`
	Debug           bool          `mapstructure:"DEBUG"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  string        `mapstructure:"ALLOWED_ORIGINS"`

	DBURI string `mapstructure:"DB_URI"`

	SessionBackend string        `mapstructure:"SESSION_BACKEND"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	CookieSecure   bool          `mapstructure:"COOKIE_SECURE"`
	BcryptCost     int           `mapstructure:"BCRYPT_COST"`

	SMTPHost      string        `mapstructure:"SMTP_HOST"`
	SMTPPort      string        `mapstructure:"SMTP_PORT"`
	Email         string        `mapstructure:"EMAIL"`
	EmailPassword string        `mapstructure:"EMAIL_PASSWORD"`
	ContactTo     string        `mapstructure:"CONTACT_TO"`
	SMTPTimeout   time.Duration `mapstructure:"SMTP_TIMEOUT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "5002")
	v.SetDefault("PUBLIC_URL", "http://localhost:5002")
	v.SetDefault("DEBUG", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("ALLOWED_ORIGINS", "*")

	v.SetDefault("DB_URI", "sqlite:///posts.db")

	v.SetDefault("SESSION_BACKEND", SessionBackendDatabase)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("BCRYPT_COST", bcrypt.DefaultCost)

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("EMAIL", "")
	v.SetDefault("EMAIL_PASSWORD", "")
	v.SetDefault("CONTACT_TO", "")
	v.SetDefault("SMTP_TIMEOUT", "10s")
}

// LoadConfig reads .env (if present), config.yml (if present) and the environment, in
// increasing order of precedence.
func LoadConfig() (*Config, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate ensures that required configuration values are present and consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.DBURI == "" {
		return errors.New("DB_URI is required")
	}

	switch c.SessionBackend {
	case SessionBackendDatabase:
	case SessionBackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_BACKEND is redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q",
			SessionBackendDatabase, SessionBackendRedis, c.SessionBackend)
	}

	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.SMTPHost != "" && (c.Email == "" || c.ContactTo == "") {
		return errors.New("EMAIL and CONTACT_TO are required when SMTP_HOST is set")
	}

	return nil
}

// IsProduction reports whether the app runs with a production profile.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// Origins splits ALLOWED_ORIGINS into a list.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
