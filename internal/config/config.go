package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string `yaml:"port"`
	DatabaseURL   string `yaml:"database_url"`
	RedisURL      string `yaml:"redis_url"`
	MigrationsDir string `yaml:"migrations_dir"`
	SiteURL       string `yaml:"site_url"`

	// TrustProxyHeaders lets X-Forwarded-For/X-Real-IP set the client IP
	// used by the public rate limiter.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// AdminJWTSecret verifies HS256 tokens issued by the auth provider.
	AdminJWTSecret string `yaml:"admin_jwt_secret"`

	Log       LogConfig       `yaml:"log"`
	Email     EmailConfig     `yaml:"email"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type EmailConfig struct {
	Provider      string `yaml:"provider"`
	From          string `yaml:"from"`
	ReplyTo       string `yaml:"reply_to"`
	ResendAPIKey  string `yaml:"resend_api_key"`
	ResendBaseURL string `yaml:"resend_base_url"`

	SMTPAddr     string `yaml:"smtp_addr"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	DKIMKeyFile  string `yaml:"dkim_key_file"`
	DKIMDomain   string `yaml:"dkim_domain"`
	DKIMSelector string `yaml:"dkim_selector"`
}

type DispatchConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	SendRate       float64       `yaml:"send_rate"` // sends per second, 0 = unlimited
	SendBurst      int           `yaml:"send_burst"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// RateLimitConfig limits the public subscribe/unsubscribe endpoints per client IP.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Port:          "8080",
		MigrationsDir: "migrations",
		SiteURL:       "http://localhost:3000",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Email: EmailConfig{
			Provider:     ProviderResend,
			From:         "The Canadian Turkish Islamic Trust <duyuru@papemosque.ca>",
			ReplyTo:      "duyuru@papecami.com",
			DKIMSelector: "default",
		},
		Dispatch: DispatchConfig{
			MaxConcurrency: 10,
			SendRate:       10,
			SendBurst:      10,
			MaxRetries:     2,
			RetryInterval:  500 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 20,
			Cooldown:         60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
		},
	}
}

// Load reads configuration from an optional YAML file, then a .env file if
// present, then environment variables. Later sources override earlier ones.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.MigrationsDir = getEnv("MIGRATIONS_DIR", c.MigrationsDir)
	c.SiteURL = getEnv("SITE_URL", c.SiteURL)
	c.AdminJWTSecret = getEnv("ADMIN_JWT_SECRET", c.AdminJWTSecret)
	c.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", c.TrustProxyHeaders)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Email.Provider = getEnv("EMAIL_PROVIDER", c.Email.Provider)
	c.Email.From = getEnv("EMAIL_FROM", c.Email.From)
	c.Email.ReplyTo = getEnv("EMAIL_REPLY_TO", c.Email.ReplyTo)
	c.Email.ResendAPIKey = getEnv("RESEND_API_KEY", c.Email.ResendAPIKey)
	c.Email.ResendBaseURL = getEnv("RESEND_BASE_URL", c.Email.ResendBaseURL)
	c.Email.SMTPAddr = getEnv("SMTP_ADDR", c.Email.SMTPAddr)
	c.Email.SMTPUsername = getEnv("SMTP_USERNAME", c.Email.SMTPUsername)
	c.Email.SMTPPassword = getEnv("SMTP_PASSWORD", c.Email.SMTPPassword)
	c.Email.DKIMKeyFile = getEnv("DKIM_KEY_FILE", c.Email.DKIMKeyFile)
	c.Email.DKIMDomain = getEnv("DKIM_DOMAIN", c.Email.DKIMDomain)
	c.Email.DKIMSelector = getEnv("DKIM_SELECTOR", c.Email.DKIMSelector)

	c.Dispatch.MaxConcurrency = getEnvInt("DISPATCH_MAX_CONCURRENCY", c.Dispatch.MaxConcurrency)
	c.Dispatch.SendRate = getEnvFloat("DISPATCH_SEND_RATE", c.Dispatch.SendRate)
	c.Dispatch.SendBurst = getEnvInt("DISPATCH_SEND_BURST", c.Dispatch.SendBurst)
	c.Dispatch.MaxRetries = getEnvInt("DISPATCH_MAX_RETRIES", c.Dispatch.MaxRetries)
	c.Dispatch.RetryInterval = getEnvDuration("DISPATCH_RETRY_INTERVAL", c.Dispatch.RetryInterval)

	c.Breaker.FailureThreshold = getEnvInt("BREAKER_FAILURE_THRESHOLD", c.Breaker.FailureThreshold)
	c.Breaker.Cooldown = getEnvDuration("BREAKER_COOLDOWN", c.Breaker.Cooldown)

	c.RateLimit.Requests = getEnvInt("PUBLIC_RATE_LIMIT", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvDuration("PUBLIC_RATE_WINDOW", c.RateLimit.Window)
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required")
	}

	switch c.Email.Provider {
	case ProviderResend:
		if c.Email.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required for the resend provider")
		}
	case ProviderSMTP:
		if c.Email.SMTPAddr == "" {
			return fmt.Errorf("SMTP_ADDR is required for the smtp provider")
		}
		if c.Email.DKIMKeyFile != "" && c.Email.DKIMDomain == "" {
			return fmt.Errorf("DKIM_DOMAIN is required when DKIM_KEY_FILE is set")
		}
	default:
		return fmt.Errorf("unknown email provider %q", c.Email.Provider)
	}

	if c.Dispatch.MaxConcurrency <= 0 {
		return fmt.Errorf("dispatch max_concurrency must be positive")
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch max_retries must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
