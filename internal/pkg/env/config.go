package env

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the typed runtime configuration of the service.
type Config struct {
	AppEnv  string `validate:"oneof=dev test prod"`
	AppHost string `validate:"required"`
	AppPort string `validate:"required,numeric"`
	AppURL  string `validate:"required,url"`

	DBHost        string `validate:"required"`
	DBPort        string `validate:"required,numeric"`
	DBUser        string `validate:"required"`
	DBPassword    string
	DBName        string `validate:"required"`
	DBAutoMigrate bool

	CacheHost     string `validate:"required"`
	CachePort     int    `validate:"required,min=1,max=65535"`
	CachePassword string

	StripeSecretKey        string
	StripeWebhookSecret    string        `validate:"required"`
	StripeWebhookTolerance time.Duration `validate:"min=1s"`

	AdminAPIKey    string `validate:"required,min=16"`
	InternalAPIKey string `validate:"required,min=16"`

	SMTPHost     string
	SMTPPort     string `validate:"omitempty,numeric"`
	SMTPUsername string
	SMTPPassword string
	MailFrom     string `validate:"required,email"`

	QueueWorkers       int           `validate:"min=1,max=64"`
	DedupeRetention    time.Duration `validate:"min=24h"`
	RedispatchInterval time.Duration `validate:"min=1s"`
	RedispatchAfter    time.Duration `validate:"min=1s"`
	PruneInterval      time.Duration `validate:"min=1m"`
}

// LoadConfig reads the configuration from the loaded .env map and the process
// environment and validates it.
func LoadConfig() (Config, error) {
	cfg := Config{
		AppEnv:  GetEnv("APP_ENV", "prod"),
		AppHost: GetEnv("APP_HOST", "localhost"),
		AppPort: GetEnv("APP_PORT", "4000"),
		AppURL:  GetEnv("APP_URL", "http://localhost:3000"),

		DBHost:     GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:     GetEnv("DB_PORT", "3306"),
		DBUser:     GetEnv("DB_USER", "nutrixpert"),
		DBPassword: GetEnv("DB_PASSWORD", ""),
		DBName:     GetEnv("DB_NAME", "nutrixpert"),

		CacheHost:     GetEnv("CACHE_HOST", "localhost"),
		CachePassword: GetEnv("CACHE_PASSWORD", ""),

		StripeSecretKey:     GetEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: GetEnv("STRIPE_WEBHOOK_SECRET", ""),

		AdminAPIKey:    GetEnv("ADMIN_API_KEY", ""),
		InternalAPIKey: GetEnv("INTERNAL_API_KEY", ""),

		SMTPHost:     GetEnv("SMTP_HOST", ""),
		SMTPPort:     GetEnv("SMTP_PORT", "587"),
		SMTPUsername: GetEnv("SMTP_USERNAME", ""),
		SMTPPassword: GetEnv("SMTP_PASSWORD", ""),
		MailFrom:     GetEnv("MAIL_FROM", "noreply@nutriexpertpro.com"),
	}

	var err error
	if cfg.DBAutoMigrate, err = parseBool("DB_AUTO_MIGRATE", "false"); err != nil {
		return cfg, err
	}
	if cfg.CachePort, err = parseInt("CACHE_PORT", "6379"); err != nil {
		return cfg, err
	}
	if cfg.QueueWorkers, err = parseInt("QUEUE_WORKERS", "3"); err != nil {
		return cfg, err
	}
	if cfg.StripeWebhookTolerance, err = parseDuration("STRIPE_WEBHOOK_TOLERANCE", "5m"); err != nil {
		return cfg, err
	}
	if cfg.DedupeRetention, err = parseDuration("BILLING_DEDUPE_RETENTION", "720h"); err != nil {
		return cfg, err
	}
	if cfg.RedispatchInterval, err = parseDuration("NOTIFY_REDISPATCH_INTERVAL", "5m"); err != nil {
		return cfg, err
	}
	if cfg.RedispatchAfter, err = parseDuration("NOTIFY_REDISPATCH_AFTER", "10m"); err != nil {
		return cfg, err
	}
	if cfg.PruneInterval, err = parseDuration("BILLING_PRUNE_INTERVAL", "6h"); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ListenAddr is the address the HTTP server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.AppHost, c.AppPort)
}

func parseInt(key, def string) (int, error) {
	v, err := strconv.Atoi(GetEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseBool(key, def string) (bool, error) {
	v, err := strconv.ParseBool(GetEnv(key, def))
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	v, err := time.ParseDuration(GetEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
