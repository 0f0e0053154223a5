package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	CapacityAssignLater = "assign_later"
	CapacityReject      = "reject"

	defaultJWTSecret = "change-me-jwt-secret"
)

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" default:"change-me-jwt-secret"`

	// Secrets are optional at startup; endpoints that need them fail with a config error.
	PaymentKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET"`
	PaymentWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`

	CapacityPolicy string `envconfig:"CAPACITY_POLICY" default:"assign_later"`
	InternalToken  string `envconfig:"INTERNAL_TOKEN"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	RedisURL         string        `envconfig:"REDIS_URL"`
	PropertyCacheTTL time.Duration `envconfig:"PROPERTY_CACHE_TTL" default:"5m"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"pgstay.events"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	WebhookReplayInterval time.Duration `envconfig:"WEBHOOK_REPLAY_INTERVAL" default:"30s"`
	WebhookReplayBatch    int           `envconfig:"WEBHOOK_REPLAY_BATCH" default:"100"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.CapacityPolicy = strings.ToLower(strings.TrimSpace(cfg.CapacityPolicy))

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("config loaded: env=%s addr=%s capacity_policy=%s redis=%t amqp=%t tracing=%t",
		cfg.AppEnv, cfg.HTTPAddr, cfg.CapacityPolicy, cfg.RedisURL != "", cfg.AMQPURL != "", cfg.OTLPEndpoint != "")

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.CapacityPolicy != CapacityAssignLater && cfg.CapacityPolicy != CapacityReject {
		return fmt.Errorf("CAPACITY_POLICY must be one of: %s, %s", CapacityAssignLater, CapacityReject)
	}
	if cfg.PropertyCacheTTL <= 0 {
		return fmt.Errorf("PROPERTY_CACHE_TTL must be > 0")
	}
	if cfg.WebhookReplayInterval <= 0 {
		return fmt.Errorf("WEBHOOK_REPLAY_INTERVAL must be > 0")
	}
	if cfg.WebhookReplayBatch <= 0 {
		return fmt.Errorf("WEBHOOK_REPLAY_BATCH must be > 0")
	}

	if IsProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if strings.TrimSpace(cfg.PaymentKeySecret) == "" {
			return fmt.Errorf("in prod/release RAZORPAY_KEY_SECRET must be set")
		}
		if strings.TrimSpace(cfg.PaymentWebhookSecret) == "" {
			return fmt.Errorf("in prod/release RAZORPAY_WEBHOOK_SECRET must be set")
		}
		if strings.TrimSpace(cfg.InternalToken) == "" {
			return fmt.Errorf("in prod/release INTERNAL_TOKEN must be set")
		}
	}

	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}
