package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full process configuration, loaded from the environment
// via envconfig the way the teacher loads its own Config.
type Config struct {
	// Server
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	// Persistence backend: "s3" (default, production) or "memory" (local
	// development / tests without a standing object store).
	PersistenceBackend string `envconfig:"PERSISTENCE_BACKEND" default:"s3"`

	// S3-compatible object store
	S3Bucket        string `envconfig:"S3_BUCKET" default:"sms-retry-scheduler"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSAccessKeyID  string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey    string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	S3EndpointURL   string `envconfig:"S3_ENDPOINT_URL"`
	StatePrefix     string `envconfig:"S3_STATE_PREFIX" default:"state"`
	SuccessPrefix   string `envconfig:"S3_SUCCESS_PREFIX" default:"success"`
	FailedPrefix    string `envconfig:"S3_FAILED_PREFIX" default:"failed"`

	// Redis, backing the admin façade's intake rate limiter
	RedisURL    string `envconfig:"REDIS_URL" required:"true"`
	RateRPS     int    `envconfig:"RATE_LIMIT_RPS" default:"10"`
	RateBurst   int    `envconfig:"RATE_LIMIT_BURST" default:"50"`

	// NATS, optional terminal-transition fan-out. Empty disables it.
	NATSURL string `envconfig:"NATS_URL"`

	// Admin façade auth. Empty disables auth (local development only).
	AdminKeyHash string `envconfig:"ADMIN_KEY_HASH"`

	// Observability
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// TickInterval is how often the scheduler's background loop checks the
	// retry heap for due messages.
	TickInterval time.Duration `envconfig:"TICK_INTERVAL" default:"500ms"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
