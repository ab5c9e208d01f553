package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/imrishuroy/go-sqs-order-worker/internal/orders"
	"github.com/imrishuroy/go-sqs-order-worker/internal/secrets"
	"github.com/imrishuroy/go-sqs-order-worker/internal/validation"
)

// DatabaseConfig is the environment half of the database connection. The password comes from
// the secret named by SecretName.
type DatabaseConfig struct {
	Host       string `envconfig:"DB_HOST" required:"true" validate:"required,hostname_rfc1123|ip"`
	Port       int    `envconfig:"DB_PORT" required:"true" validate:"min=1,max=65535"`
	Name       string `envconfig:"DB_NAME" required:"true" validate:"required"`
	User       string `envconfig:"DB_USER" required:"true" validate:"required"`
	SecretName string `envconfig:"DB_SECRET_NAME" required:"true" validate:"required"`
	TableName  string `envconfig:"TABLE_NAME" required:"true" validate:"required,pgident"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"ENV" default:"production"`
}

// Config holds everything the long-running worker reads from its environment.
type Config struct {
	DatabaseConfig

	QueueURL    string        `envconfig:"QUEUE_URL" required:"true" validate:"required,url"`
	QueueWait   int           `envconfig:"QUEUE_WAIT_SECONDS" default:"20" validate:"min=1,max=20"`
	Backoff     time.Duration `envconfig:"BACKOFF" default:"5s"`
	HealthAddr  string        `envconfig:"HEALTH_ADDR" default:":80" validate:"required"`
	MetricsAddr string        `envconfig:"METRICS_ADDR"`
	// CloudWatch namespace for message outcome metrics; empty disables publishing.
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE"`
}

// ErrInvalid is returned when a variable is present but has an unusable value.
var ErrInvalid = errors.New("invalid configuration")

// Load reads the full worker configuration. Every required variable must be set.
func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := validation.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, validation.Describe(err))
	}
	return &cfg, nil
}

// LoadDatabase reads only the database settings, for entrypoints that do not poll the queue.
func LoadDatabase() (*DatabaseConfig, error) {
	loadDotEnv()

	var cfg DatabaseConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := validation.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, validation.Describe(err))
	}
	return &cfg, nil
}

// ConnConfig merges the environment settings with the resolved credential.
func (c DatabaseConfig) ConnConfig(cred secrets.Credential) orders.ConnConfig {
	return orders.ConnConfig{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Name,
		User:     c.User,
		Password: cred.Password,
	}
}

// loadDotEnv reads an optional .env when ENV=development is already set in the process
// environment. It never overrides variables that are set.
func loadDotEnv() {
	if os.Getenv("ENV") != "development" {
		return
	}
	_ = godotenv.Load()
}
