package config

import (
	"fmt"
	"log"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the order service configuration
type Config struct {
	DatabaseDriver     string   `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL        string   `env:"DATABASE_URL"`
	Port               string   `env:"PORT" envDefault:"8080"`
	GoEnv              string   `env:"GO_ENV" envDefault:"development"`
	Auth0Domain        string   `env:"AUTH0_DOMAIN"`
	Auth0Audience      string   `env:"AUTH0_AUDIENCE"`
	AWSRegion          string   `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSS3Bucket        string   `env:"AWS_S3_BUCKET"`
	AWSAccessKeyID     string   `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string   `env:"AWS_SECRET_ACCESS_KEY"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	LogLevel           string   `env:"LOG_LEVEL" envDefault:"info"`
}

var current *Config

// Load loads the configuration from environment variables.
// It automatically determines which .env file to load based on GO_ENV.
func Load() (*Config, error) {
	LoadDotEnv()

	cfg := &Config{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	SetConfig(cfg)
	return cfg, nil
}

// LoadDotEnv loads .env.<GO_ENV>, falling back to .env. Variables already set in
// the environment win.
func LoadDotEnv() {
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" {
		goEnv = "development"
	}

	envFile := fmt.Sprintf(".env.%s", goEnv)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// In production environment variables are set directly
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}
}

// ParseEnv fills target from environment variables
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverMySQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %s", c.DatabaseDriver)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// ArchiveEnabled reports whether archived orders can be exported to S3
func (c *Config) ArchiveEnabled() bool {
	return c.AWSS3Bucket != ""
}

// GetConfig returns the configuration installed by Load or SetConfig
func GetConfig() *Config {
	return current
}

// SetConfig installs cfg as the current configuration (primarily for testing)
func SetConfig(cfg *Config) {
	current = cfg
}
