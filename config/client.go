package config

import (
	"fmt"
	"time"
)

// ClientConfig configures the orderwatch engine
type ClientConfig struct {
	APIURL       string        `env:"ORDERS_API_URL" envDefault:"http://localhost:8080/api/v1"`
	Token        string        `env:"ORDERS_API_TOKEN"`
	ViewerID     string        `env:"ORDERS_VIEWER_ID,notEmpty"`
	Scope        string        `env:"ORDERS_SCOPE"`
	PollInterval time.Duration `env:"ORDERS_POLL_INTERVAL" envDefault:"30s"`
	ListTimeout  time.Duration `env:"ORDERS_LIST_TIMEOUT" envDefault:"15s"`
	FetchTimeout time.Duration `env:"ORDERS_FETCH_TIMEOUT" envDefault:"10s"`
	MarkerDB     string        `env:"ORDERS_MARKER_DB" envDefault:"orderwatch.db"`
	FeedEnabled  bool          `env:"ORDERS_FEED_ENABLED" envDefault:"true"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadClient reads the engine configuration from the environment and .env files
func LoadClient() (*ClientConfig, error) {
	LoadDotEnv()

	cfg := &ClientConfig{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the scope and the timing values
func (c *ClientConfig) Validate() error {
	switch c.Scope {
	case "", "buyer", "seller", "all":
	default:
		return fmt.Errorf("ORDERS_SCOPE must be buyer, seller or all, got %q", c.Scope)
	}
	if c.PollInterval <= 0 || c.ListTimeout <= 0 || c.FetchTimeout <= 0 {
		return fmt.Errorf("poll interval and timeouts must be positive")
	}
	return nil
}
