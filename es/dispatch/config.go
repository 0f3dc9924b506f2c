package dispatch

import (
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
)

const (
	// DefaultMaxPendingItems is the default admission bound.
	DefaultMaxPendingItems = 1024
)

// Config configures an Engine.
// Configuration is immutable after construction.
type Config struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// MaxConcurrentPartitions is the number of workers, and therefore the
	// maximum number of partitions drained at the same time.
	MaxConcurrentPartitions int

	// MaxPendingItems bounds the items admitted by Submit but not yet handled.
	// Submit blocks while the bound is reached.
	MaxPendingItems int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentPartitions: runtime.GOMAXPROCS(0),
		MaxPendingItems:         DefaultMaxPendingItems,
		Logger:                  nil, // No logging by default
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*Config)

// WithLogger sets a logger for the engine.
func WithLogger(logger es.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMaxConcurrentPartitions sets the number of workers.
func WithMaxConcurrentPartitions(n int) Option {
	return func(c *Config) {
		c.MaxConcurrentPartitions = n
	}
}

// WithMaxPendingItems sets the admission bound.
func WithMaxPendingItems(n int) Option {
	return func(c *Config) {
		c.MaxPendingItems = n
	}
}

// NewConfig creates a new engine configuration with functional options.
// It starts with the default configuration and applies the given options.
func NewConfig(opts ...Option) Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Validate ensures the configuration can drive an engine.
func (c Config) Validate() error {
	if c.MaxConcurrentPartitions <= 0 {
		return errors.NotValidf("MaxConcurrentPartitions %d", c.MaxConcurrentPartitions)
	}
	if c.MaxPendingItems <= 0 {
		return errors.NotValidf("MaxPendingItems %d", c.MaxPendingItems)
	}
	return nil
}

// configEnv holds the raw environment values for Config.
type configEnv struct {
	MaxConcurrentPartitions int `env:"PUPSTREAM_MAX_CONCURRENT_PARTITIONS"`
	MaxPendingItems         int `env:"PUPSTREAM_MAX_PENDING_ITEMS"`
}

// LoadConfigFromEnv builds a configuration from the defaults, the
// PUPSTREAM_MAX_CONCURRENT_PARTITIONS and PUPSTREAM_MAX_PENDING_ITEMS
// environment variables, then the given options, in that order.
func LoadConfigFromEnv(opts ...Option) (Config, error) {
	config := DefaultConfig()

	raw := configEnv{
		MaxConcurrentPartitions: config.MaxConcurrentPartitions,
		MaxPendingItems:         config.MaxPendingItems,
	}
	if err := env.Parse(&raw); err != nil {
		return Config{}, errors.Annotate(err, "parsing dispatch environment")
	}
	config.MaxConcurrentPartitions = raw.MaxConcurrentPartitions
	config.MaxPendingItems = raw.MaxPendingItems

	for _, opt := range opts {
		opt(&config)
	}
	return config, errors.Trace(config.Validate())
}
