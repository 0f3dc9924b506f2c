package sqlstore

import "github.com/getpup/pupstream/es"

// Config contains the table layout and logger of a SQL store.
// Configuration is immutable after construction.
type Config struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// EventsTable is the name of the events table
	EventsTable string

	// CheckpointsTable is the name of the subscription checkpoints table
	CheckpointsTable string

	// AggregateHeadsTable is the name of the aggregate version tracking table
	AggregateHeadsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		EventsTable:         "events",
		CheckpointsTable:    "subscription_checkpoints",
		AggregateHeadsTable: "aggregate_heads",
	}
}

// Option is a functional option for configuring a Store.
type Option func(*Config)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithEventsTable sets a custom events table name.
func WithEventsTable(tableName string) Option {
	return func(c *Config) {
		c.EventsTable = tableName
	}
}

// WithCheckpointsTable sets a custom checkpoints table name.
func WithCheckpointsTable(tableName string) Option {
	return func(c *Config) {
		c.CheckpointsTable = tableName
	}
}

// WithAggregateHeadsTable sets a custom aggregate heads table name.
func WithAggregateHeadsTable(tableName string) Option {
	return func(c *Config) {
		c.AggregateHeadsTable = tableName
	}
}

// NewConfig starts from DefaultConfig and applies opts.
func NewConfig(opts ...Option) Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}
