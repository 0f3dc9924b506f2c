package subscription

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/projection"
	"github.com/getpup/pupstream/es/store"
)

// Config configures a Subscription.
type Config struct {
	// Name identifies the subscription's checkpoint.
	Name string

	// DB opens a transaction per poll. If nil, the reader is called with a
	// nil transaction, which suits the memory store.
	DB es.TxBeginner

	// Reader is the change feed.
	Reader store.EventReader

	// Checkpoints, if set, provides the starting position and records the
	// delivered position on clean shutdown.
	Checkpoints store.CheckpointStore

	// Publisher receives the events. The subscription completes it on
	// clean shutdown and faults it on failure.
	Publisher Publisher

	// Clock paces polling. Defaults to the wall clock.
	Clock clock.Clock

	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// BatchSize is the number of events read per poll.
	BatchSize int

	// PollInterval is the wait after a poll that returned no events.
	PollInterval time.Duration

	// FromPosition is the starting position when no checkpoint exists.
	FromPosition int64

	// PartitionKey and TotalPartitions select this instance's share of the
	// streams when a subscription is scaled across processes.
	PartitionKey    int
	TotalPartitions int

	// PartitionStrategy decides which streams belong to which partition.
	PartitionStrategy projection.PartitionStrategy
}

// DefaultConfig returns the default configuration. Name, Reader and
// Publisher must still be set.
func DefaultConfig() Config {
	return Config{
		Clock:             clock.WallClock,
		BatchSize:         100,
		PollInterval:      time.Second,
		TotalPartitions:   1,
		PartitionStrategy: projection.HashPartitionStrategy{},
	}
}

// Validate ensures the configuration can drive a subscription.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.NotValidf("empty Name")
	}
	if c.Reader == nil {
		return errors.NotValidf("nil Reader")
	}
	if c.Publisher == nil {
		return errors.NotValidf("nil Publisher")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.BatchSize <= 0 {
		return errors.NotValidf("BatchSize %d", c.BatchSize)
	}
	if c.PollInterval <= 0 {
		return errors.NotValidf("PollInterval %v", c.PollInterval)
	}
	if c.TotalPartitions <= 0 {
		return errors.NotValidf("TotalPartitions %d", c.TotalPartitions)
	}
	if c.PartitionKey < 0 || c.PartitionKey >= c.TotalPartitions {
		return errors.NotValidf("PartitionKey %d of %d partitions", c.PartitionKey, c.TotalPartitions)
	}
	if c.TotalPartitions > 1 && c.PartitionStrategy == nil {
		return errors.NotValidf("nil PartitionStrategy")
	}
	return nil
}
