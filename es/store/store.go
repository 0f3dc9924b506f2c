// Package store defines the contracts event stores implement.
package store

import (
	"context"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
)

const (
	// ErrOptimisticConcurrency indicates the stream was not at the expected
	// version, or another writer appended concurrently.
	ErrOptimisticConcurrency = errors.ConstError("optimistic concurrency conflict")

	// ErrNoEvents indicates an attempt to append zero events.
	ErrNoEvents = errors.ConstError("no events to append")

	// ErrMixedStreams indicates a batch spanning more than one stream.
	ErrMixedStreams = errors.ConstError("events belong to different streams")
)

// EventStore appends events.
type EventStore interface {
	// Append atomically appends events to a single stream within tx. The
	// store assigns consecutive aggregate versions after the stream's current
	// version and a global position to every event.
	//
	// Returns ErrOptimisticConcurrency if the stream does not satisfy
	// expectedVersion or a concurrent append won, ErrNoEvents for an empty
	// batch and ErrMixedStreams if events span streams.
	Append(ctx context.Context, tx es.DBTX, expectedVersion es.ExpectedVersion, events []es.Event) (es.AppendResult, error)
}

// EventReader reads the global change feed.
type EventReader interface {
	// ReadEvents returns up to limit events with a global position greater
	// than fromPosition, in ascending global position order.
	ReadEvents(ctx context.Context, tx es.DBTX, fromPosition int64, limit int) ([]es.PersistedEvent, error)
}

// StreamReader reads a single stream.
type StreamReader interface {
	// ReadStream returns the events of one stream with an aggregate version
	// of at least fromVersion, in version order.
	ReadStream(ctx context.Context, tx es.DBTX, aggregateType, aggregateID string, fromVersion int64) (es.Stream, error)
}

// CheckpointStore persists how far a named subscription has delivered.
type CheckpointStore interface {
	// GetCheckpoint returns the last saved position, or 0 if none.
	GetCheckpoint(ctx context.Context, tx es.DBTX, name string) (int64, error)

	// SaveCheckpoint records position for name.
	SaveCheckpoint(ctx context.Context, tx es.DBTX, name string, position int64) error
}

// ValidateBatch checks that events is a non-empty batch for one stream.
func ValidateBatch(events []es.Event) error {
	if len(events) == 0 {
		return ErrNoEvents
	}
	first := &events[0]
	for i := range events[1:] {
		e := &events[i+1]
		if e.AggregateType != first.AggregateType || e.AggregateID != first.AggregateID {
			return errors.Annotatef(ErrMixedStreams, "event %d is for %s, batch is for %s",
				i+1, es.StreamKey(e.AggregateType, e.AggregateID),
				es.StreamKey(first.AggregateType, first.AggregateID))
		}
	}
	return nil
}
