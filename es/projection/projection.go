// Package projection binds read-model projections to a bus.
package projection

import (
	"context"
	"hash/fnv"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/bus"
)

// Projection builds a read model from events.
type Projection interface {
	// Name identifies the projection in errors and logs.
	Name() string

	// Handle applies one event. Events of one stream arrive in version
	// order. An error stops delivery.
	Handle(ctx context.Context, event es.PersistedEvent) error
}

// ScopedProjection only receives events of the listed aggregate types.
// An empty list means all events.
type ScopedProjection interface {
	Projection
	AggregateTypes() []string
}

// Subscriber is the part of a bus projections are registered on.
type Subscriber interface {
	SubscribeAll(handler bus.Handler) error
}

// Register subscribes each projection to sub, in order. Events of one type
// are handed to the projections in the order they were registered.
func Register(sub Subscriber, projections ...Projection) error {
	for i, p := range projections {
		if p == nil {
			return errors.NotValidf("nil projection at index %d", i)
		}
		if err := sub.SubscribeAll(handler(p)); err != nil {
			return errors.Annotatef(err, "registering projection %q", p.Name())
		}
	}
	return nil
}

func handler(p Projection) bus.Handler {
	name := p.Name()
	filter := aggregateTypeFilter(p)
	return func(ctx context.Context, event es.PersistedEvent) error {
		if filter != nil && !filter[event.AggregateType] {
			return nil
		}
		if err := p.Handle(ctx, event); err != nil {
			return errors.Annotatef(err, "projection %q", name)
		}
		return nil
	}
}

// aggregateTypeFilter returns nil if p is not scoped.
func aggregateTypeFilter(p Projection) map[string]bool {
	scoped, ok := p.(ScopedProjection)
	if !ok {
		return nil
	}
	types := scoped.AggregateTypes()
	if len(types) == 0 {
		return nil
	}
	filter := make(map[string]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	return filter
}

// PartitionStrategy assigns streams to one of several subscription
// instances.
type PartitionStrategy interface {
	// ShouldProcess reports whether the instance partitionKey of
	// totalPartitions owns the aggregate.
	ShouldProcess(aggregateID string, partitionKey int, totalPartitions int) bool
}

// HashPartitionStrategy assigns aggregates by FNV-1a hash of their id, so a
// stream always lands on the same instance and its order is preserved.
type HashPartitionStrategy struct{}

// ShouldProcess implements PartitionStrategy.
func (HashPartitionStrategy) ShouldProcess(aggregateID string, partitionKey int, totalPartitions int) bool {
	if totalPartitions <= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(aggregateID))
	return int(h.Sum32()%uint32(totalPartitions)) == partitionKey
}
