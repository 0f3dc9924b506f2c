package projection

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/bus"
)

type mockProjection struct {
	name           string
	err            error
	receivedEvents []es.PersistedEvent
}

func (p *mockProjection) Name() string {
	return p.name
}

//nolint:gocritic // hugeParam: events are passed by value across the package
func (p *mockProjection) Handle(_ context.Context, event es.PersistedEvent) error {
	p.receivedEvents = append(p.receivedEvents, event)
	return p.err
}

type mockScopedProjection struct {
	mockProjection
	aggregateTypes []string
}

func (p *mockScopedProjection) AggregateTypes() []string {
	return p.aggregateTypes
}

// mockSubscriber calls handlers synchronously.
type mockSubscriber struct {
	handlers []bus.Handler
	err      error
}

func (s *mockSubscriber) SubscribeAll(h bus.Handler) error {
	if s.err != nil {
		return s.err
	}
	s.handlers = append(s.handlers, h)
	return nil
}

func (s *mockSubscriber) publish(t *testing.T, event es.PersistedEvent) error {
	t.Helper()
	for _, h := range s.handlers {
		if err := h(context.Background(), event); err != nil {
			return err
		}
	}
	return nil
}

func TestRegister_ScopedProjectionFiltersAggregateTypes(t *testing.T) {
	global := &mockProjection{name: "global"}
	scoped := &mockScopedProjection{mockProjection: mockProjection{name: "users"}, aggregateTypes: []string{"User"}}
	unscoped := &mockScopedProjection{mockProjection: mockProjection{name: "empty"}}

	sub := &mockSubscriber{}
	if err := Register(sub, global, scoped, unscoped); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, aggregateType := range []string{"User", "Order", "User"} {
		if err := sub.publish(t, es.PersistedEvent{AggregateType: aggregateType}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if got := len(global.receivedEvents); got != 3 {
		t.Errorf("global projection received %d events, want 3", got)
	}
	if got := len(scoped.receivedEvents); got != 2 {
		t.Errorf("scoped projection received %d events, want 2", got)
	}
	if got := len(unscoped.receivedEvents); got != 3 {
		t.Errorf("projection with no aggregate types received %d events, want 3", got)
	}
}

func TestRegister_AnnotatesHandlerErrors(t *testing.T) {
	boom := errors.New("read model unavailable")
	p := &mockProjection{name: "orders", err: boom}

	sub := &mockSubscriber{}
	if err := Register(sub, p); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := sub.publish(t, es.PersistedEvent{AggregateType: "Order"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if want := `projection "orders": read model unavailable`; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestRegister_Errors(t *testing.T) {
	if err := Register(&mockSubscriber{}, nil); err == nil {
		t.Error("expected error for nil projection")
	}

	frozen := errors.New("frozen")
	err := Register(&mockSubscriber{err: frozen}, &mockProjection{name: "late"})
	if !errors.Is(err, frozen) {
		t.Errorf("expected %v, got %v", frozen, err)
	}
}

func TestHashPartitionStrategy_SinglePartition(t *testing.T) {
	strategy := HashPartitionStrategy{}
	if !strategy.ShouldProcess(uuid.New().String(), 0, 1) {
		t.Error("Single partition should process all events")
	}
}

func TestHashPartitionStrategy_ExactlyOneOwner(t *testing.T) {
	strategy := HashPartitionStrategy{}
	totalPartitions := 4
	counts := make([]int, totalPartitions)

	for i := 0; i < 1000; i++ {
		aggregateID := uuid.New().String()
		owner := -1
		for partition := 0; partition < totalPartitions; partition++ {
			if strategy.ShouldProcess(aggregateID, partition, totalPartitions) {
				if owner != -1 {
					t.Fatalf("Aggregate %s owned by partitions %d and %d", aggregateID, owner, partition)
				}
				owner = partition
			}
		}
		if owner == -1 {
			t.Fatalf("Aggregate %s has no owner", aggregateID)
		}
		if !strategy.ShouldProcess(aggregateID, owner, totalPartitions) {
			t.Fatalf("Aggregate %s assignment is not deterministic", aggregateID)
		}
		counts[owner]++
	}

	// Each partition should get roughly a quarter.
	expected := 1000 / totalPartitions
	tolerance := expected / 3
	for partition, count := range counts {
		if count < expected-tolerance || count > expected+tolerance {
			t.Errorf("Partition %d has %d assignments, expected %d ± %d (%v)",
				partition, count, expected, tolerance, counts)
		}
	}
}
