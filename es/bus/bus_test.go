package bus_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/bus"
	"github.com/getpup/pupstream/es/dispatch"
)

func newBus(c *qt.C, opts ...func(*bus.Config)) *bus.Bus {
	config := bus.DefaultConfig()
	config.Engine = dispatch.NewConfig(
		dispatch.WithMaxConcurrentPartitions(4),
		dispatch.WithMaxPendingItems(64),
	)
	for _, opt := range opts {
		opt(&config)
	}
	b, err := bus.New(context.Background(), config)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() {
		b.Fault(nil)
		_ = b.Wait()
	})
	return b
}

func event(aggregateID, eventType string, position, version int64) es.PersistedEvent {
	return es.PersistedEvent{
		AggregateType:    "Order",
		AggregateID:      aggregateID,
		EventType:        eventType,
		GlobalPosition:   position,
		AggregateVersion: version,
	}
}

type calls struct {
	mu  sync.Mutex
	log []string
}

func (r *calls) handler(name string) bus.Handler {
	return func(_ context.Context, e es.PersistedEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.log = append(r.log, fmt.Sprintf("%s:%s@%d", name, e.EventType, e.GlobalPosition))
		return nil
	}
}

func TestFanOutInRegistrationOrder(t *testing.T) {
	c := qt.New(t)
	b := newBus(c)
	rec := &calls{}

	c.Assert(b.Subscribe("OrderPlaced", rec.handler("first")), qt.IsNil)
	c.Assert(b.SubscribeAll(rec.handler("all")), qt.IsNil)
	c.Assert(b.Subscribe("OrderPaid", rec.handler("paid")), qt.IsNil)

	c.Assert(b.Publish(context.Background(),
		event("1", "OrderPlaced", 1, 1),
		event("1", "OrderPaid", 2, 2),
	), qt.IsNil)
	b.Complete()
	c.Assert(b.Wait(), qt.IsNil)

	c.Assert(rec.log, qt.DeepEquals, []string{
		"first:OrderPlaced@1",
		"all:OrderPlaced@1",
		"all:OrderPaid@2",
		"paid:OrderPaid@2",
	})
	c.Assert(b.Stats().HandledItems, qt.Equals, uint64(2))
}

func TestPerStreamOrder(t *testing.T) {
	c := qt.New(t)
	b := newBus(c)

	var (
		mu   sync.Mutex
		seen = map[string][]int64{}
	)
	c.Assert(b.SubscribeAll(func(_ context.Context, e es.PersistedEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen[e.StreamKey()] = append(seen[e.StreamKey()], e.AggregateVersion)
		return nil
	}), qt.IsNil)

	var position int64
	for v := int64(1); v <= 50; v++ {
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			position++
			c.Assert(b.Publish(context.Background(), event(id, "Tick", position, v)), qt.IsNil)
		}
	}
	b.Complete()
	c.Assert(b.Wait(), qt.IsNil)

	c.Assert(seen, qt.HasLen, 5)
	for key, versions := range seen {
		c.Assert(versions, qt.HasLen, 50, qt.Commentf("stream %s", key))
		for i, v := range versions {
			c.Assert(v, qt.Equals, int64(i+1), qt.Commentf("stream %s", key))
		}
	}
	c.Assert(b.Stats().ActivePartitions, qt.Equals, 0)
}

func TestSubscriptionsFreezeOnPublish(t *testing.T) {
	c := qt.New(t)
	b := newBus(c)
	rec := &calls{}

	c.Assert(b.SubscribeAll(rec.handler("all")), qt.IsNil)
	c.Assert(b.Publish(context.Background(), event("1", "OrderPlaced", 1, 1)), qt.IsNil)

	err := b.Subscribe("OrderPlaced", rec.handler("late"))
	c.Assert(err, qt.ErrorIs, bus.ErrSubscriptionsFrozen)

	b.Complete()
	c.Assert(b.Wait(), qt.IsNil)
	c.Assert(rec.log, qt.DeepEquals, []string{"all:OrderPlaced@1"})
}

func TestInvalidSubscriptions(t *testing.T) {
	c := qt.New(t)
	b := newBus(c)

	c.Assert(b.Subscribe("", func(context.Context, es.PersistedEvent) error { return nil }),
		qt.ErrorMatches, "empty event type not valid")
	c.Assert(b.SubscribeAll(nil), qt.ErrorMatches, "nil handler not valid")
}

func TestHandlerFailureFaultsBus(t *testing.T) {
	c := qt.New(t)
	b := newBus(c)
	boom := errors.New("projection broken")
	rec := &calls{}

	c.Assert(b.Subscribe("OrderPaid", func(context.Context, es.PersistedEvent) error {
		return boom
	}), qt.IsNil)
	c.Assert(b.Subscribe("OrderPaid", rec.handler("after")), qt.IsNil)

	c.Assert(b.Publish(context.Background(), event("1", "OrderPaid", 1, 1)), qt.IsNil)

	err := b.Wait()
	c.Assert(err, qt.ErrorIs, boom)
	var handlerErr *dispatch.HandlerError
	c.Assert(errors.As(err, &handlerErr), qt.IsTrue)
	c.Assert(handlerErr.Key, qt.Equals, "Order/1")

	// The failing handler aborts the event before later handlers run.
	c.Assert(rec.log, qt.HasLen, 0)

	err = b.Publish(context.Background(), event("1", "OrderPaid", 2, 2))
	c.Assert(err, qt.ErrorIs, dispatch.ErrEngineStopped)
}

func TestSpansPerDelivery(t *testing.T) {
	c := qt.New(t)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	b := newBus(c, func(config *bus.Config) {
		config.Tracer = provider.Tracer("test")
	})
	boom := errors.New("rejected")
	c.Assert(b.Subscribe("OrderPlaced", func(context.Context, es.PersistedEvent) error { return nil }), qt.IsNil)
	c.Assert(b.Subscribe("OrderCancelled", func(context.Context, es.PersistedEvent) error { return boom }), qt.IsNil)

	c.Assert(b.Publish(context.Background(), event("7", "OrderPlaced", 10, 1)), qt.IsNil)
	c.Assert(b.Publish(context.Background(), event("7", "OrderCancelled", 11, 2)), qt.IsNil)
	c.Assert(b.Wait(), qt.ErrorIs, boom)

	spans := recorder.Ended()
	c.Assert(spans, qt.HasLen, 2)

	placed := spans[0]
	c.Assert(placed.Name(), qt.Equals, "bus.deliver OrderPlaced")
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range placed.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	c.Assert(attrs["event.type"].AsString(), qt.Equals, "OrderPlaced")
	c.Assert(attrs["aggregate.type"].AsString(), qt.Equals, "Order")
	c.Assert(attrs["aggregate.id"].AsString(), qt.Equals, "7")
	c.Assert(attrs["global_position"].AsInt64(), qt.Equals, int64(10))
	c.Assert(placed.Status().Code, qt.Equals, codes.Unset)

	cancelled := spans[1]
	c.Assert(cancelled.Status().Code, qt.Equals, codes.Error)
	c.Assert(cancelled.Events(), qt.Not(qt.HasLen), 0)
}

func TestCancellationStopsCleanly(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())

	b, err := bus.New(ctx, bus.DefaultConfig())
	c.Assert(err, qt.IsNil)

	started := make(chan struct{})
	c.Assert(b.SubscribeAll(func(ctx context.Context, _ es.PersistedEvent) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}), qt.IsNil)
	c.Assert(b.Publish(context.Background(), event("1", "Tick", 1, 1)), qt.IsNil)

	<-started
	cancel()
	c.Assert(b.Wait(), qt.IsNil)
}
