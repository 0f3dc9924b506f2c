// Package bus delivers persisted events to subscribed handlers through a
// dispatch engine. Events of one stream reach handlers strictly in the order
// they were published; different streams are delivered concurrently.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/dispatch"
)

// ErrSubscriptionsFrozen is returned by Subscribe after the first Publish.
const ErrSubscriptionsFrozen = errors.ConstError("subscriptions are frozen once publishing starts")

const tracerName = "github.com/getpup/pupstream/es/bus"

// Handler handles one event.
type Handler func(ctx context.Context, event es.PersistedEvent) error

// Config configures a Bus.
type Config struct {
	// Engine configures the underlying dispatch engine.
	Engine dispatch.Config

	// Tracer creates a span per delivered event. Defaults to the global
	// tracer provider.
	Tracer trace.Tracer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Engine: dispatch.DefaultConfig(),
	}
}

type subscription struct {
	// eventType is empty for SubscribeAll.
	eventType string
	handler   Handler
}

// Bus fans published events out to handlers.
type Bus struct {
	engine *dispatch.Engine[es.PersistedEvent]
	tracer trace.Tracer

	mu            sync.Mutex
	subscriptions []subscription
	frozen        atomic.Bool
	// snapshot is the frozen subscription list read by deliver.
	snapshot []subscription
}

// New starts a bus. Cancelling ctx stops delivery without a fault.
func New(ctx context.Context, config Config) (*Bus, error) {
	b := &Bus{tracer: config.Tracer}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}

	engine, err := dispatch.New(ctx, b.deliver, config.Engine)
	if err != nil {
		return nil, errors.Trace(err)
	}
	b.engine = engine
	return b, nil
}

// Subscribe registers handler for events of eventType.
func (b *Bus) Subscribe(eventType string, handler Handler) error {
	if eventType == "" {
		return errors.NotValidf("empty event type")
	}
	return b.subscribe(subscription{eventType: eventType, handler: handler})
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler) error {
	return b.subscribe(subscription{handler: handler})
}

func (b *Bus) subscribe(sub subscription) error {
	if sub.handler == nil {
		return errors.NotValidf("nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen.Load() {
		return ErrSubscriptionsFrozen
	}
	b.subscriptions = append(b.subscriptions, sub)
	return nil
}

// Publish submits events in order, each under its stream key. It blocks
// while the engine is at its pending limit and returns at the first event
// that could not be submitted; earlier events stay admitted.
func (b *Bus) Publish(ctx context.Context, events ...es.PersistedEvent) error {
	if !b.frozen.Load() {
		b.freeze()
	}
	for i := range events {
		if err := b.engine.Submit(ctx, events[i].StreamKey(), events[i]); err != nil {
			return errors.Annotatef(err, "publishing event at position %d", events[i].GlobalPosition)
		}
	}
	return nil
}

func (b *Bus) freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen.Load() {
		return
	}
	b.snapshot = b.subscriptions
	b.frozen.Store(true)
}

// deliver runs the matching handlers for one event in registration order.
// The first failure aborts the event.
func (b *Bus) deliver(ctx context.Context, event es.PersistedEvent) (err error) {
	ctx, span := b.tracer.Start(ctx, "bus.deliver "+event.EventType,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.type", event.EventType),
			attribute.String("aggregate.type", event.AggregateType),
			attribute.String("aggregate.id", event.AggregateID),
			attribute.Int64("aggregate.version", event.AggregateVersion),
			attribute.Int64("global_position", event.GlobalPosition),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for _, sub := range b.snapshot {
		if sub.eventType != "" && sub.eventType != event.EventType {
			continue
		}
		if err := sub.handler(ctx, event); err != nil {
			return errors.Annotatef(err, "handling %s at position %d", event.EventType, event.GlobalPosition)
		}
	}
	return nil
}

// Complete signals that nothing more will be published. Wait returns once
// every published event was delivered.
func (b *Bus) Complete() {
	b.engine.Complete()
}

// Fault stops delivery with err.
func (b *Bus) Fault(err error) {
	b.engine.Fault(err)
}

// Wait blocks until the bus has stopped and returns its fault, if any.
func (b *Bus) Wait() error {
	return b.engine.Wait()
}

// Dead is closed once the bus has stopped.
func (b *Bus) Dead() <-chan struct{} {
	return b.engine.Dead()
}

// Stats reports the underlying engine's counters.
func (b *Bus) Stats() dispatch.Stats {
	return b.engine.Stats()
}
