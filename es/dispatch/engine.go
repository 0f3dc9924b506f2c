package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"golang.org/x/sync/semaphore"
	"gopkg.in/tomb.v2"
)

// Handler handles a single item. It is never invoked concurrently for items
// of the same partition key.
//
// The context is the engine's cancellation context. A handler that returns
// the context's error after cancellation is treated as a clean stop.
type Handler[T any] func(ctx context.Context, item T) error

// Stats is a point-in-time view of an engine.
type Stats struct {
	// ActivePartitions is the number of registered partitions.
	ActivePartitions int
	// PendingItems is the number of admitted items not yet handled.
	PendingItems int64
	// HandledItems is the number of items the handler accepted.
	HandledItems uint64
	// FailedItems is the number of items the handler failed.
	FailedItems uint64
}

// Engine delivers submitted items to a handler, in submission order per
// partition key and concurrently across keys.
type Engine[T any] struct {
	tomb tomb.Tomb

	config  Config
	handler Handler[T]

	// ctx is the cancellation source, passed on to the handler.
	ctx context.Context
	// dying is cancelled as soon as the engine starts dying.
	dying context.Context
	// closing is cancelled once Submit must stop admitting: on Complete or
	// when the engine starts dying.
	closing     context.Context
	closeIntake context.CancelFunc

	registry  *registry[T]
	admission *semaphore.Weighted
	tokens    chan *partition[T]
	drained   chan *partition[T]
	finished  chan struct{}
	workers   sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	pending atomic.Int64
	handled atomic.Uint64
	failed  atomic.Uint64
}

// New starts an engine that delivers items to handler. Cancelling ctx stops
// the engine at the next safe point without reporting a fault.
func New[T any](ctx context.Context, handler Handler[T], config Config) (*Engine[T], error) {
	if handler == nil {
		return nil, errors.NotValidf("nil handler")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	e := &Engine[T]{
		config:    config,
		handler:   handler,
		ctx:       ctx,
		registry:  newRegistry[T](),
		admission: semaphore.NewWeighted(int64(config.MaxPendingItems)),
		tokens:    make(chan *partition[T], config.MaxPendingItems),
		drained:   make(chan *partition[T], config.MaxConcurrentPartitions),
		finished:  make(chan struct{}),
	}
	e.dying = e.tomb.Context(context.Background())
	e.closing, e.closeIntake = context.WithCancel(e.dying)

	if config.Logger != nil {
		config.Logger.Info(ctx, "dispatch engine starting",
			"max_concurrent_partitions", config.MaxConcurrentPartitions,
			"max_pending_items", config.MaxPendingItems)
	}

	e.workers.Add(config.MaxConcurrentPartitions)
	for i := 0; i < config.MaxConcurrentPartitions; i++ {
		e.tomb.Go(e.work)
	}
	e.tomb.Go(func() error {
		// Workers are done once the token stream is closed and drained, or
		// the engine is dying. Only then can cleanup complete.
		e.workers.Wait()
		close(e.drained)
		return nil
	})
	e.tomb.Go(e.cleanup)
	if ctx.Done() != nil {
		e.tomb.Go(e.watchCancellation)
	}
	return e, nil
}

// Submit admits item under the partition key. It blocks while the engine
// holds MaxPendingItems unhandled items, until ctx is done or the engine
// stops. It returns ErrEngineStopped once Complete or Fault was called, or
// the engine's context was cancelled, including to callers still waiting for
// admission.
//
// Items submitted for the same key are handled in the order of the Submit
// calls; callers must not submit concurrently for the same key if they care
// about that order. ctx only bounds the wait for admission: once admitted
// the item is scheduled.
//
// Handlers must not Submit to the engine that invokes them.
func (e *Engine[T]) Submit(ctx context.Context, key string, item T) error {
	if e.closing.Err() != nil || e.stopping() {
		return ErrEngineStopped
	}

	admitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.closing, cancel)
	defer stop()

	// The admission wait happens outside e.mu so Complete never waits for
	// a stalled handler to free a permit.
	if err := e.admission.Acquire(admitCtx, 1); err != nil {
		if e.closing.Err() != nil {
			return ErrEngineStopped
		}
		return err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped || e.stopping() {
		e.admission.Release(1)
		return ErrEngineStopped
	}
	e.pending.Add(1)

	p := e.registry.enqueue(key, item)
	select {
	case e.tokens <- p:
	case <-e.tomb.Dying():
		return ErrEngineStopped
	}
	return nil
}

// Complete signals that no further items will be submitted. Items already
// admitted are still handled; Wait returns once they are.
func (e *Engine[T]) Complete() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	e.stopped = true
	e.closeIntake()
	close(e.tokens)

	if e.config.Logger != nil {
		e.config.Logger.Info(e.ctx, "dispatch engine completing",
			"pending_items", e.pending.Load())
	}
}

// Fault stops the engine with err. In-flight handler calls finish their
// current item, nothing else is scheduled, and Wait returns err.
//
// Fault has no effect once the engine is already stopping, whether from a
// previous fault, a handler failure or cancellation.
func (e *Engine[T]) Fault(err error) {
	if e.tomb.Err() != tomb.ErrStillAlive {
		return
	}
	if err == nil {
		err = ErrFaulted
	}
	if e.config.Logger != nil {
		e.config.Logger.Error(e.ctx, "dispatch engine faulted", "error", err)
	}
	e.tomb.Kill(err)
	e.markStopped()
}

// Wait blocks until every stage has finished and returns the fault, if any.
// A completed or cancelled engine returns nil.
func (e *Engine[T]) Wait() error {
	return e.tomb.Wait()
}

// Dead returns a channel that is closed once the engine has finished.
func (e *Engine[T]) Dead() <-chan struct{} {
	return e.tomb.Dead()
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine[T]) Stats() Stats {
	return Stats{
		ActivePartitions: e.registry.len(),
		PendingItems:     e.pending.Load(),
		HandledItems:     e.handled.Load(),
		FailedItems:      e.failed.Load(),
	}
}

func (e *Engine[T]) markStopped() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	e.closeIntake()
}

// stopping reports whether the engine must stop scheduling handler calls.
func (e *Engine[T]) stopping() bool {
	select {
	case <-e.tomb.Dying():
		return true
	default:
	}
	return e.ctx.Err() != nil
}

func (e *Engine[T]) watchCancellation() error {
	select {
	case <-e.ctx.Done():
		if e.config.Logger != nil {
			e.config.Logger.Info(e.ctx, "dispatch engine cancelled",
				"pending_items", e.pending.Load())
		}
		// Cancellation is a clean shutdown, not a fault.
		e.tomb.Kill(nil)
		e.markStopped()
	case <-e.tomb.Dying():
	case <-e.finished:
	}
	return nil
}

func (e *Engine[T]) work() error {
	defer e.workers.Done()

	for {
		select {
		case <-e.tomb.Dying():
			return tomb.ErrDying
		case p, ok := <-e.tokens:
			if !ok {
				return nil
			}
			if err := e.process(p); err != nil {
				return err
			}
		}
	}
}

// process handles one token. If another worker is already draining the
// partition the token is dropped: that worker re-checks the queue after
// every item and again after releasing the lock, so it will observe the item
// this token was issued for.
func (e *Engine[T]) process(p *partition[T]) error {
	if e.stopping() {
		// A released partition lock is never taken again once stopping.
		return nil
	}
	if !p.lock.TryAcquire(1) {
		return nil
	}

	for {
		if err := e.drain(p); err != nil {
			return err
		}
		// An item may have been queued after the drain loop saw the queue
		// empty but before the lock was released, in which case its token
		// was dropped above. Take the partition back unless someone else
		// already has.
		if e.stopping() || p.empty() || !p.lock.TryAcquire(1) {
			break
		}
	}

	e.drained <- p
	return nil
}

// drain handles queued items until the queue is observed empty. The caller
// must hold p.lock; drain always releases it.
//
// Finding the queue already empty is valid: the previous drainer may have
// consumed the item this token was issued for.
func (e *Engine[T]) drain(p *partition[T]) error {
	p.setDraining(true)
	defer func() {
		p.setDraining(false)
		p.lock.Release(1)
	}()

	for {
		if e.stopping() {
			return nil
		}
		item, ok := p.pop()
		if !ok {
			return nil
		}
		if e.stopping() {
			return nil
		}
		if err := e.invoke(p.key, item); err != nil {
			return err
		}
	}
}

func (e *Engine[T]) invoke(key string, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		e.pending.Add(-1)
		e.admission.Release(1)

		if err == nil {
			e.handled.Add(1)
			return
		}
		if e.ctx.Err() != nil && errors.Is(err, e.ctx.Err()) {
			// The handler gave up because the engine was cancelled.
			err = nil
			return
		}
		e.failed.Add(1)
		if e.config.Logger != nil {
			e.config.Logger.Error(e.ctx, "dispatch handler failed",
				"partition", key,
				"error", err)
		}
		err = &HandlerError{Key: key, Err: err}
	}()

	return e.handler(e.ctx, item)
}

func (e *Engine[T]) cleanup() error {
	defer close(e.finished)
	defer e.closeIntake()

	for p := range e.drained {
		if e.registry.removeIfEmpty(p) && e.config.Logger != nil {
			e.config.Logger.Debug(e.ctx, "partition released", "partition", p.key)
		}
	}
	return nil
}
