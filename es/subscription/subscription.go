// Package subscription tails a store's change feed and publishes every event
// to a bus, in global position order.
//
// Delivery is at least once. The checkpoint is only written after a clean
// shutdown, once the bus has delivered everything that was published, so a
// restart after a failure re-delivers from the previous checkpoint.
package subscription

import (
	"context"

	"github.com/juju/errors"
	"gopkg.in/tomb.v2"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/dispatch"
)

// ErrPublisherStopped is returned when the publisher stopped without a fault
// while the subscription was still running.
const ErrPublisherStopped = errors.ConstError("publisher stopped")

// Publisher is the downstream of a subscription. *bus.Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, events ...es.PersistedEvent) error
	Complete()
	Fault(err error)
	Wait() error
	Dead() <-chan struct{}
	Stats() dispatch.Stats
}

// Subscription is a running change-feed tail. It implements the worker
// interface (Kill and Wait).
type Subscription struct {
	tomb   tomb.Tomb
	config Config

	// position is the last published position. Only the loop touches it.
	position int64
}

// New validates config and starts the subscription.
func New(config Config) (*Subscription, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	s := &Subscription{config: config}
	s.tomb.Go(s.loop)
	return s, nil
}

// Kill asks the subscription to stop.
func (s *Subscription) Kill() {
	s.tomb.Kill(nil)
}

// Wait blocks until the subscription has stopped. It returns nil after a
// clean shutdown.
func (s *Subscription) Wait() error {
	return s.tomb.Wait()
}

func (s *Subscription) loop() error {
	ctx := s.tomb.Context(context.Background())

	err := s.run(ctx)
	if errors.Is(err, tomb.ErrDying) {
		err = nil
	}
	if err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "subscription failed",
				"subscription", s.config.Name,
				"position", s.position,
				"error", err)
		}
		s.config.Publisher.Fault(err)
		if cause := s.config.Publisher.Wait(); cause != nil {
			// The publisher failed first; its error is the root cause.
			err = cause
		}
		return err
	}
	return s.finish()
}

// finish completes the publisher and checkpoints the last published
// position once everything has been delivered.
func (s *Subscription) finish() error {
	// The tomb context is cancelled by now.
	ctx := context.Background()

	s.config.Publisher.Complete()
	if err := s.config.Publisher.Wait(); err != nil {
		return errors.Annotate(err, "delivering events")
	}
	if pending := s.config.Publisher.Stats().PendingItems; pending != 0 {
		// The publisher was cancelled and dropped events, so the position
		// is ahead of what was delivered.
		return errors.Errorf("%d published events were not delivered", pending)
	}
	if s.config.Checkpoints == nil {
		return nil
	}
	err := s.withTx(ctx, func(tx es.DBTX) error {
		return s.config.Checkpoints.SaveCheckpoint(ctx, tx, s.config.Name, s.position)
	})
	if err != nil {
		return errors.Trace(err)
	}
	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "subscription stopped",
			"subscription", s.config.Name,
			"position", s.position)
	}
	return nil
}

func (s *Subscription) run(ctx context.Context) error {
	if err := s.start(ctx); err != nil {
		return errors.Trace(err)
	}

	for {
		events, err := s.poll(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if len(events) == 0 {
			select {
			case <-s.tomb.Dying():
				return tomb.ErrDying
			case <-s.config.Publisher.Dead():
				return ErrPublisherStopped
			case <-s.config.Clock.After(s.config.PollInterval):
			}
			continue
		}
		if err := s.publish(ctx, events); err != nil {
			return errors.Trace(err)
		}
	}
}

func (s *Subscription) start(ctx context.Context) error {
	s.position = s.config.FromPosition
	if s.config.Checkpoints != nil {
		var checkpoint int64
		err := s.withTx(ctx, func(tx es.DBTX) (err error) {
			checkpoint, err = s.config.Checkpoints.GetCheckpoint(ctx, tx, s.config.Name)
			return err
		})
		if err != nil {
			return s.interrupted(errors.Annotate(err, "reading checkpoint"))
		}
		if checkpoint > s.position {
			s.position = checkpoint
		}
	}
	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "subscription starting",
			"subscription", s.config.Name,
			"position", s.position,
			"partition_key", s.config.PartitionKey,
			"total_partitions", s.config.TotalPartitions,
			"batch_size", s.config.BatchSize)
	}
	return nil
}

func (s *Subscription) poll(ctx context.Context) ([]es.PersistedEvent, error) {
	var events []es.PersistedEvent
	err := s.withTx(ctx, func(tx es.DBTX) (err error) {
		events, err = s.config.Reader.ReadEvents(ctx, tx, s.position, s.config.BatchSize)
		return err
	})
	if err != nil {
		return nil, s.interrupted(errors.Annotatef(err, "reading events after %d", s.position))
	}
	return events, nil
}

// publish hands events to the publisher one at a time so the position only
// covers events that were accepted.
func (s *Subscription) publish(ctx context.Context, events []es.PersistedEvent) error {
	for i := range events {
		e := &events[i]
		if e.GlobalPosition <= s.position {
			return errors.Errorf("change feed went backwards: position %d after %d", e.GlobalPosition, s.position)
		}
		if s.owns(e) {
			if err := s.config.Publisher.Publish(ctx, *e); err != nil {
				return s.interrupted(err)
			}
		}
		s.position = e.GlobalPosition
	}
	return nil
}

func (s *Subscription) owns(e *es.PersistedEvent) bool {
	if s.config.TotalPartitions <= 1 {
		return true
	}
	return s.config.PartitionStrategy.ShouldProcess(e.AggregateID, s.config.PartitionKey, s.config.TotalPartitions)
}

// interrupted maps errors caused by Kill to tomb.ErrDying.
func (s *Subscription) interrupted(err error) error {
	select {
	case <-s.tomb.Dying():
		return tomb.ErrDying
	default:
		return err
	}
}

func (s *Subscription) withTx(ctx context.Context, fn func(tx es.DBTX) error) error {
	if s.config.DB == nil {
		return fn(nil)
	}
	tx, err := s.config.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Annotate(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Annotate(tx.Commit(), "committing transaction")
}
