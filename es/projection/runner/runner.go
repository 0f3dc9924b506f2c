// Package runner runs several workers, typically subscriptions, as one unit:
// the first failure stops all of them.
package runner

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
)

// ErrNoUnits indicates that Run was called without units.
const ErrNoUnits = errors.ConstError("no units provided")

// Unit is a named, already started worker. *subscription.Subscription is a
// worker.
type Unit struct {
	Name   string
	Worker worker.Worker
}

// Runner supervises units.
type Runner struct{}

// New creates a runner.
func New() *Runner {
	return &Runner{}
}

// Run supervises units until ctx is cancelled, a unit fails or every unit
// has finished. On return every unit has been killed and waited for.
//
// It returns the first unit failure annotated with the unit name, ctx's error
// if ctx ended the run, or nil if all units finished cleanly.
func (r *Runner) Run(ctx context.Context, units ...Unit) error {
	if len(units) == 0 {
		return ErrNoUnits
	}
	workers := make([]worker.Worker, len(units))
	for i, u := range units {
		if u.Worker == nil {
			return errors.NotValidf("unit %d (%q) with nil worker", i, u.Name)
		}
		workers[i] = named{Worker: u.Worker, name: u.Name}
	}

	finished := make(chan struct{})
	go func() {
		for _, w := range workers {
			_ = w.Wait()
		}
		close(finished)
	}()

	var site catacomb.Catacomb
	err := catacomb.Invoke(catacomb.Plan{
		Site: &site,
		Init: workers,
		Work: func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-site.Dying():
				return site.ErrDying()
			case <-finished:
				return nil
			}
		},
	})
	if err != nil {
		return errors.Trace(err)
	}
	return site.Wait()
}

// StartPartitions starts one worker per partition key of total, for scaling
// a subscription inside one process. If a start fails, the workers already
// started are stopped.
func StartPartitions(name string, total int, start func(partitionKey int) (worker.Worker, error)) ([]Unit, error) {
	if total <= 0 {
		return nil, errors.NotValidf("%d partitions", total)
	}
	units := make([]Unit, 0, total)
	for key := 0; key < total; key++ {
		w, err := start(key)
		if err != nil {
			for _, u := range units {
				_ = worker.Stop(u.Worker)
			}
			return nil, errors.Annotatef(err, "starting partition %d of %q", key, name)
		}
		units = append(units, Unit{
			Name:   fmt.Sprintf("%s[%d/%d]", name, key, total),
			Worker: w,
		})
	}
	return units, nil
}

// named annotates a worker's error with its unit name.
type named struct {
	worker.Worker
	name string
}

func (n named) Wait() error {
	return errors.Annotatef(n.Worker.Wait(), "unit %q", n.name)
}
