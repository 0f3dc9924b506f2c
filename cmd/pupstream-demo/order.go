package main

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
)

// orderCheck is a projection that fails on any gap or reordering within a
// stream, and closes done once want events were seen.
type orderCheck struct {
	want int
	done chan struct{}

	mu       sync.Mutex
	versions map[string]int64
	count    int
}

func newOrderCheck(want int) *orderCheck {
	return &orderCheck{
		want:     want,
		done:     make(chan struct{}),
		versions: make(map[string]int64),
	}
}

func (p *orderCheck) Name() string {
	return "order-check"
}

func (p *orderCheck) AggregateTypes() []string {
	return []string{"Counter"}
}

func (p *orderCheck) Handle(_ context.Context, event es.PersistedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := event.StreamKey()
	if last := p.versions[key]; event.AggregateVersion != last+1 {
		return errors.Errorf("stream %s: version %d delivered after %d", key, event.AggregateVersion, last)
	}
	p.versions[key] = event.AggregateVersion
	p.count++
	if p.count == p.want {
		close(p.done)
	}
	return nil
}

func (p *orderCheck) seen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
