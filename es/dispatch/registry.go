package dispatch

import (
	"sync"

	"github.com/juju/errors"
	"golang.org/x/sync/semaphore"
)

// partition is the per-key state: a FIFO of admitted items and the drain
// lock that gives one worker exclusive access to them.
//
// The pointer itself is the work token passed from admission to the
// workers and on to cleanup. The registry compares pointers on removal, so a
// stale token can never remove a newer partition created for the same key.
type partition[T any] struct {
	key  string
	lock *semaphore.Weighted

	mu       sync.Mutex
	items    []T
	draining bool
	detached bool
}

func newPartition[T any](key string) *partition[T] {
	return &partition[T]{
		key:  key,
		lock: semaphore.NewWeighted(1),
	}
}

func (p *partition[T]) push(item T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, item)
}

// pop removes and returns the oldest item.
func (p *partition[T]) pop() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	if len(p.items) == 0 {
		return zero, false
	}
	if p.detached {
		// Items are only appended to registered partitions and a partition
		// is only detached when empty.
		panic(errors.Annotatef(ErrInvariantViolation, "item queued on removed partition %q", p.key))
	}
	item := p.items[0]
	p.items[0] = zero
	p.items = p.items[1:]
	return item, true
}

func (p *partition[T]) empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) == 0
}

func (p *partition[T]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *partition[T]) setDraining(draining bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draining = draining
}

// registry maps partition keys to their partitions. Membership changes are
// made under one coarse mutex; draining is governed by each partition's own
// lock, so the two never contend.
//
// Lock order is always registry.mu then partition.mu.
type registry[T any] struct {
	mu         sync.Mutex
	partitions map[string]*partition[T]
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{
		partitions: make(map[string]*partition[T]),
	}
}

// enqueue appends item to the partition for key, creating the partition if
// needed. The append happens under the coarse mutex so it is linearizable with
// removeIfEmpty: an item can never land on a partition that is being removed.
func (r *registry[T]) enqueue(key string, item T) *partition[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partitions[key]
	if !ok {
		p = newPartition[T](key)
		r.partitions[key] = p
	}
	p.push(item)
	return p
}

// removeIfEmpty removes p if it is still the registered partition for its
// key, has no queued items and no worker is draining it. It reports whether
// the partition was removed.
func (r *registry[T]) removeIfEmpty(p *partition[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.partitions[p.key]; !ok || current != p {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) > 0 || p.draining {
		return false
	}
	p.detached = true
	delete(r.partitions, p.key)
	return true
}

func (r *registry[T]) get(key string) (*partition[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partitions[key]
	return p, ok
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.partitions)
}
