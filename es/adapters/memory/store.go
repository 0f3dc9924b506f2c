// Package memory provides an in-memory event store for tests, demos and
// single-process applications. Transactions are ignored: every call is
// applied atomically on its own, and the tx argument may be nil.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

// Publisher receives committed events. The bus implements it.
type Publisher interface {
	Publish(ctx context.Context, events ...es.PersistedEvent) error
}

// Config configures a Store.
type Config struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// Publisher, if set, receives every appended batch in commit order. An
	// append whose publish fails is still committed.
	//
	// Appends wait for the previous batch's Publish to return, so handlers
	// fed by Publisher must not Append to the same store: under
	// backpressure the publish waits on the handler and the handler on the
	// publish.
	Publisher Publisher
}

// Store keeps events and checkpoints in memory.
type Store struct {
	config Config

	// publishMu serializes appends so batches are published in commit
	// order. Readers only take mu.
	publishMu sync.Mutex

	mu          sync.RWMutex
	events      []es.PersistedEvent
	streams     map[string][]int
	checkpoints map[string]int64
}

var (
	_ store.EventStore      = (*Store)(nil)
	_ store.EventReader     = (*Store)(nil)
	_ store.StreamReader    = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore(config Config) *Store {
	return &Store{
		config:      config,
		streams:     make(map[string][]int),
		checkpoints: make(map[string]int64),
	}
}

// Append implements store.EventStore.
func (s *Store) Append(ctx context.Context, _ es.DBTX, expectedVersion es.ExpectedVersion, events []es.Event) (es.AppendResult, error) {
	if err := store.ValidateBatch(events); err != nil {
		return es.AppendResult{}, err
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	result, err := s.commit(expectedVersion, events)
	if err != nil {
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "append rejected", "error", err)
		}
		return es.AppendResult{}, err
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "events appended",
			"stream", result.Events[0].StreamKey(),
			"event_count", len(result.Events),
			"positions", result.GlobalPositions)
	}

	if s.config.Publisher != nil {
		if err := s.config.Publisher.Publish(ctx, result.Events...); err != nil {
			return result, errors.Annotate(err, "publishing appended events")
		}
	}
	return result, nil
}

func (s *Store) commit(expectedVersion es.ExpectedVersion, events []es.Event) (es.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := es.StreamKey(events[0].AggregateType, events[0].AggregateID)
	current := int64(len(s.streams[key]))
	if !expectedVersion.Satisfied(current) {
		return es.AppendResult{}, errors.Annotatef(store.ErrOptimisticConcurrency,
			"stream %s at version %d, expected %s", key, current, expectedVersion)
	}

	result := es.AppendResult{
		Events:          make([]es.PersistedEvent, len(events)),
		GlobalPositions: make([]int64, len(events)),
	}
	for i := range events {
		position := int64(len(s.events)) + 1
		persisted := events[i].Persist(position, current+int64(i)+1)

		s.streams[key] = append(s.streams[key], len(s.events))
		s.events = append(s.events, persisted)
		result.Events[i] = persisted
		result.GlobalPositions[i] = position
	}
	return result, nil
}

// ReadEvents implements store.EventReader.
func (s *Store) ReadEvents(_ context.Context, _ es.DBTX, fromPosition int64, limit int) ([]es.PersistedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Positions are dense and start at 1, so position p is at index p-1.
	start := fromPosition
	if start < 0 {
		start = 0
	}
	if start >= int64(len(s.events)) || limit <= 0 {
		return nil, nil
	}
	end := start + int64(limit)
	if end > int64(len(s.events)) {
		end = int64(len(s.events))
	}
	out := make([]es.PersistedEvent, end-start)
	copy(out, s.events[start:end])
	return out, nil
}

// ReadStream implements store.StreamReader.
func (s *Store) ReadStream(_ context.Context, _ es.DBTX, aggregateType, aggregateID string, fromVersion int64) (es.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := es.Stream{AggregateType: aggregateType, AggregateID: aggregateID}
	indexes := s.streams[es.StreamKey(aggregateType, aggregateID)]
	first := sort.Search(len(indexes), func(i int) bool {
		return int64(i)+1 >= fromVersion
	})
	for _, idx := range indexes[first:] {
		stream.Events = append(stream.Events, s.events[idx])
	}
	return stream, nil
}

// GetCheckpoint implements store.CheckpointStore.
func (s *Store) GetCheckpoint(_ context.Context, _ es.DBTX, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[name], nil
}

// SaveCheckpoint implements store.CheckpointStore.
func (s *Store) SaveCheckpoint(_ context.Context, _ es.DBTX, name string, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[name] = position
	return nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
