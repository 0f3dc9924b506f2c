// Package sqlstore implements the event store contracts on database/sql.
// The sqlite, postgres and mysql adapters configure it with their dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/store"
)

const eventColumns = `global_position, aggregate_type, aggregate_id, aggregate_version,
		event_id, event_type, event_version,
		payload, trace_id, correlation_id, causation_id,
		metadata, created_at`

// Store is a SQL event store. It never opens or commits transactions.
type Store struct {
	dialect Dialect
	config  Config

	selectHead       string
	insertEvent      string
	upsertHead       string
	readEvents       string
	readStream       string
	selectCheckpoint string
	upsertCheckpoint string
}

var (
	_ store.EventStore      = (*Store)(nil)
	_ store.EventReader     = (*Store)(nil)
	_ store.StreamReader    = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
)

// New returns a store speaking dialect.
func New(dialect Dialect, config Config) *Store {
	s := &Store{dialect: dialect, config: config}

	s.selectHead = dialect.rebind(fmt.Sprintf(`
		SELECT aggregate_version
		FROM %s
		WHERE aggregate_type = ? AND aggregate_id = ?`, config.AggregateHeadsTable))

	insert := fmt.Sprintf(`
		INSERT INTO %s (
			aggregate_type, aggregate_id, aggregate_version,
			event_id, event_type, event_version,
			payload, trace_id, correlation_id, causation_id,
			metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, config.EventsTable)
	if dialect.Returning {
		insert += " RETURNING global_position"
	}
	s.insertEvent = dialect.rebind(insert)

	s.upsertHead = dialect.rebind(fmt.Sprintf(`
		INSERT INTO %s (aggregate_type, aggregate_id, aggregate_version, updated_at)
		VALUES (?, ?, ?, %s)
		%s`, config.AggregateHeadsTable, dialect.Now,
		dialect.Upsert(
			[]string{"aggregate_type", "aggregate_id"},
			[]string{"aggregate_version", "updated_at"})))

	s.readEvents = dialect.rebind(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE global_position > ?
		ORDER BY global_position ASC
		LIMIT ?`, eventColumns, config.EventsTable))

	s.readStream = dialect.rebind(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE aggregate_type = ? AND aggregate_id = ? AND aggregate_version >= ?
		ORDER BY aggregate_version ASC`, eventColumns, config.EventsTable))

	s.selectCheckpoint = dialect.rebind(fmt.Sprintf(`
		SELECT last_global_position
		FROM %s
		WHERE subscription_name = ?`, config.CheckpointsTable))

	s.upsertCheckpoint = dialect.rebind(fmt.Sprintf(`
		INSERT INTO %s (subscription_name, last_global_position, updated_at)
		VALUES (?, ?, %s)
		%s`, config.CheckpointsTable, dialect.Now,
		dialect.Upsert(
			[]string{"subscription_name"},
			[]string{"last_global_position", "updated_at"})))

	return s
}

// Append implements store.EventStore. The current stream version comes from
// the aggregate heads table; the unique key on (aggregate_type, aggregate_id,
// aggregate_version) catches writers that race past the version check.
func (s *Store) Append(ctx context.Context, tx es.DBTX, expectedVersion es.ExpectedVersion, events []es.Event) (es.AppendResult, error) {
	if err := store.ValidateBatch(events); err != nil {
		return es.AppendResult{}, err
	}
	first := &events[0]

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "append starting",
			"stream", es.StreamKey(first.AggregateType, first.AggregateID),
			"event_count", len(events),
			"expected_version", expectedVersion.String())
	}

	var current int64
	err := tx.QueryRowContext(ctx, s.selectHead, first.AggregateType, first.AggregateID).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return es.AppendResult{}, errors.Annotate(err, "checking current version")
	}

	if !expectedVersion.Satisfied(current) {
		if s.config.Logger != nil {
			s.config.Logger.Error(ctx, "expected version not satisfied",
				"stream", es.StreamKey(first.AggregateType, first.AggregateID),
				"current_version", current,
				"expected_version", expectedVersion.String())
		}
		return es.AppendResult{}, errors.Annotatef(store.ErrOptimisticConcurrency,
			"stream %s at version %d, expected %s",
			es.StreamKey(first.AggregateType, first.AggregateID), current, expectedVersion)
	}

	result := es.AppendResult{
		Events:          make([]es.PersistedEvent, len(events)),
		GlobalPositions: make([]int64, len(events)),
	}
	for i := range events {
		e := &events[i]
		version := current + int64(i) + 1

		position, err := s.insert(ctx, tx, e, version)
		if err != nil {
			if s.dialect.IsUniqueViolation(err) {
				if s.config.Logger != nil {
					s.config.Logger.Error(ctx, "optimistic concurrency conflict",
						"stream", es.StreamKey(e.AggregateType, e.AggregateID),
						"aggregate_version", version)
				}
				return es.AppendResult{}, errors.Annotatef(store.ErrOptimisticConcurrency,
					"stream %s version %d", es.StreamKey(e.AggregateType, e.AggregateID), version)
			}
			return es.AppendResult{}, errors.Annotatef(err, "inserting event %d", i)
		}
		result.GlobalPositions[i] = position
		result.Events[i] = e.Persist(position, version)
	}

	latest := current + int64(len(events))
	if _, err := tx.ExecContext(ctx, s.upsertHead, first.AggregateType, first.AggregateID, latest); err != nil {
		return es.AppendResult{}, errors.Annotate(err, "updating aggregate head")
	}

	if s.config.Logger != nil {
		s.config.Logger.Info(ctx, "events appended",
			"stream", es.StreamKey(first.AggregateType, first.AggregateID),
			"event_count", len(events),
			"version_range", fmt.Sprintf("%d-%d", current+1, latest),
			"positions", result.GlobalPositions)
	}
	return result, nil
}

func (s *Store) insert(ctx context.Context, tx es.DBTX, e *es.Event, version int64) (int64, error) {
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}
	args := []interface{}{
		e.AggregateType,
		e.AggregateID,
		version,
		e.EventID.String(),
		e.EventType,
		e.EventVersion,
		payload,
		e.TraceID,
		e.CorrelationID,
		e.CausationID,
		sql.NullString{String: string(e.Metadata), Valid: e.Metadata != nil},
		s.dialect.Time(e.CreatedAt),
	}

	if s.dialect.Returning {
		var position int64
		err := tx.QueryRowContext(ctx, s.insertEvent, args...).Scan(&position)
		return position, err
	}

	res, err := tx.ExecContext(ctx, s.insertEvent, args...)
	if err != nil {
		return 0, err
	}
	position, err := res.LastInsertId()
	return position, errors.Annotate(err, "reading global position")
}

// ReadEvents implements store.EventReader.
func (s *Store) ReadEvents(ctx context.Context, tx es.DBTX, fromPosition int64, limit int) ([]es.PersistedEvent, error) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "reading events", "from_position", fromPosition, "limit", limit)
	}

	rows, err := tx.QueryContext(ctx, s.readEvents, fromPosition, limit)
	if err != nil {
		return nil, errors.Annotate(err, "querying events")
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "events read", "count", len(events))
	}
	return events, nil
}

// ReadStream implements store.StreamReader.
func (s *Store) ReadStream(ctx context.Context, tx es.DBTX, aggregateType, aggregateID string, fromVersion int64) (es.Stream, error) {
	rows, err := tx.QueryContext(ctx, s.readStream, aggregateType, aggregateID, fromVersion)
	if err != nil {
		return es.Stream{}, errors.Annotate(err, "querying stream")
	}
	events, err := scanEvents(rows)
	if err != nil {
		return es.Stream{}, errors.Trace(err)
	}
	return es.Stream{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Events:        events,
	}, nil
}

// GetCheckpoint implements store.CheckpointStore.
func (s *Store) GetCheckpoint(ctx context.Context, tx es.DBTX, name string) (int64, error) {
	var position int64
	err := tx.QueryRowContext(ctx, s.selectCheckpoint, name).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return position, errors.Annotatef(err, "reading checkpoint %q", name)
}

// SaveCheckpoint implements store.CheckpointStore.
func (s *Store) SaveCheckpoint(ctx context.Context, tx es.DBTX, name string, position int64) error {
	if _, err := tx.ExecContext(ctx, s.upsertCheckpoint, name, position); err != nil {
		return errors.Annotatef(err, "saving checkpoint %q", name)
	}
	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "checkpoint saved", "subscription", name, "position", position)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]es.PersistedEvent, error) {
	defer rows.Close()

	var events []es.PersistedEvent
	for rows.Next() {
		var (
			e         es.PersistedEvent
			eventID   string
			createdAt timestamp
		)
		err := rows.Scan(
			&e.GlobalPosition,
			&e.AggregateType,
			&e.AggregateID,
			&e.AggregateVersion,
			&eventID,
			&e.EventType,
			&e.EventVersion,
			&e.Payload,
			&e.TraceID,
			&e.CorrelationID,
			&e.CausationID,
			&e.Metadata,
			&createdAt,
		)
		if err != nil {
			return nil, errors.Annotate(err, "scanning event")
		}
		if err := e.EventID.UnmarshalText([]byte(strings.TrimSpace(eventID))); err != nil {
			return nil, errors.Annotatef(err, "parsing event id %q", eventID)
		}
		e.CreatedAt = createdAt.Time
		events = append(events, e)
	}
	return events, errors.Annotate(rows.Err(), "reading events")
}
