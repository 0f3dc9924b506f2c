// Package storetest is a behaviour suite shared by the SQL store adapters.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/getpup/pupstream/es"
	"github.com/getpup/pupstream/es/adapters/sqlstore"
	"github.com/getpup/pupstream/es/store"
)

// Fixture is a freshly migrated database and a store over it.
type Fixture struct {
	DB     *sql.DB
	Store  *sqlstore.Store
	Config sqlstore.Config
}

// Run runs the suite. setup must return an empty, migrated database for
// every call.
func Run(t *testing.T, setup func(t *testing.T) Fixture) {
	tests := []struct {
		name string
		run  func(c *qt.C, f Fixture)
	}{
		{"AppendAssignsVersionsAndPositions", testAppend},
		{"ExpectedVersion", testExpectedVersion},
		{"UniqueViolationIsConflict", testUniqueViolation},
		{"RejectsInvalidBatches", testInvalidBatches},
		{"ReadEventsPages", testReadEvents},
		{"ReadStream", testReadStream},
		{"Checkpoints", testCheckpoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(qt.New(t), setup(t))
		})
	}
}

// NewEvent returns an event for the given stream.
func NewEvent(aggregateType, aggregateID, eventType string) es.Event {
	return es.Event{
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventVersion:  1,
		Payload:       []byte(fmt.Sprintf(`{"type":%q}`, eventType)),
		Metadata:      []byte(`{}`),
		EventID:       uuid.New(),
	}
}

func appendTx(c *qt.C, f Fixture, expected es.ExpectedVersion, events ...es.Event) (es.AppendResult, error) {
	ctx := context.Background()
	tx, err := f.DB.BeginTx(ctx, nil)
	c.Assert(err, qt.IsNil)
	defer func() { _ = tx.Rollback() }()

	result, err := f.Store.Append(ctx, tx, expected, events)
	if err != nil {
		return result, err
	}
	c.Assert(tx.Commit(), qt.IsNil)
	return result, nil
}

func testAppend(c *qt.C, f Fixture) {
	first := NewEvent("Order", "o-1", "OrderPlaced")
	first.TraceID = sql.NullString{String: "trace-1", Valid: true}

	result, err := appendTx(c, f, es.NoStream(), first, NewEvent("Order", "o-1", "OrderPaid"))
	c.Assert(err, qt.IsNil)
	c.Assert(result.FromVersion(), qt.Equals, int64(0))
	c.Assert(result.ToVersion(), qt.Equals, int64(2))
	c.Assert(result.GlobalPositions, qt.HasLen, 2)
	c.Assert(result.GlobalPositions[1] > result.GlobalPositions[0], qt.IsTrue)

	result, err = appendTx(c, f, es.Exact(2), NewEvent("Order", "o-1", "OrderShipped"))
	c.Assert(err, qt.IsNil)
	c.Assert(result.Events[0].AggregateVersion, qt.Equals, int64(3))

	stream, err := f.Store.ReadStream(context.Background(), f.DB, "Order", "o-1", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(stream.Len(), qt.Equals, 3)
	c.Assert(stream.Version(), qt.Equals, int64(3))

	got := stream.Events[0]
	c.Assert(got.EventID, qt.Equals, first.EventID)
	c.Assert(got.EventType, qt.Equals, "OrderPlaced")
	c.Assert(got.TraceID, qt.Equals, first.TraceID)
	c.Assert(got.CorrelationID.Valid, qt.IsFalse)
	c.Assert(string(got.Payload), qt.Equals, string(first.Payload))
	c.Assert(got.CreatedAt.Equal(first.CreatedAt), qt.IsTrue,
		qt.Commentf("created_at %v, want %v", got.CreatedAt, first.CreatedAt))
}

func testExpectedVersion(c *qt.C, f Fixture) {
	_, err := appendTx(c, f, es.NoStream(), NewEvent("User", "u-1", "UserRegistered"))
	c.Assert(err, qt.IsNil)

	tests := []struct {
		name     string
		expected es.ExpectedVersion
		conflict bool
	}{
		{"no stream on existing stream", es.NoStream(), true},
		{"exact behind", es.Exact(0), true},
		{"exact ahead", es.Exact(5), true},
		{"exact match", es.Exact(1), false},
		{"any", es.Any(), false},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			_, err := appendTx(c, f, tt.expected, NewEvent("User", "u-1", "UserRenamed"))
			if tt.conflict {
				c.Assert(err, qt.ErrorIs, store.ErrOptimisticConcurrency)
				return
			}
			c.Assert(err, qt.IsNil)
		})
	}

	stream, err := f.Store.ReadStream(context.Background(), f.DB, "User", "u-1", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(stream.Version(), qt.Equals, int64(3))
}

// testUniqueViolation removes the aggregate head so the version check passes
// and the unique key on the events table has to catch the conflict.
func testUniqueViolation(c *qt.C, f Fixture) {
	_, err := appendTx(c, f, es.NoStream(), NewEvent("Cart", "c-1", "CartOpened"))
	c.Assert(err, qt.IsNil)

	_, err = f.DB.Exec("DELETE FROM " + f.Config.AggregateHeadsTable)
	c.Assert(err, qt.IsNil)

	_, err = appendTx(c, f, es.Any(), NewEvent("Cart", "c-1", "CartOpened"))
	c.Assert(err, qt.ErrorIs, store.ErrOptimisticConcurrency)
}

func testInvalidBatches(c *qt.C, f Fixture) {
	_, err := appendTx(c, f, es.Any())
	c.Assert(err, qt.ErrorIs, store.ErrNoEvents)

	_, err = appendTx(c, f, es.Any(), NewEvent("A", "1", "X"), NewEvent("A", "2", "X"))
	c.Assert(err, qt.ErrorIs, store.ErrMixedStreams)
}

func testReadEvents(c *qt.C, f Fixture) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		for _, id := range []string{"a", "b"} {
			_, err := appendTx(c, f, es.Any(), NewEvent("Stream", id, fmt.Sprintf("E%d", i)))
			c.Assert(err, qt.IsNil)
		}
	}

	var (
		all  []es.PersistedEvent
		from int64
	)
	for {
		batch, err := f.Store.ReadEvents(ctx, f.DB, from, 3)
		c.Assert(err, qt.IsNil)
		if len(batch) == 0 {
			break
		}
		c.Assert(len(batch) <= 3, qt.IsTrue)
		all = append(all, batch...)
		from = batch[len(batch)-1].GlobalPosition
	}
	c.Assert(all, qt.HasLen, 10)

	versions := map[string]int64{}
	for i, e := range all {
		if i > 0 {
			c.Assert(e.GlobalPosition > all[i-1].GlobalPosition, qt.IsTrue)
		}
		versions[e.StreamKey()]++
		c.Assert(e.AggregateVersion, qt.Equals, versions[e.StreamKey()])
	}
}

func testReadStream(c *qt.C, f Fixture) {
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := appendTx(c, f, es.Exact(int64(i)), NewEvent("Account", "acc", fmt.Sprintf("E%d", i)))
		c.Assert(err, qt.IsNil)
	}
	_, err := appendTx(c, f, es.NoStream(), NewEvent("Account", "other", "E0"))
	c.Assert(err, qt.IsNil)

	stream, err := f.Store.ReadStream(ctx, f.DB, "Account", "acc", 3)
	c.Assert(err, qt.IsNil)
	c.Assert(stream.Len(), qt.Equals, 2)
	c.Assert(stream.Events[0].AggregateVersion, qt.Equals, int64(3))
	c.Assert(stream.Events[1].EventType, qt.Equals, "E3")

	empty, err := f.Store.ReadStream(ctx, f.DB, "Account", "missing", 0)
	c.Assert(err, qt.IsNil)
	c.Assert(empty.IsEmpty(), qt.IsTrue)
}

func testCheckpoints(c *qt.C, f Fixture) {
	ctx := context.Background()

	position, err := f.Store.GetCheckpoint(ctx, f.DB, "orders")
	c.Assert(err, qt.IsNil)
	c.Assert(position, qt.Equals, int64(0))

	c.Assert(f.Store.SaveCheckpoint(ctx, f.DB, "orders", 42), qt.IsNil)
	c.Assert(f.Store.SaveCheckpoint(ctx, f.DB, "orders", 57), qt.IsNil)
	c.Assert(f.Store.SaveCheckpoint(ctx, f.DB, "billing", 3), qt.IsNil)

	position, err = f.Store.GetCheckpoint(ctx, f.DB, "orders")
	c.Assert(err, qt.IsNil)
	c.Assert(position, qt.Equals, int64(57))

	position, err = f.Store.GetCheckpoint(ctx, f.DB, "billing")
	c.Assert(err, qt.IsNil)
	c.Assert(position, qt.Equals, int64(3))
}
