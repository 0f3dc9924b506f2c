package sqlstore

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestRebind(t *testing.T) {
	c := qt.New(t)

	numbered := Dialect{Numbered: true}
	c.Assert(numbered.rebind("SELECT a FROM t WHERE b = ? AND c = ?"), qt.Equals,
		"SELECT a FROM t WHERE b = $1 AND c = $2")

	plain := Dialect{}
	c.Assert(plain.rebind("SELECT a FROM t WHERE b = ?"), qt.Equals, "SELECT a FROM t WHERE b = ?")
}

func TestUpsertClauses(t *testing.T) {
	c := qt.New(t)

	keys := []string{"aggregate_type", "aggregate_id"}
	cols := []string{"aggregate_version", "updated_at"}

	c.Assert(OnConflictUpsert(keys, cols), qt.Equals,
		"ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET "+
			"aggregate_version = excluded.aggregate_version, updated_at = excluded.updated_at")
	c.Assert(DuplicateKeyUpsert(keys, cols), qt.Equals,
		"ON DUPLICATE KEY UPDATE aggregate_version = VALUES(aggregate_version), updated_at = VALUES(updated_at)")
}

func TestNewBuildsDialectQueries(t *testing.T) {
	c := qt.New(t)

	s := New(Dialect{
		Numbered:  true,
		Returning: true,
		Now:       "NOW()",
		Upsert:    OnConflictUpsert,
	}, NewConfig(WithEventsTable("ev"), WithCheckpointsTable("cp"), WithAggregateHeadsTable("heads")))

	c.Assert(s.insertEvent, qt.Contains, "INSERT INTO ev")
	c.Assert(s.insertEvent, qt.Contains, "$12")
	c.Assert(s.insertEvent, qt.Contains, "RETURNING global_position")
	c.Assert(s.upsertHead, qt.Contains, "INSERT INTO heads")
	c.Assert(s.upsertHead, qt.Contains, "NOW()")
	c.Assert(s.readEvents, qt.Contains, "global_position > $1")
	c.Assert(s.readEvents, qt.Contains, "LIMIT $2")
	c.Assert(s.selectCheckpoint, qt.Contains, "FROM cp")
	c.Assert(s.upsertCheckpoint, qt.Contains, "ON CONFLICT (subscription_name)")
}

func TestTimestampScan(t *testing.T) {
	c := qt.New(t)
	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)

	tests := []struct {
		name string
		src  interface{}
	}{
		{"native", want},
		{"text", want.Format(TextTimeFormat)},
		{"bytes", []byte(want.Format(TextTimeFormat))},
		{"rfc3339", want.Format(time.RFC3339Nano)},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			var ts timestamp
			c.Assert(ts.Scan(tt.src), qt.IsNil)
			c.Assert(ts.Time.Equal(want), qt.IsTrue, qt.Commentf("got %v", ts.Time))
		})
	}

	var ts timestamp
	c.Assert(ts.Scan("yesterday"), qt.ErrorMatches, `timestamp "yesterday" not valid`)
	c.Assert(ts.Scan(42), qt.ErrorMatches, `timestamp of type int not supported`)
}
