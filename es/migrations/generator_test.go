package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestStatements(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		dialect  Dialect
		required []string
	}{
		{
			dialect: Postgres,
			required: []string{
				"CREATE TABLE IF NOT EXISTS events",
				"global_position BIGSERIAL PRIMARY KEY",
				"payload BYTEA NOT NULL",
				"metadata JSONB",
				"UNIQUE (aggregate_type, aggregate_id, aggregate_version)",
				"CREATE TABLE IF NOT EXISTS aggregate_heads",
				"CREATE TABLE IF NOT EXISTS subscription_checkpoints",
				"subscription_name TEXT PRIMARY KEY",
			},
		},
		{
			dialect: SQLite,
			required: []string{
				"global_position INTEGER PRIMARY KEY AUTOINCREMENT",
				"payload BLOB NOT NULL",
				"created_at TEXT NOT NULL",
				"CREATE TABLE IF NOT EXISTS subscription_checkpoints",
			},
		},
		{
			dialect: MySQL,
			required: []string{
				"global_position BIGINT AUTO_INCREMENT PRIMARY KEY",
				"event_id CHAR(36) NOT NULL UNIQUE",
				"UNIQUE KEY uq_events_stream_version",
				"ENGINE=InnoDB",
				"subscription_name VARCHAR(255) PRIMARY KEY",
			},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			c := qt.New(t)
			statements, err := Statements(tt.dialect, config)
			c.Assert(err, qt.IsNil)

			joined := strings.Join(statements, "\n")
			for _, required := range tt.required {
				c.Check(joined, qt.Contains, required)
			}
			for _, stmt := range statements {
				c.Check(strings.HasSuffix(stmt, ";"), qt.IsFalse)
				c.Check(stmt, qt.Not(qt.Equals), "")
			}
		})
	}
}

func TestStatements_CustomTableNames(t *testing.T) {
	c := qt.New(t)

	config := Config{
		EventsTable:         "custom_events",
		CheckpointsTable:    "custom_checkpoints",
		AggregateHeadsTable: "custom_heads",
	}
	statements, err := Statements(Postgres, config)
	c.Assert(err, qt.IsNil)

	joined := strings.Join(statements, "\n")
	c.Assert(joined, qt.Contains, "CREATE TABLE IF NOT EXISTS custom_events")
	c.Assert(joined, qt.Contains, "CREATE TABLE IF NOT EXISTS custom_checkpoints")
	c.Assert(joined, qt.Contains, "CREATE TABLE IF NOT EXISTS custom_heads")
	c.Assert(joined, qt.Contains, "idx_custom_events_event_type")
}

func TestStatements_UnknownDialect(t *testing.T) {
	c := qt.New(t)
	_, err := Statements(Dialect("oracle"), DefaultConfig())
	c.Assert(err, qt.ErrorMatches, `dialect "oracle" not valid`)
}

func TestParseDialect(t *testing.T) {
	c := qt.New(t)

	d, err := ParseDialect("SQLite")
	c.Assert(err, qt.IsNil)
	c.Assert(d, qt.Equals, SQLite)

	_, err = ParseDialect("db2")
	c.Assert(err, qt.ErrorMatches, `dialect "db2" not valid`)
}

func TestGenerate(t *testing.T) {
	c := qt.New(t)

	config := DefaultConfig()
	config.OutputFolder = filepath.Join(t.TempDir(), "nested")
	config.OutputFilename = "schema.sql"

	c.Assert(Generate(MySQL, &config), qt.IsNil)

	content, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	c.Assert(err, qt.IsNil)
	c.Assert(string(content), qt.Contains, "-- pupstream schema (mysql)")
	c.Assert(strings.Count(string(content), "CREATE TABLE"), qt.Equals, 3)
}
