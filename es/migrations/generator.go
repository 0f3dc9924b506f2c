package migrations

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"

	"github.com/getpup/pupstream/es"
)

// Dialect selects the SQL flavour of the generated schema.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
)

// ParseDialect returns the dialect named s.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case Postgres, SQLite, MySQL:
		return d, nil
	}
	return "", errors.NotValidf("dialect %q", s)
}

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// EventsTable is the name of the events table
	EventsTable string

	// CheckpointsTable is the name of the subscription checkpoints table
	CheckpointsTable string

	// AggregateHeadsTable is the name of the aggregate version tracking table
	AggregateHeadsTable string
}

// DefaultConfig returns the default configuration. Table names match the
// store adapters' defaults.
func DefaultConfig() Config {
	return Config{
		OutputFolder:        "migrations",
		OutputFilename:      time.Now().Format("20060102150405") + "_init_pupstream.sql",
		EventsTable:         "events",
		CheckpointsTable:    "subscription_checkpoints",
		AggregateHeadsTable: "aggregate_heads",
	}
}

// Statements returns the schema for d as individual statements.
func Statements(d Dialect, config Config) ([]string, error) {
	tmpl, ok := schemas[d]
	if !ok {
		return nil, errors.NotValidf("dialect %q", d)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, config); err != nil {
		return nil, errors.Annotatef(err, "rendering %s schema", d)
	}

	var statements []string
	for _, stmt := range strings.Split(buf.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements, nil
}

// Apply executes the schema for d against db.
func Apply(ctx context.Context, db es.DBTX, d Dialect, config Config) error {
	statements, err := Statements(d, config)
	if err != nil {
		return errors.Trace(err)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Annotatef(err, "applying %s schema", d)
		}
	}
	return nil
}

// Generate writes the schema for d to config.OutputFolder/config.OutputFilename.
func Generate(d Dialect, config *Config) error {
	statements, err := Statements(d, *config)
	if err != nil {
		return errors.Trace(err)
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return errors.Annotate(err, "creating output folder")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "-- pupstream schema (%s)\n-- Generated: %s\n", d, time.Now().Format(time.RFC3339))
	for _, stmt := range statements {
		buf.WriteString("\n")
		buf.WriteString(stmt)
		buf.WriteString(";\n")
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o600); err != nil {
		return errors.Annotate(err, "writing migration file")
	}
	return nil
}
