// Package integration_test runs the store suite against PostgreSQL.
//
// Run with: go test -tags=integration ./es/adapters/postgres/integration_test/...
//
//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/getpup/pupstream/es/adapters/postgres"
	"github.com/getpup/pupstream/es/adapters/sqlstore"
	"github.com/getpup/pupstream/es/adapters/sqlstore/storetest"
	"github.com/getpup/pupstream/es/migrations"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setup(t *testing.T) storetest.Fixture {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("POSTGRES_HOST", "localhost"),
		getenv("POSTGRES_PORT", "5432"),
		getenv("POSTGRES_USER", "postgres"),
		getenv("POSTGRES_PASSWORD", "postgres"),
		getenv("POSTGRES_DB", "pupstream_test"))

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	config := sqlstore.DefaultConfig()
	for _, table := range []string{config.EventsTable, config.AggregateHeadsTable, config.CheckpointsTable} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("Failed to drop %s: %v", table, err)
		}
	}
	if err := migrations.Apply(ctx, db, migrations.Postgres, migrations.DefaultConfig()); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	return storetest.Fixture{DB: db, Store: postgres.NewStore(config), Config: config}
}

func TestStore(t *testing.T) {
	storetest.Run(t, setup)
}
