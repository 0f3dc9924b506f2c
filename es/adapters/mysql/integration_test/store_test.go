// Package integration_test runs the store suite against MySQL or MariaDB.
//
// Run with: go test -tags=integration ./es/adapters/mysql/integration_test/...
//
//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/getpup/pupstream/es/adapters/mysql"
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

	cfg := gomysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = getenv("MYSQL_HOST", "localhost") + ":" + getenv("MYSQL_PORT", "3306")
	cfg.User = getenv("MYSQL_USER", "root")
	cfg.Passwd = getenv("MYSQL_PASSWORD", "mysql")
	cfg.DBName = getenv("MYSQL_DATABASE", "pupstream_test")

	db, err := sql.Open("mysql", mysql.DSN(cfg))
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
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			t.Fatalf("Failed to drop %s: %v", table, err)
		}
	}
	if err := migrations.Apply(ctx, db, migrations.MySQL, migrations.DefaultConfig()); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	return storetest.Fixture{DB: db, Store: mysql.NewStore(config), Config: config}
}

func TestStore(t *testing.T) {
	storetest.Run(t, setup)
}
