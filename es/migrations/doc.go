// Package migrations generates the schema used by the SQL event stores:
// the events table, the aggregate heads table and the subscription
// checkpoints table.
//
// Write a migration file with the migrate-gen command:
//
//	go run github.com/getpup/pupstream/cmd/migrate-gen -dialect postgres -output migrations
//
// or apply the schema directly, which is convenient for SQLite:
//
//	err := migrations.Apply(ctx, db, migrations.SQLite, migrations.DefaultConfig())
package migrations
