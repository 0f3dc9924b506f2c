// Package pupstream provides ordered event delivery for event-sourced Go
// applications.
//
// This package serves as the main entry point for the pupstream library.
// The functionality lives in the es package and its subpackages:
//
//	es                   - Core types and interfaces
//	es/dispatch          - Partitioned ordered dispatch engine
//	es/bus               - Event bus on top of the dispatch engine
//	es/store             - Event store abstractions
//	es/subscription      - Change feed subscriptions with checkpoints
//	es/projection        - Projections and partition strategies
//	es/projection/runner - Supervision of subscriptions
//	es/adapters/...      - Memory, SQLite, PostgreSQL and MySQL stores
//	es/migrations        - Schema generation
//
// Quick Start:
//
//  1. Generate migrations:
//     go run github.com/getpup/pupstream/cmd/migrate-gen -dialect postgres -output migrations
//
//  2. Create a store and append events:
//     store := postgres.NewStore(sqlstore.DefaultConfig())
//     tx, _ := db.BeginTx(ctx, nil)
//     result, err := store.Append(ctx, tx, es.NoStream(), events)
//     tx.Commit()
//
//  3. Deliver events to projections in stream order:
//     b, _ := bus.New(ctx, bus.DefaultConfig())
//     projection.Register(b, myProjection)
//     sub, _ := subscription.New(config) // config.Publisher = b
//     runner.New().Run(ctx, runner.Unit{Name: "my-projection", Worker: sub})
//
// See cmd/pupstream-demo for a complete working program.
package pupstream

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}
