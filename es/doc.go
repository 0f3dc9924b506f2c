// Package es holds the event model shared by every pupstream package.
//
// # Overview
//
// Events are appended to per-aggregate streams by a store (see the store
// package and its adapters) and delivered to subscribers by the dispatch
// engine. The types here are the ones that cross those boundaries:
//   - Event: an event before it is persisted
//   - PersistedEvent: an event with its global position and stream version
//   - Stream and AppendResult: views over a stream's events
//   - ExpectedVersion: optimistic concurrency expectation for appends
//   - DBTX and TxBeginner: the database abstraction stores are written against
//   - Logger: the optional logging hook
//
// # Ordering
//
// Every persisted event belongs to exactly one stream, identified by its
// aggregate type and aggregate id. PersistedEvent.StreamKey returns that
// identity as a single string, and it is the partition key used for
// delivery: events of one stream are handled strictly in aggregate version
// order while different streams are handled concurrently.
//
//	bus, _ := bus.New(ctx, bus.DefaultConfig())
//	bus.Subscribe("OrderPlaced", func(ctx context.Context, e es.PersistedEvent) error {
//	    return project(ctx, e)
//	})
//	bus.Publish(ctx, events...)
//	bus.Complete()
//	err := bus.Wait()
//
// # Transactions
//
// Stores accept a DBTX and never manage transactions, so event appends can
// be combined atomically with other writes:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	defer tx.Rollback()
//	result, err := store.Append(ctx, tx, es.NoStream(), events)
//	if err != nil {
//	    return err
//	}
//	return tx.Commit()
package es
