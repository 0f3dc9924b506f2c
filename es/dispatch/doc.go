// Package dispatch implements the partitioned ordered dispatch engine that
// every event source in pupstream feeds into.
//
// # Overview
//
// An Engine accepts (key, item) pairs and hands every item to a single
// handler function. Items that share a partition key are handled one at a
// time, in the order they were submitted. Items with different keys are
// handled concurrently, bounded by Config.MaxConcurrentPartitions.
//
// The pipeline has three stages:
//
//   - Admission: Submit appends the item to its partition queue and schedules
//     a token for the workers. It blocks once Config.MaxPendingItems items are
//     admitted but not yet handled. This is the only place backpressure
//     reaches producers.
//   - Workers: a worker that receives a token tries to take the partition's
//     drain lock without blocking. If another worker already holds it the
//     token is dropped, since the active drainer re-checks the queue after
//     every item and after releasing the lock. Otherwise the worker drains the
//     queue until it is empty.
//   - Cleanup: after a drain pass the partition is removed from the registry
//     if it is empty and idle, so memory is bounded by the number of active
//     partitions rather than every key ever seen.
//
// # Lifecycle
//
//	engine, err := dispatch.New(ctx, handle, dispatch.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	for _, event := range events {
//	    if err := engine.Submit(ctx, event.StreamKey(), event); err != nil {
//	        return err
//	    }
//	}
//
//	engine.Complete()
//	return engine.Wait()
//
// Complete stops admission and lets every queued item drain. Fault stops
// admission immediately; in-flight handler calls finish but nothing new is
// scheduled. Cancelling the context given to New is a clean shutdown: queued
// items are dropped and Wait returns nil.
//
// A handler error faults the engine (fail-fast). The engine never retries;
// retry policy belongs to the handler.
//
// Delivery is at-least-once within a process lifetime only. Queued items are
// not persisted and are lost if the process exits.
package dispatch
