// Package engine implements the oplog versioning engine.
//
// The engine tails a MongoDB replication oplog and appends one history
// snapshot per insert, update and delete of its configured collections.
//
// ARCHITECTURE:
//
// Tail Goroutine + Collection Workers:
// One goroutine reads the oplog cursor and routes each record to the bounded
// channel of its collection. Every collection has exactly one worker that
// handles its records one at a time. This ensures:
// - Snapshots of a document are appended in oplog order
// - Collections progress independently of each other
// - A slow collection throttles the tail instead of buffering without bound
//
// Record Processing Flow:
// 1. Connect resolves each collection's resume point from the version store
// 2. Start opens a cursor over entries strictly after those points
// 3. The tail goroutine routes records, blocking while a channel is full
// 4. The worker replays updates onto the latest snapshot and appends the result
// 5. A failed record stalls its channel until Resolve(Retry|Skip)
//
// CRITICAL PATTERNS:
//
// Resume Points:
// The lower bound of a collection is the greatest versioning_ts in its
// history. The bound is exclusive, so a restart never re-appends the last
// snapshot; entries with the same timestamp as another collection's bound
// are unaffected because bounds are per namespace.
//
// Base Snapshot Lookup:
// Updates read the identity's most recently appended snapshot, not the one
// with the greatest timestamp. Single-writer-per-collection makes insertion
// order equal to oplog order.
package engine
