// Package store persists append-only document history.
//
// Every versioned source collection has one history collection holding
// Snapshot documents: the source document body plus the versioning fields
// versioning_id, versioning_ts, versioning_version and versioning_delete.
//
// Two backends implement VersionStore:
//   - Mongo: history collections in the source MongoDB database (production)
//   - SQLite: a single embedded database file (oplog file replay, tests)
//
// # Critical Patterns
//
// Append-only:
//   - snapshots are never updated or deleted; SQLite enforces this with
//     triggers, MongoDB by only ever issuing InsertOne
//
// Insertion order:
//   - LatestFor returns the last APPENDED snapshot of a document
//     ($natural order in MongoDB, seq in SQLite), not the greatest timestamp
//
// Checkpoint order:
//   - LastSnapshot sorts by versioning_ts DESC, versioning_id DESC
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
