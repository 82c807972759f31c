// Package doc provides the typed document model used by the versioning engine.
//
// Documents read from the oplog and from history collections are converted
// into a small sealed sum type (Null, Bool, Int32, Int, Double, String, Array,
// Object, Opaque) so that the update replay rules can be written as pure
// functions over explicit value kinds instead of loosely-typed nested maps.
//
// Key design constraints:
//   - doc imports nothing internal; oplog, replay, store and engine build on it
//   - Object keeps the source field order at every level; canonical JSON
//     output sorts keys itself
//   - BSON-only scalars (ObjectID, DateTime, Decimal128, Binary, ...) travel as
//     Opaque and are written back exactly as they were read
package doc
