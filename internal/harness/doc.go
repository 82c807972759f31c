// Package harness runs oplog scenarios through the versioning engine.
//
// A scenario scripts a sequence of oplog entries, runs them through a real
// engine.Engine backed by a temporary SQLite store, and then checks the
// resulting history.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: patient_lifecycle
//	description: "Insert, update and delete one patient"
//	database: clinic            # default "test"
//	collections: [patients]
//	on_stall: stop              # stop | skip
//	oplog:
//	  - op: insert
//	    collection: patients
//	    id: p1
//	    doc: { name: Ada, age: 36 }
//	  - op: update
//	    collection: patients
//	    id: p1
//	    update: { $set: { age: 37 } }
//	  - op: delete
//	    collection: patients
//	    id: p1
//	assertions:
//	  - type: version_count
//	    collection: patients
//	    id: p1
//	    count: 3
//	  - type: latest
//	    collection: patients
//	    id: p1
//	    deleted: true
//
// Mapping keys of doc and update keep their file order, so $set paths are
// applied in the order written.
//
// # Assertion Types
//
//   - version_count: number of snapshots stored for a document
//   - latest: version, tombstone flag and a subset of fields of the newest snapshot
//   - checkpoint: resume point of a collection after the run
//   - channel_state: state of a collection channel when the run ended
//
// # Deterministic Testing
//
// Entries are stamped by testutil.DeterministicClock, starting at
// Timestamp(1700000000, 1), and the run id is fixed, so the history of a
// scenario is identical across runs and can be compared with golden files.
// A scenario file's golden history lives in golden/<file name>.golden next to
// it; `mongoversioning test <dir> --update` rewrites them.
package harness
