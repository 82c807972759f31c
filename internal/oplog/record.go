// Package oplog reads MongoDB replication oplog entries.
//
// It provides the typed Record decoded from raw oplog documents, the tailing
// Filter built from per-collection resume points, and the Source/Cursor
// abstractions over a live replica set (MongoSource) or a dumped oplog.bson
// file (FileSource). Tailer wraps a Cursor with terminal-error semantics.
package oplog

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OpKind is the operation kind of an oplog entry.
type OpKind int

const (
	// OpOther covers commands, no-ops and anything else that carries no
	// document mutation for a versioned collection.
	OpOther OpKind = iota
	// OpInsert is an inserted document ("i").
	OpInsert
	// OpUpdate is an update descriptor with a selector ("u").
	OpUpdate
	// OpDelete is a deleted document ("d").
	OpDelete
)

// ParseOpKind maps the oplog "op" letter onto an OpKind.
func ParseOpKind(op string) OpKind {
	switch op {
	case "i":
		return OpInsert
	case "u":
		return OpUpdate
	case "d":
		return OpDelete
	default:
		return OpOther
	}
}

// String returns the lowercase operation name.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "other"
	}
}

// Record is one decoded oplog entry.
type Record struct {
	Op        OpKind
	RawOp     string // original "op" letter, kept for logging of OpOther
	Namespace string // "<database>.<collection>"
	TS        Timestamp

	// Payload is "o": the full document for inserts and deletes, the update
	// descriptor for updates. Field order is preserved.
	Payload bson.D

	// Selector is "o2": identifies the updated document. Only set for updates.
	Selector bson.D
}

// Collection returns the collection part of the namespace. Collection names
// may themselves contain dots, so only the first dot separates the database.
func (r Record) Collection() string {
	_, coll, _ := strings.Cut(r.Namespace, ".")
	return coll
}

// Database returns the database part of the namespace.
func (r Record) Database() string {
	db, _, _ := strings.Cut(r.Namespace, ".")
	return db
}

// entry mirrors the on-disk oplog document layout.
type entry struct {
	Timestamp primitive.Timestamp `bson:"ts"`
	Operation string              `bson:"op"`
	Namespace string              `bson:"ns"`
	Object    bson.D              `bson:"o"`
	Query     bson.D              `bson:"o2,omitempty"`
}

// Decode converts a raw oplog document into a Record.
func Decode(raw bson.Raw) (Record, error) {
	var e entry
	if err := bson.Unmarshal(raw, &e); err != nil {
		return Record{}, fmt.Errorf("decode oplog entry: %w", err)
	}
	return Record{
		Op:        ParseOpKind(e.Operation),
		RawOp:     e.Operation,
		Namespace: e.Namespace,
		TS:        FromPrimitive(e.Timestamp),
		Payload:   e.Object,
		Selector:  e.Query,
	}, nil
}

// Encode renders r back into oplog document form. Used to write oplog.bson
// fixtures and by tests.
func Encode(r Record) (bson.Raw, error) {
	e := entry{
		Timestamp: r.TS.Primitive(),
		Operation: r.RawOp,
		Namespace: r.Namespace,
		Object:    r.Payload,
		Query:     r.Selector,
	}
	if e.Operation == "" {
		e.Operation = opLetter(r.Op)
	}
	if e.Object == nil {
		e.Object = bson.D{}
	}
	data, err := bson.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode oplog entry: %w", err)
	}
	return data, nil
}

func opLetter(k OpKind) string {
	switch k {
	case OpInsert:
		return "i"
	case OpUpdate:
		return "u"
	case OpDelete:
		return "d"
	default:
		return "n"
	}
}
