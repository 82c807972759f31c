package oplog

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// Bound is the resume point of one versioned collection: only entries
// strictly after After are selected.
type Bound struct {
	Collection string    `json:"collection"`
	After      Timestamp `json:"after"`
}

// Filter selects the oplog entries of every versioned collection with a
// single cursor: a disjunction of (namespace, ts > bound) pairs.
//
// Filter is a value; BuildFilter copies its input so later changes to the
// caller's slice cannot alter a running tail.
type Filter struct {
	Database string
	Bounds   []Bound
}

// BuildFilter builds the tailing filter for database. Disjuncts keep the
// order of bounds, so equal inputs always render identical queries.
func BuildFilter(database string, bounds []Bound) Filter {
	cp := make([]Bound, len(bounds))
	copy(cp, bounds)
	return Filter{Database: database, Bounds: cp}
}

// Namespace returns "<database>.<collection>".
func (f Filter) Namespace(collection string) string {
	return f.Database + "." + collection
}

// BSON renders the filter as a server-side query:
//
//	{$or: [{ns: "<db>.<coll>", ts: {$gt: Timestamp(t, i)}}, ...]}
func (f Filter) BSON() bson.D {
	or := make(bson.A, 0, len(f.Bounds))
	for _, b := range f.Bounds {
		or = append(or, bson.D{
			{Key: "ns", Value: f.Namespace(b.Collection)},
			{Key: "ts", Value: bson.D{{Key: "$gt", Value: b.After.Primitive()}}},
		})
	}
	return bson.D{{Key: "$or", Value: or}}
}

// Match evaluates the filter against an already-decoded record. It is the
// client-side twin of BSON() for sources that cannot push the query down.
func (f Filter) Match(r Record) bool {
	for _, b := range f.Bounds {
		if r.Namespace == f.Namespace(b.Collection) && r.TS.After(b.After) {
			return true
		}
	}
	return false
}

// ExtJSON renders BSON() as relaxed extended JSON for display.
func (f Filter) ExtJSON() (string, error) {
	data, err := bson.MarshalExtJSON(f.BSON(), false, false)
	if err != nil {
		return "", fmt.Errorf("render filter: %w", err)
	}
	return string(data), nil
}

// DatabaseFromURI returns the database named in the path of a MongoDB
// connection string, e.g. "test" for "mongodb://localhost:27017/test".
func DatabaseFromURI(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("parse connection string: %w", err)
	}
	if cs.Database == "" {
		return "", fmt.Errorf("connection string %q names no database", uri)
	}
	return cs.Database, nil
}
