package oplog

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timestamp is an oplog logical timestamp: seconds plus an ordinal within
// that second. Timestamps are totally ordered by (T, I).
type Timestamp struct {
	T uint32 `json:"t"`
	I uint32 `json:"i"`
}

// Zero is the resume sentinel for a collection with no history yet.
// Every real oplog entry is strictly after it.
var Zero = Timestamp{}

// FromPrimitive converts a driver timestamp.
func FromPrimitive(p primitive.Timestamp) Timestamp {
	return Timestamp{T: p.T, I: p.I}
}

// Primitive converts t to the driver representation used in queries.
func (t Timestamp) Primitive() primitive.Timestamp {
	return primitive.Timestamp{T: t.T, I: t.I}
}

// Compare returns -1, 0 or +1 comparing t to o lexicographically.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.T < o.T:
		return -1
	case t.T > o.T:
		return 1
	case t.I < o.I:
		return -1
	case t.I > o.I:
		return 1
	}
	return 0
}

// After reports whether t is strictly later than o.
func (t Timestamp) After(o Timestamp) bool {
	return t.Compare(o) > 0
}

// IsZero reports whether t is the Zero sentinel.
func (t Timestamp) IsZero() bool {
	return t == Zero
}

// String renders t the way the mongo shell does.
func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(%d, %d)", t.T, t.I)
}
