// Package replay reconstructs a full document from a base snapshot and an
// oplog update descriptor.
//
// Supported descriptor forms, applied in this order:
//
//	{$set: {<dotted path>: <value>, ...}}
//	{$unset: {<dotted path>: <ignored>, ...}}
//	{<field>: <value>, ...}   replacement form, applied as if each were a $set entry
//
// Other operator keys ($v, $inc, diff documents, ...) are not replayed; they are
// reported in Descriptor.Dropped so callers can log them.
package replay

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/mongoversioning/internal/doc"
)

// IDField is the source document identity field. It is never copied into a
// replayed body.
const IDField = "_id"

// Entry is one path assignment of a descriptor.
type Entry struct {
	Path  string
	Value doc.Value
}

// Descriptor is an update descriptor split into its operator forms.
// Entry order is the order the fields appeared in the oplog entry.
type Descriptor struct {
	Set     []Entry
	Unset   []string
	Replace []Entry
	Dropped []string
}

// ParseDescriptor splits an oplog update payload into its forms.
func ParseDescriptor(o bson.D) Descriptor {
	var d Descriptor
	for _, e := range o {
		switch {
		case e.Key == "$set":
			d.Set = append(d.Set, entries(e.Value)...)
		case e.Key == "$unset":
			for _, u := range entries(e.Value) {
				d.Unset = append(d.Unset, u.Path)
			}
		case e.Key == IDField:
			// identity is carried by the snapshot, never by the body
		case strings.HasPrefix(e.Key, "$"):
			d.Dropped = append(d.Dropped, e.Key)
		default:
			d.Replace = append(d.Replace, Entry{Path: e.Key, Value: doc.FromAny(e.Value)})
		}
	}
	return d
}

// entries flattens an operator sub-document into ordered entries.
func entries(v any) []Entry {
	switch m := v.(type) {
	case bson.D:
		out := make([]Entry, 0, len(m))
		for _, e := range m {
			out = append(out, Entry{Path: e.Key, Value: doc.FromAny(e.Value)})
		}
		return out
	case bson.M:
		obj := doc.FromAny(m).(doc.Object)
		return objectEntries(obj)
	case doc.Object:
		return objectEntries(m)
	default:
		return nil
	}
}

func objectEntries(obj doc.Object) []Entry {
	out := make([]Entry, len(obj))
	for i, f := range obj {
		out[i] = Entry{Path: f.Key, Value: f.Value}
	}
	return out
}

// Apply returns the document obtained by replaying d on base.
// base is not modified. Fields of base keep their order; fields created by d
// follow in descriptor order.
func Apply(base doc.Object, d Descriptor) (doc.Object, error) {
	out := doc.CloneObject(base)

	for _, e := range d.Set {
		if err := doc.SetPath(&out, e.Path, doc.Clone(e.Value)); err != nil {
			return nil, fmt.Errorf("$set: %w", err)
		}
	}
	for _, path := range d.Unset {
		doc.UnsetPath(&out, path)
	}
	for _, e := range d.Replace {
		if err := doc.SetPath(&out, e.Path, doc.Clone(e.Value)); err != nil {
			return nil, fmt.Errorf("replacement: %w", err)
		}
	}

	return out.Without(IDField), nil
}
