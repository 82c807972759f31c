package doc

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface representing a document value.
// Only Null, Bool, Int32, Int, Double, String, Array, Object and Opaque
// implement it.
type Value interface {
	docValue() // Sealed - only these types implement it
}

// Null represents an explicit null field value.
type Null struct{}

func (Null) docValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) docValue() {}

// Int32 represents a BSON int32. It is kept apart from Int so documents are
// written back with the numeric type they were read with.
type Int32 int32

func (Int32) docValue() {}

// Int represents a BSON int64.
type Int int64

func (Int) docValue() {}

// Double represents a BSON double.
type Double float64

func (Double) docValue() {}

// String represents a UTF-8 string value.
type String string

func (String) docValue() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) docValue() {}

// Field is one named value of an Object.
type Field struct {
	Key   string
	Value Value
}

// Object represents a document as its fields in insertion order. Keys are
// unique; Set replaces an existing field where it stands.
type Object []Field

func (Object) docValue() {}

// Opaque wraps a BSON scalar the engine does not interpret (ObjectID,
// DateTime, Decimal128, Binary, Regex, Timestamp, ...). It is carried through
// replay untouched.
type Opaque struct {
	V any
}

func (Opaque) docValue() {}

// Get returns the value stored under key.
func (o Object) Get(key string) (Value, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set stores v under key. An existing field keeps its position; a new one is
// appended.
func (o *Object) Set(key string, v Value) {
	for i := range *o {
		if (*o)[i].Key == key {
			(*o)[i].Value = v
			return
		}
	}
	*o = append(*o, Field{Key: key, Value: v})
}

// Delete removes key and reports whether it was present. The remaining
// fields keep their order.
func (o *Object) Delete(key string) bool {
	for i := range *o {
		if (*o)[i].Key == key {
			*o = append((*o)[:i:i], (*o)[i+1:]...)
			return true
		}
	}
	return false
}

// Keys returns the field names in document order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, f := range o {
		keys[i] = f.Key
	}
	return keys
}

// SortedKeys returns keys in UTF-16 code unit order (RFC 8785).
func (o Object) SortedKeys() []string {
	keys := o.Keys()
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// Sorted returns a copy of the fields ordered by SortedKeys.
func (o Object) Sorted() []Field {
	out := slices.Clone(o)
	slices.SortFunc(out, func(a, b Field) int { return compareKeysUTF16(a.Key, b.Key) })
	return out
}

// Without returns a shallow copy of o with the given keys removed.
func (o Object) Without(keys ...string) Object {
	out := make(Object, 0, len(o))
	for _, f := range o {
		if !slices.Contains(keys, f.Key) {
			out = append(out, f)
		}
	}
	return out
}

// compareKeysUTF16 compares strings using UTF-16 code unit ordering.
// Go's default string comparison uses UTF-8 which orders supplementary
// characters differently.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Clone returns a deep copy of v. Opaque values are copied by value.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		return CloneObject(val)
	default:
		return v
	}
}

// CloneObject returns a deep copy of o. A nil object clones to an empty one.
func CloneObject(o Object) Object {
	out := make(Object, len(o))
	for i, f := range o {
		out[i] = Field{Key: f.Key, Value: Clone(f.Value)}
	}
	return out
}

// IsNull reports whether v is absent or an explicit Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
