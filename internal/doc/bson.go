package doc

import (
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FromBSON decodes a raw BSON document into an Object.
// An empty raw document decodes to an empty Object.
func FromBSON(raw bson.Raw) (Object, error) {
	if len(raw) == 0 {
		return Object{}, nil
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode bson document: %w", err)
	}
	return FromD(d), nil
}

// FromD converts an ordered BSON document into an Object, keeping its field
// order. A later duplicate key replaces the earlier value in place.
func FromD(d bson.D) Object {
	obj := make(Object, 0, len(d))
	for _, e := range d {
		obj.Set(e.Key, FromAny(e.Value))
	}
	return obj
}

// fromMap converts an unordered map. Keys are taken in SortedKeys order so
// the result does not depend on map iteration.
func fromMap[M ~map[string]any](m M) Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	obj := make(Object, len(keys))
	for i, k := range keys {
		obj[i] = Field{Key: k, Value: FromAny(m[k])}
	}
	return obj
}

// FromAny converts a value produced by the BSON decoder (or built by hand in
// Go code) into a Value.
func FromAny(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Value:
		return val
	case primitive.Null, primitive.Undefined:
		return Null{}
	case bool:
		return Bool(val)
	case int:
		return Int(val)
	case int32:
		return Int32(val)
	case int64:
		return Int(val)
	case float64:
		return Double(val)
	case string:
		return String(val)
	case bson.D:
		return FromD(val)
	case bson.M:
		return fromMap(val)
	case map[string]any:
		return fromMap(val)
	case bson.A:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = FromAny(elem)
		}
		return arr
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			arr[i] = FromAny(elem)
		}
		return arr
	default:
		return Opaque{V: v}
	}
}

// D converts o into a BSON document with the same field order.
func (o Object) D() bson.D {
	d := make(bson.D, len(o))
	for i, f := range o {
		d[i] = bson.E{Key: f.Key, Value: ToBSON(f.Value)}
	}
	return d
}

// ToBSON converts a Value into the representation the BSON encoder expects.
func ToBSON(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int32:
		return int32(val)
	case Int:
		return int64(val)
	case Double:
		return float64(val)
	case String:
		return string(val)
	case Array:
		a := make(bson.A, len(val))
		for i, elem := range val {
			a[i] = ToBSON(elem)
		}
		return a
	case Object:
		return val.D()
	case Opaque:
		return val.V
	default:
		panic(fmt.Sprintf("doc: unknown value type %T", v))
	}
}
