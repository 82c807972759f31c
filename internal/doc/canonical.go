package doc

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical renders v as canonical JSON: object keys in UTF-16 order,
// strings NFC normalized, no HTML escaping, no insignificant whitespace.
//
// Opaque BSON scalars are rendered in MongoDB canonical extended JSON form
// ({"$oid": ...}, {"$date": ...}, ...) so the output is stable and readable by
// mongosh tooling.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Double:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite double %v has no canonical JSON form", f)
		}
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case String:
		return writeCanonicalString(buf, string(val))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, f := range val.Sorted() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, f.Key); err != nil {
				return fmt.Errorf("key %q: %w", f.Key, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, f.Value); err != nil {
				return fmt.Errorf("value for key %q: %w", f.Key, err)
			}
		}
		buf.WriteByte('}')
	case Opaque:
		return writeCanonical(buf, extendedJSON(val.V))
	default:
		return fmt.Errorf("unsupported value type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalString writes a JSON string with NFC normalization and
// without HTML escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false) // CRITICAL: <, >, & must NOT be escaped
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	// json.Encoder adds trailing newline, remove it
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// extendedJSON maps a BSON scalar to its canonical extended JSON shape.
func extendedJSON(v any) Value {
	switch val := v.(type) {
	case primitive.ObjectID:
		return singleField("$oid", String(val.Hex()))
	case primitive.DateTime:
		return singleField("$date", singleField("$numberLong", String(strconv.FormatInt(int64(val), 10))))
	case primitive.Timestamp:
		return singleField("$timestamp", Object{{Key: "t", Value: Int(val.T)}, {Key: "i", Value: Int(val.I)}})
	case primitive.Decimal128:
		return singleField("$numberDecimal", String(val.String()))
	case primitive.Binary:
		return singleField("$binary", Object{
			{Key: "base64", Value: String(base64.StdEncoding.EncodeToString(val.Data))},
			{Key: "subType", Value: String(fmt.Sprintf("%02x", val.Subtype))},
		})
	case primitive.Regex:
		return singleField("$regularExpression", Object{
			{Key: "pattern", Value: String(val.Pattern)},
			{Key: "options", Value: String(val.Options)},
		})
	case primitive.MinKey:
		return singleField("$minKey", Int(1))
	case primitive.MaxKey:
		return singleField("$maxKey", Int(1))
	default:
		return String(fmt.Sprint(val))
	}
}

func singleField(key string, v Value) Object {
	return Object{{Key: key, Value: v}}
}
