package doc

import (
	"fmt"
	"strconv"
	"strings"
)

// PathError reports a dotted path that cannot be applied to a document,
// e.g. a path that descends through a string or names a field on an array.
type PathError struct {
	Path    string
	Segment string
	Reason  string
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("path %q at segment %q: %s", e.Path, e.Segment, e.Reason)
}

// SplitPath splits a dotted field path into its segments.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}

// parseIndex reports whether seg is a non-negative decimal integer.
func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// SetPath assigns v at the dotted path inside root. root is modified in place.
// A new field is appended after the existing ones; an existing field keeps
// its position.
//
// Navigation rules:
//   - a missing (or null) intermediate container is created; its kind is chosen
//     by the NEXT segment: an Array when it is a non-negative integer, else an Object
//   - an intermediate index past the end of an Array pads the Array with Null
//   - when the final segment is an integer and the container is an Array, v is
//     INSERTED at that position and later elements shift right; an index past the
//     end appends. Existing elements are never overwritten.
//
// The insert-not-overwrite behaviour is kept on purpose: history written by
// earlier versions of this engine was produced with it.
func SetPath(root *Object, path string, v Value) error {
	updated, err := setIn(*root, SplitPath(path), v, path)
	if err != nil {
		return err
	}
	*root = updated.(Object)
	return nil
}

// setIn sets v below container and returns the container, which differs from
// the argument only when an Array had to grow.
func setIn(container Value, segs []string, v Value, path string) (Value, error) {
	head := segs[0]

	if len(segs) == 1 {
		switch c := container.(type) {
		case Object:
			c.Set(head, v)
			return c, nil
		case Array:
			idx, ok := parseIndex(head)
			if !ok {
				return nil, &PathError{Path: path, Segment: head, Reason: "field name on array"}
			}
			return insertAt(c, idx, v), nil
		default:
			return nil, &PathError{Path: path, Segment: head, Reason: fmt.Sprintf("cannot set field on %s", kindOf(container))}
		}
	}

	child, err := childOf(container, head, path)
	if err != nil {
		return nil, err
	}
	if IsNull(child) {
		if _, ok := parseIndex(segs[1]); ok {
			child = Array{}
		} else {
			child = Object{}
		}
	}

	updated, err := setIn(child, segs[1:], v, path)
	if err != nil {
		return nil, err
	}
	return assign(container, head, updated, path)
}

// childOf returns the value stored under seg, or nil when it is absent.
func childOf(container Value, seg, path string) (Value, error) {
	switch c := container.(type) {
	case Object:
		v, _ := c.Get(seg)
		return v, nil
	case Array:
		idx, ok := parseIndex(seg)
		if !ok {
			return nil, &PathError{Path: path, Segment: seg, Reason: "field name on array"}
		}
		if idx >= len(c) {
			return nil, nil
		}
		return c[idx], nil
	default:
		return nil, &PathError{Path: path, Segment: seg, Reason: fmt.Sprintf("cannot traverse %s", kindOf(container))}
	}
}

// assign stores child under seg, padding Arrays with Null when needed.
func assign(container Value, seg string, child Value, path string) (Value, error) {
	switch c := container.(type) {
	case Object:
		c.Set(seg, child)
		return c, nil
	case Array:
		idx, _ := parseIndex(seg) // validated by childOf
		for len(c) <= idx {
			c = append(c, Null{})
		}
		c[idx] = child
		return c, nil
	default:
		return nil, &PathError{Path: path, Segment: seg, Reason: fmt.Sprintf("cannot assign into %s", kindOf(container))}
	}
}

// insertAt inserts v at idx, appending when idx is past the end.
func insertAt(arr Array, idx int, v Value) Array {
	if idx >= len(arr) {
		return append(arr, v)
	}
	arr = append(arr, nil)
	copy(arr[idx+1:], arr[idx:])
	arr[idx] = v
	return arr
}

// UnsetPath removes the value at the dotted path inside root, modifying root
// in place. Missing containers are never created: when any prefix of the path
// does not resolve, UnsetPath is a no-op. Removing an Array element leaves a
// Null in its slot so later indexes keep their positions.
//
// Returns true if a value was removed.
func UnsetPath(root *Object, path string) bool {
	updated, removed := unsetIn(*root, SplitPath(path))
	if removed {
		*root = updated.(Object)
	}
	return removed
}

// unsetIn removes segs below container and returns the updated container.
func unsetIn(container Value, segs []string) (Value, bool) {
	head := segs[0]
	last := len(segs) == 1

	switch c := container.(type) {
	case Object:
		child, ok := c.Get(head)
		if !ok {
			return c, false
		}
		if last {
			c.Delete(head)
			return c, true
		}
		updated, removed := unsetIn(child, segs[1:])
		if removed {
			c.Set(head, updated)
		}
		return c, removed
	case Array:
		idx, ok := parseIndex(head)
		if !ok || idx >= len(c) {
			return c, false
		}
		if last {
			c[idx] = Null{}
			return c, true
		}
		updated, removed := unsetIn(c[idx], segs[1:])
		if removed {
			c[idx] = updated
		}
		return c, removed
	default:
		return container, false
	}
}

// kindOf names the kind of v for error messages.
func kindOf(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return "bool"
	case Int32, Int, Double:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case Opaque:
		return "bson scalar"
	default:
		return fmt.Sprintf("%T", v)
	}
}
