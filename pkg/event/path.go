package event

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind discriminates the kind of a single Path segment.
type SegmentKind uint8

const (
	SegField SegmentKind = iota
	SegIndex
	SegCoalesce
)

// Segment is one step of a field Path: a field name, an array index, or
// a coalesce group (first-present-of a list of field names).
type Segment struct {
	Kind     SegmentKind
	Field    string
	Index    int
	Coalesce []string
}

// Path is a pre-parsed sequence of Segments, resolved against a Value
// with Get/Insert/Remove.
type Path []Segment

// ParsePath parses a dotted path with optional [n] array indices and
// (a|b|c) coalesce groups, e.g. "request.headers[0]" or
// "(hostname|host).name". Paths are parsed once at config time and
// reused across every event a component processes.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("event: empty field path")
	}
	var path Path
	i := 0
	for i < len(s) {
		switch {
		case s[i] == '.':
			i++
		case s[i] == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("event: unterminated index in path %q", s)
			}
			numStr := s[i+1 : i+end]
			n, err := strconv.Atoi(numStr)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("event: invalid array index %q in path %q", numStr, s)
			}
			path = append(path, Segment{Kind: SegIndex, Index: n})
			i += end + 1
		case s[i] == '(':
			end := strings.IndexByte(s[i:], ')')
			if end < 0 {
				return nil, fmt.Errorf("event: unterminated coalesce group in path %q", s)
			}
			group := s[i+1 : i+end]
			names := strings.Split(group, "|")
			for idx := range names {
				names[idx] = strings.TrimSpace(names[idx])
			}
			path = append(path, Segment{Kind: SegCoalesce, Coalesce: names})
			i += end + 1
		default:
			end := i
			for end < len(s) && s[end] != '.' && s[end] != '[' {
				end++
			}
			path = append(path, Segment{Kind: SegField, Field: s[i:end]})
			i = end
		}
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("event: path %q resolved to no segments", s)
	}
	return path, nil
}

// MustParsePath is ParsePath, panicking on error; intended for
// compile-time-known paths (tests, built-in sink configuration).
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Get resolves path against root, returning the matched Value and true
// if every segment resolved, or the zero Value and false otherwise. A
// Coalesce segment tries its alternatives in order and uses the first
// one present.
func Get(root Value, path Path) (Value, bool) {
	if len(path) == 0 {
		return root, true
	}
	seg := path[0]
	switch seg.Kind {
	case SegField:
		obj, ok := root.Object()
		if !ok {
			return Value{}, false
		}
		child, ok := obj.Get(seg.Field)
		if !ok {
			return Value{}, false
		}
		return Get(child, path[1:])
	case SegIndex:
		arr, ok := root.Array()
		if !ok || seg.Index < 0 || seg.Index >= len(arr) {
			return Value{}, false
		}
		return Get(arr[seg.Index], path[1:])
	case SegCoalesce:
		obj, ok := root.Object()
		if !ok {
			return Value{}, false
		}
		for _, name := range seg.Coalesce {
			if child, ok := obj.Get(name); ok {
				if res, ok := Get(child, path[1:]); ok {
					return res, true
				}
			}
		}
		return Value{}, false
	default:
		return Value{}, false
	}
}

// Insert resolves path against root, creating intermediate Objects and
// Arrays as needed, and returns the (possibly new) root Value with
// newVal installed at path. Callers must store the returned Value back
// wherever root came from — Insert cannot mutate root in place when the
// top-level kind itself has to change (e.g. inserting into a Null root).
func Insert(root Value, path Path, newVal Value) (Value, error) {
	if len(path) == 0 {
		return newVal, nil
	}
	seg := path[0]
	switch seg.Kind {
	case SegField:
		obj, ok := root.Object()
		if !ok {
			if !root.IsNull() {
				return root, fmt.Errorf("event: cannot insert field %q into a %s value", seg.Field, root.Kind())
			}
			obj = NewObjectMap()
		}
		child, _ := obj.Get(seg.Field)
		newChild, err := Insert(child, path[1:], newVal)
		if err != nil {
			return root, err
		}
		obj.Set(seg.Field, newChild)
		return NewObject(obj), nil
	case SegIndex:
		arr, ok := root.Array()
		if !ok {
			if !root.IsNull() {
				return root, fmt.Errorf("event: cannot insert index %d into a %s value", seg.Index, root.Kind())
			}
			arr = nil
		}
		for len(arr) <= seg.Index {
			arr = append(arr, Null())
		}
		newChild, err := Insert(arr[seg.Index], path[1:], newVal)
		if err != nil {
			return root, err
		}
		arr[seg.Index] = newChild
		return NewArray(arr), nil
	case SegCoalesce:
		if len(seg.Coalesce) == 0 {
			return root, fmt.Errorf("event: empty coalesce group")
		}
		return Insert(root, append(Path{{Kind: SegField, Field: seg.Coalesce[0]}}, path[1:]...), newVal)
	default:
		return root, fmt.Errorf("event: unknown path segment kind %d", seg.Kind)
	}
}

// Remove deletes whatever path resolves to, returning the (possibly
// updated) root and whether anything was removed.
func Remove(root Value, path Path) (Value, bool) {
	if len(path) == 0 {
		return root, false
	}
	seg := path[0]
	last := len(path) == 1
	switch seg.Kind {
	case SegField:
		obj, ok := root.Object()
		if !ok {
			return root, false
		}
		if last {
			if _, exists := obj.Get(seg.Field); !exists {
				return root, false
			}
			obj.Delete(seg.Field)
			return root, true
		}
		child, ok := obj.Get(seg.Field)
		if !ok {
			return root, false
		}
		newChild, removed := Remove(child, path[1:])
		if removed {
			obj.Set(seg.Field, newChild)
		}
		return root, removed
	case SegIndex:
		arr, ok := root.Array()
		if !ok || seg.Index < 0 || seg.Index >= len(arr) {
			return root, false
		}
		if last {
			arr = append(arr[:seg.Index:seg.Index], arr[seg.Index+1:]...)
			return NewArray(arr), true
		}
		newChild, removed := Remove(arr[seg.Index], path[1:])
		if removed {
			arr[seg.Index] = newChild
		}
		return root, removed
	case SegCoalesce:
		obj, ok := root.Object()
		if !ok {
			return root, false
		}
		for _, name := range seg.Coalesce {
			child, ok := obj.Get(name)
			if !ok {
				continue
			}
			if last {
				obj.Delete(name)
				return root, true
			}
			newChild, removed := Remove(child, path[1:])
			if removed {
				obj.Set(name, newChild)
				return root, true
			}
		}
		return root, false
	default:
		return root, false
	}
}
