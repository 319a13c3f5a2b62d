package event

import (
	"fmt"
	"math"
	"time"
)

// Kind discriminates the variant a Value currently holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBytes
	KindInteger
	KindFloat
	KindBoolean
	KindTimestamp
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBytes:
		return "bytes"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is flowgate's recursive sum type for field contents. The zero
// Value is Null. Only the field matching kind is meaningful; Value is
// intentionally a plain struct (not an interface) so most values —
// integers, floats, booleans, timestamps — never allocate.
type Value struct {
	kind Kind
	b    []byte
	i    int64
	f    float64
	bo   bool
	t    time.Time
	arr  []Value
	obj  *Object
}

// Null returns the Null value.
func Null() Value { return Value{kind: KindNull} }

// NewBytes wraps a byte slice. The slice is retained, not copied.
func NewBytes(b []byte) Value { return Value{kind: KindBytes, b: b} }

// NewString wraps a string as Bytes, flowgate's representation for text.
func NewString(s string) Value { return Value{kind: KindBytes, b: []byte(s)} }

// NewInteger wraps an int64.
func NewInteger(i int64) Value { return Value{kind: KindInteger, i: i} }

// NewFloat wraps a float64. Per spec, NaN is never a valid field value;
// callers that might produce NaN (e.g. 0.0/0.0) must check before
// calling this, and must use NewFloatChecked for anything remotely
// untrusted.
func NewFloat(f float64) Value { return Value{kind: KindFloat, f: f} }

// NewFloatChecked wraps f, returning an error if f is NaN. +Inf and
// -Inf are accepted here; the spec only special-cases infinities inside
// histogram upper bounds (see metric.go), which do not go through this
// constructor.
func NewFloatChecked(f float64) (Value, error) {
	if math.IsNaN(f) {
		return Value{}, fmt.Errorf("event: float value is NaN, which is not representable")
	}
	return NewFloat(f), nil
}

// NewBoolean wraps a bool.
func NewBoolean(b bool) Value { return Value{kind: KindBoolean, bo: b} }

// NewTimestamp wraps t, converting it to UTC per spec (local-time values
// are converted on ingress — this constructor is the ingress boundary).
func NewTimestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC()} }

// NewArray wraps a slice of Values. The slice is retained, not copied.
func NewArray(vs []Value) Value { return Value{kind: KindArray, arr: vs} }

// NewObject wraps an ordered map of Values.
func NewObject(o *Object) Value {
	if o == nil {
		o = NewObjectMap()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.b, true
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "<null>"
	case KindBytes:
		return string(v.b)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBoolean:
		return fmt.Sprintf("%t", v.bo)
	case KindTimestamp:
		return v.t.Format(RFC3339Nano)
	case KindArray:
		return fmt.Sprintf("<array len=%d>", len(v.arr))
	case KindObject:
		return fmt.Sprintf("<object len=%d>", v.obj.Len())
	default:
		return "<unknown>"
	}
}

func (v Value) Integer() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.bo, true
}

func (v Value) Timestamp() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.t, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Clone deep-copies v, including nested arrays and objects.
func (v Value) Clone() Value {
	switch v.kind {
	case KindBytes:
		cp := make([]byte, len(v.b))
		copy(cp, v.b)
		return Value{kind: KindBytes, b: cp}
	case KindArray:
		cp := make([]Value, len(v.arr))
		for i, e := range v.arr {
			cp[i] = e.Clone()
		}
		return Value{kind: KindArray, arr: cp}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal reports whether v and other represent the same value. Two Float
// values holding NaN never occur by construction, so no NaN-handling
// special case is needed here.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBytes:
		if len(v.b) != len(other.b) {
			return false
		}
		for i := range v.b {
			if v.b[i] != other.b[i] {
				return false
			}
		}
		return true
	case KindInteger:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBoolean:
		return v.bo == other.bo
	case KindTimestamp:
		return v.t.Equal(other.t)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(other.obj)
	default:
		return false
	}
}

// ByteSize estimates the in-memory footprint of v, used by batchers to
// enforce max_bytes without re-encoding every event on every check.
func (v Value) ByteSize() int {
	const wordSize = 16 // approximate struct + kind tag overhead
	switch v.kind {
	case KindBytes:
		return wordSize + len(v.b)
	case KindArray:
		size := wordSize
		for _, e := range v.arr {
			size += e.ByteSize()
		}
		return size
	case KindObject:
		return wordSize + v.obj.ByteSize()
	default:
		return wordSize
	}
}

// RFC3339Nano is the timestamp layout used throughout flowgate's wire
// and JSON formats: RFC 3339 with full nanosecond precision, always UTC.
const RFC3339Nano = "2006-01-02T15:04:05.000000000Z07:00"
