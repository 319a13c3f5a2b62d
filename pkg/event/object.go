package event

import "sort"

// Object is an insertion-ordered string-keyed map of Values. Insertion
// order is preserved for iteration (Keys) and for anything that walks
// the structure; only JSON serialization re-sorts keys lexicographically
// per spec so encoded output is reproducible regardless of how the
// object was built.
type Object struct {
	keys []string
	vals map[string]Value
}

// NewObjectMap creates an empty Object.
func NewObjectMap() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Get returns the value at key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Set inserts or overwrites key. Overwriting an existing key does not
// change its position in insertion order.
func (o *Object) Set(key string, v Value) {
	if _, exists := o.vals[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Delete removes key, if present.
func (o *Object) Delete(key string) {
	if _, exists := o.vals[key]; !exists {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Keys returns keys in insertion order. The returned slice must not be
// mutated by the caller.
func (o *Object) Keys() []string { return o.keys }

// SortedKeys returns keys in lexicographic order, as required for
// reproducible JSON serialization.
func (o *Object) SortedKeys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	sort.Strings(out)
	return out
}

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// Clone deep-copies the object, preserving insertion order.
func (o *Object) Clone() *Object {
	cp := &Object{
		keys: make([]string, len(o.keys)),
		vals: make(map[string]Value, len(o.vals)),
	}
	copy(cp.keys, o.keys)
	for k, v := range o.vals {
		cp.vals[k] = v.Clone()
	}
	return cp
}

// Equal reports whether a and b have the same keys mapped to equal
// values; insertion order is not significant for equality.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if len(o.keys) != len(other.keys) {
		return false
	}
	for k, v := range o.vals {
		ov, ok := other.vals[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// ByteSize estimates the in-memory footprint of the object's keys and
// values.
func (o *Object) ByteSize() int {
	size := 0
	for _, k := range o.keys {
		size += len(k) + 8
		size += o.vals[k].ByteSize()
	}
	return size
}
