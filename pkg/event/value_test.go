package event

import (
	"math"
	"testing"
	"time"
)

func TestNewFloatCheckedRejectsNaN(t *testing.T) {
	if _, err := NewFloatChecked(math.NaN()); err == nil {
		t.Fatal("expected error for NaN")
	}
	if _, err := NewFloatChecked(math.Inf(1)); err != nil {
		t.Fatalf("unexpected error for +Inf: %v", err)
	}
}

func TestNewTimestampForcesUTC(t *testing.T) {
	loc := time.FixedZone("test", 3600)
	local := time.Date(2026, 1, 1, 12, 0, 0, 0, loc)
	v := NewTimestamp(local)
	ts, ok := v.Timestamp()
	if !ok {
		t.Fatal("expected timestamp kind")
	}
	if ts.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", ts.Location())
	}
	if !ts.Equal(local) {
		t.Fatalf("expected equal instant, got %v vs %v", ts, local)
	}
}

func TestValueCloneIsIndependent(t *testing.T) {
	b := []byte("hello")
	v := NewBytes(b)
	cp := v.Clone()
	b[0] = 'H'
	got, _ := cp.Bytes()
	if string(got) != "hello" {
		t.Fatalf("clone observed mutation of source slice: %q", got)
	}
}

func TestValueEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null equal", Null(), Null(), true},
		{"integers equal", NewInteger(5), NewInteger(5), true},
		{"integers differ", NewInteger(5), NewInteger(6), false},
		{"different kinds", NewInteger(5), NewFloat(5), false},
		{"bytes equal", NewString("x"), NewString("x"), true},
		{"arrays equal", NewArray([]Value{NewInteger(1), NewInteger(2)}), NewArray([]Value{NewInteger(1), NewInteger(2)}), true},
		{"arrays differ", NewArray([]Value{NewInteger(1)}), NewArray([]Value{NewInteger(2)}), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Equal(c.b); got != c.want {
				t.Errorf("Equal() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestValueByteSizeGrowsWithContent(t *testing.T) {
	small := NewString("a")
	large := NewString("a much longer string value")
	if large.ByteSize() <= small.ByteSize() {
		t.Fatalf("expected larger string to report larger byte size")
	}
}
