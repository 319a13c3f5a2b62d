package event

import (
	"math"
	"testing"
)

func TestHistogramBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		name string
		v    float64
		want int
	}{
		{"negative lands in bucket 0", -5, 0},
		{"zero lands in bucket 0", 0, 0},
		{"floor value lands in bucket 0", 1.0 / 64.0, 0},
		{"+Inf lands in last bucket", math.Inf(1), HistogramBuckets - 1},
		{"max finite bound lands in last finite bucket", 4096, HistogramBuckets - 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := histogramBucketIndex(c.v); got != c.want {
				t.Errorf("histogramBucketIndex(%v) = %d, want %d", c.v, got, c.want)
			}
		})
	}
}

func TestHistogramRecordAccumulates(t *testing.T) {
	h := NewHistogram()
	h.Record(1)
	h.Record(1)
	h.Record(-10)

	buckets, count, sum := h.Snapshot()
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	if sum != -8 {
		t.Fatalf("sum = %v, want -8", sum)
	}
	if buckets[0].Count != 1 {
		t.Fatalf("bucket 0 count = %d, want 1 (from the negative observation)", buckets[0].Count)
	}
}

func TestHistogramBucketBoundsEndsWithInf(t *testing.T) {
	bounds := HistogramBucketBounds()
	if !math.IsInf(bounds[HistogramBuckets-1], 1) {
		t.Fatalf("last bound = %v, want +Inf", bounds[HistogramBuckets-1])
	}
	if bounds[0] != 1.0/64.0 {
		t.Fatalf("first bound = %v, want 2^-6", bounds[0])
	}
}
