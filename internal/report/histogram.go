package report

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bucket is one histogram bin covering [Min, Max).
type Bucket struct {
	Min   float64
	Max   float64
	Count int
}

// Histogram is a fixed-width binning of a value set.
type Histogram struct {
	Buckets []Bucket
}

// Total returns the number of binned values.
func (h Histogram) Total() int {
	n := 0
	for _, b := range h.Buckets {
		n += b.Count
	}
	return n
}

// NewHistogram bins values into the given number of equal-width buckets
// spanning [min, max]. A constant value set produces a single bucket and an
// empty set produces none. values is sorted in place.
func NewHistogram(values []float64, bins int) Histogram {
	if len(values) == 0 || bins <= 0 {
		return Histogram{}
	}
	sort.Float64s(values)
	lo, hi := values[0], values[len(values)-1]
	if lo == hi {
		bins = 1
	}
	// The top divider is exclusive, so nudge it past the largest value.
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, values, nil)
	h := Histogram{Buckets: make([]Bucket, bins)}
	for i := range h.Buckets {
		h.Buckets[i] = Bucket{Min: dividers[i], Max: dividers[i+1], Count: int(counts[i])}
	}
	return h
}
