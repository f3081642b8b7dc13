package pose

import (
	"math"

	"github.com/gwillem/glove/pkg/glove"
)

// RangeTracker records the min and max angle per finger, in degrees, since
// the last reset. Diagnostics only; mapping never reads it.
type RangeTracker struct {
	min [glove.NumFingers]float64
	max [glove.NumFingers]float64
}

// NewRangeTracker returns a tracker with empty intervals.
func NewRangeTracker() *RangeTracker {
	r := &RangeTracker{}
	r.Reset()
	return r
}

// Reset sets every interval to (+Inf, -Inf).
func (r *RangeTracker) Reset() {
	for i := range r.min {
		r.min[i] = math.Inf(1)
		r.max[i] = math.Inf(-1)
	}
}

// Observe widens the intervals to include deg.
func (r *RangeTracker) Observe(deg [glove.NumFingers]float64) {
	for i, d := range deg {
		if d < r.min[i] {
			r.min[i] = d
		}
		if d > r.max[i] {
			r.max[i] = d
		}
	}
}

// Bounds returns min and max for finger i. Before any observation min is
// +Inf and max is -Inf.
func (r *RangeTracker) Bounds(i int) (lo, hi float64) {
	return r.min[i], r.max[i]
}

// Range returns max - min per finger, 0 for fingers not yet observed.
func (r *RangeTracker) Range() [glove.NumFingers]float64 {
	var out [glove.NumFingers]float64
	for i := range out {
		if r.max[i] >= r.min[i] {
			out[i] = r.max[i] - r.min[i]
		}
	}
	return out
}
