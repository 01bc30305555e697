package lights

import (
	"math"

	"github.com/pkg/errors"
)

// Open stands for an omitted slice bound, like leaving out one side of a[:j].
const Open = math.MinInt

// Range is an arithmetic progression of lattice indices: Start, Start+Step,
// ... up to but excluding Stop.
type Range struct {
	Start, Stop, Step int
}

// NewRange returns the range [0, n).
func NewRange(n int) Range {
	return Range{Start: 0, Stop: n, Step: 1}
}

// Len returns the number of indices in the range.
func (r Range) Len() int {
	switch {
	case r.Step > 0 && r.Stop > r.Start:
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	case r.Step < 0 && r.Stop < r.Start:
		return (r.Start - r.Stop - r.Step - 1) / -r.Step
	default:
		return 0
	}
}

// At returns the i-th index of the range. A negative i counts from the end,
// once; anything still outside the range is an *IndexError.
func (r Range) At(i int) (int, error) {
	n := r.Len()
	k := i
	if k < 0 {
		k += n
	}
	if k < 0 || k >= n {
		return 0, &IndexError{Index: i, Len: n}
	}
	return r.Start + k*r.Step, nil
}

// Indices returns every index of the range in order.
func (r Range) Indices() []int {
	n := r.Len()
	out := make([]int, n)
	for k := range out {
		out[k] = r.Start + k*r.Step
	}
	return out
}

// Slice returns the sub-range selected by start, stop and step, which are
// positions within r and follow slice-expression rules: negative positions
// count from the end, out-of-range bounds are clamped and Open means the
// bound was left out. The result holds absolute indices, so slicing a slice
// composes.
func (r Range) Slice(start, stop, step int) (Range, error) {
	if step == Open {
		step = 1
	}
	if step == 0 {
		return Range{}, errors.New("slice step cannot be zero")
	}

	start, stop = sliceBounds(start, stop, step, r.Len())
	return Range{
		Start: r.Start + start*r.Step,
		Stop:  r.Start + stop*r.Step,
		Step:  r.Step * step,
	}, nil
}

func sliceBounds(start, stop, step, n int) (int, int) {
	lower, upper := 0, n
	if step < 0 {
		lower, upper = -1, n-1
	}

	clamp := func(v, def int) int {
		if v == Open {
			return def
		}
		if v < 0 {
			v += n
			if v < lower {
				v = lower
			}
		} else if v > upper {
			v = upper
		}
		return v
	}

	if step > 0 {
		return clamp(start, lower), clamp(stop, upper)
	}
	return clamp(start, upper), clamp(stop, lower)
}
