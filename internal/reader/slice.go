package reader

import "github.com/lazycsv/lazycsv/internal/lazyerr"

// Slice is a half-open, optionally-stepped range over one axis, with
// Python's slice semantics: nil bounds mean "to the edge" in the
// direction of Step, negative bounds count from the end, and out-of-range
// bounds clamp instead of failing (only a single out-of-range index is a
// hard failure, per spec.md §4.E).
type Slice struct {
	Start *int
	Stop  *int
	Step  int // 0 is treated as 1
}

// Indices expands s against an axis of the given length into the
// concrete, in-order list of indices it selects.
func (s Slice) Indices(length int) ([]int, error) {
	step := s.Step
	if step == 0 {
		step = 1
	}

	var lo, hi int
	if step > 0 {
		lo, hi = 0, length
	} else {
		lo, hi = -1, length-1
	}

	start := ifElse(step > 0, 0, length-1)
	if s.Start != nil {
		start = clampSliceBound(normalizeSliceIndex(*s.Start, length), lo, hi)
	}
	stop := ifElse(step > 0, length, -1)
	if s.Stop != nil {
		stop = clampSliceBound(normalizeSliceIndex(*s.Stop, length), lo, hi)
	}

	var out []int
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

// ResolveIndex turns a single (possibly negative) index into an absolute
// one, failing with OutOfRange if it falls outside [0, length).
func ResolveIndex(i, length int) (int, error) {
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, lazyerr.New(lazyerr.OutOfRange, "index out of bounds")
	}
	return i, nil
}

func normalizeSliceIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	return i
}

func clampSliceBound(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

func ifElse(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}
