package nn

import (
	"fmt"
	"math"
	"sort"
)

// PearsonCorrelation returns the linear correlation of a and b. Constant
// inputs have no correlation and yield 0.
func PearsonCorrelation(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d values", ErrShapeMismatch, len(a), len(b))
	}
	x := make([]float64, len(a))
	y := make([]float64, len(b))
	for i := range a {
		x[i], y[i] = float64(a[i]), float64(b[i])
	}
	return pearson(x, y), nil
}

// SpearmanCorrelation returns the rank correlation of a and b, averaging
// ranks over ties.
func SpearmanCorrelation(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d values", ErrShapeMismatch, len(a), len(b))
	}
	return pearson(ranks(a), ranks(b)), nil
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0 // No correlation if no variance
	}
	return cov / math.Sqrt(vx*vy)
}

// ranks assigns 1-based ranks, ties sharing their average rank
func ranks(v []float32) []float64 {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })

	out := make([]float64, len(v))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && v[idx[j]] == v[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			out[idx[k]] = avg
		}
		i = j
	}
	return out
}
