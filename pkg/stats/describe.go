package stats

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the p-quantile of x using linear interpolation of the
// empirical CDF. NaN values are ignored.
func Quantile(x []float64, p float64) float64 {
	sorted := DropNaN(x)
	if len(sorted) == 0 {
		return math.NaN()
	}
	slices.Sort(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// DropNaN returns a copy of x without NaN values.
func DropNaN(x []float64) []float64 {
	out := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// complete drops every position where any of the columns is NaN.
func complete(cols ...[]float64) [][]float64 {
	if len(cols) == 0 {
		return nil
	}
	out := make([][]float64, len(cols))
	for i := range cols[0] {
		ok := true
		for _, c := range cols {
			if math.IsNaN(c[i]) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		for j, c := range cols {
			out[j] = append(out[j], c[i])
		}
	}
	return out
}

func requireLen(name string, x []float64, n int) error {
	if len(x) < n {
		return fmt.Errorf("%w: %s needs at least %d observations, got %d", ErrInvalidData, name, n, len(x))
	}
	return nil
}

// finite returns a pointer to v, or nil when v is NaN or infinite.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func setFinite(m map[string]float64, key string, v float64) {
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		m[key] = v
	}
}
