package steps

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
)

// Candidate is one ranked column offered for selection.
type Candidate struct {
	Name   string   `json:"name"`
	Score  *float64 `json:"score,omitempty"`
	PValue *float64 `json:"pvalue,omitempty"`
}

// Compare scores every numeric column of df that is not a reference column
// with metric against the reference columns and returns the k best by
// absolute score, ties kept in column order. k <= 0 keeps all. Columns the
// metric cannot score are left out.
func Compare(metric stats.MetricFunc, df *frame.Frame, columns []string, k int, refs ...string) ([]Candidate, error) {
	refCols := make([][]float64, 0, len(refs))
	for _, r := range refs {
		v, err := df.Floats(r)
		if err != nil {
			return nil, fmt.Errorf("reference column: %w", err)
		}
		refCols = append(refCols, v)
	}

	var out []Candidate
	for _, col := range columns {
		if slices.Contains(refs, col) || !df.IsNumeric(col) {
			continue
		}
		x, err := df.Floats(col)
		if err != nil {
			return nil, err
		}
		res, err := metric(x, refCols...)
		if errors.Is(err, stats.ErrInvalidData) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scoring %q: %w", col, err)
		}
		out = append(out, Candidate{Name: col, Score: res.Stats, PValue: res.PValue})
	}

	slices.SortStableFunc(out, func(a, b Candidate) int {
		return cmp.Compare(magnitude(b.Score), magnitude(a.Score))
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func magnitude(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return -1
	}
	return math.Abs(*v)
}
