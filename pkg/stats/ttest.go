package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	AlternativeTwoSided = "two-sided"
	AlternativeSmaller  = "smaller"
	AlternativeLarger   = "larger"
)

type ttestModel struct{}

func (ttestModel) Name() string { return ModelTTest }

func (ttestModel) Predict([][]float64) ([]float64, error) {
	return nil, fmt.Errorf("%w: a t-test does not predict", ErrInvalidData)
}

// TTest compares the means of two independent samples. With equalVar the
// pooled variance is used, otherwise Welch's correction.
func TTest(a, b []float64, alternative string, alpha float64, equalVar bool) (*Results, error) {
	a, b = DropNaN(a), DropNaN(b)
	if err := requireLen("t-test sample 1", a, 2); err != nil {
		return nil, err
	}
	if err := requireLen("t-test sample 2", b, 2); err != nil {
		return nil, err
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("%w: alpha must be in (0, 1), got %v", ErrInvalidData, alpha)
	}

	n1, n2 := float64(len(a)), float64(len(b))
	m1, v1 := stat.MeanVariance(a, nil)
	m2, v2 := stat.MeanVariance(b, nil)

	var se, df float64
	if equalVar {
		df = n1 + n2 - 2
		pooled := ((n1-1)*v1 + (n2-1)*v2) / df
		se = math.Sqrt(pooled * (1/n1 + 1/n2))
	} else {
		q1, q2 := v1/n1, v2/n2
		se = math.Sqrt(q1 + q2)
		df = (q1 + q2) * (q1 + q2) / (q1*q1/(n1-1) + q2*q2/(n2-1))
	}
	if se == 0 {
		return nil, fmt.Errorf("%w: both samples are constant", ErrInvalidData)
	}
	t := (m1 - m2) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}

	var p float64
	switch alternative {
	case AlternativeTwoSided, "":
		alternative = AlternativeTwoSided
		p = 2 * dist.Survival(math.Abs(t))
	case AlternativeSmaller:
		p = dist.CDF(t)
	case AlternativeLarger:
		p = dist.Survival(t)
	default:
		return nil, fmt.Errorf("%w: unknown alternative %q", ErrInvalidData, alternative)
	}

	reject := 0.0
	if p < alpha {
		reject = 1
	}
	st := map[string]float64{
		"n1": n1, "n2": n2,
		"mean1": m1, "mean2": m2,
		"std1": math.Sqrt(v1), "std2": math.Sqrt(v2),
		"alpha": alpha, "reject": reject,
	}
	setFinite(st, "tstat", t)
	setFinite(st, "pvalue", p)
	setFinite(st, "df", df)
	params := map[string]any{"alternative": alternative, "equal_var": equalVar}
	return &Results{Model: ModelTTest, Params: params, Stats: st}, nil
}
