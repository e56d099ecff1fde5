package stats

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	rejectAlpha   = 0.05
	doesReject    = "does reject"
	doesNotReject = "does not reject"
	iqrMultiplier = 1.5

	annotationOnePredictor = "For one predictor, there is no need to check multicollinearity."
)

// Result is the named-field record returned by every metric.
type Result struct {
	Stats           *float64           `json:"stats"`
	PValue          *float64           `json:"pvalue,omitempty"`
	RejectIndicator string             `json:"rejectIndicator,omitempty"`
	Annotation      string             `json:"annotation,omitempty"`
	Values          map[string]float64 `json:"values,omitempty"`
}

// Fields exposes the result for prompt templates. Missing numbers render as
// "None".
func (r Result) Fields() map[string]any {
	fields := map[string]any{
		"stats":           formatNumber(r.Stats),
		"pvalue":          formatNumber(r.PValue),
		"rejectIndicator": r.RejectIndicator,
		"annotation":      r.Annotation,
	}
	for k, v := range r.Values {
		fields[k] = v
	}
	return fields
}

// Rejects reports whether the test rejected its null hypothesis.
func (r Result) Rejects() bool { return r.RejectIndicator == doesReject }

func formatNumber(v *float64) string {
	if v == nil {
		return "None"
	}
	if *v == math.Trunc(*v) && math.Abs(*v) < 1e15 {
		return strconv.FormatInt(int64(*v), 10)
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}

// MetricFunc computes a metric of x, optionally against reference columns.
type MetricFunc func(x []float64, refs ...[]float64) (Result, error)

var (
	metricsMu sync.RWMutex
	metrics   = map[string]MetricFunc{
		"pearson":  Pearson,
		"skewness": Skewness,
		"kurtosis": Kurtosis,
		"outlier":  Outliers,
		"levene":   Levene,
		"shapiro":  Shapiro,
		"vif":      VIF,
	}
)

// Metric looks up a metric by name.
func Metric(name string) (MetricFunc, error) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	fn, ok := metrics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return fn, nil
}

// RegisterMetric adds or replaces a metric.
func RegisterMetric(name string, fn MetricFunc) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metrics[name] = fn
}

// Pearson correlates x with the first reference column.
func Pearson(x []float64, refs ...[]float64) (Result, error) {
	if len(refs) == 0 {
		return Result{}, fmt.Errorf("%w: pearson needs a reference column", ErrInvalidData)
	}
	if len(refs[0]) != len(x) {
		return Result{}, fmt.Errorf("%w: pearson columns differ in length", ErrInvalidData)
	}
	c := complete(x, refs[0])
	if err := requireLen("pearson", c[0], 3); err != nil {
		return Result{}, err
	}
	r := stat.Correlation(c[0], c[1], nil)
	if math.IsNaN(r) {
		return Result{}, fmt.Errorf("%w: pearson is undefined for a constant column", ErrInvalidData)
	}
	df := float64(len(c[0]) - 2)
	var p float64
	if math.Abs(r) >= 1 {
		p = 0
	} else {
		t := r * math.Sqrt(df/(1-r*r))
		p = 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t))
	}
	return Result{Stats: finite(r), PValue: finite(p)}, nil
}

// Skewness returns the sample skewness of x.
func Skewness(x []float64, _ ...[]float64) (Result, error) {
	x = DropNaN(x)
	if err := requireLen("skewness", x, 3); err != nil {
		return Result{}, err
	}
	return Result{Stats: finite(stat.Skew(x, nil))}, nil
}

// Kurtosis returns the sample excess kurtosis of x.
func Kurtosis(x []float64, _ ...[]float64) (Result, error) {
	x = DropNaN(x)
	if err := requireLen("kurtosis", x, 4); err != nil {
		return Result{}, err
	}
	return Result{Stats: finite(stat.ExKurtosis(x, nil))}, nil
}

// Outliers counts values of x outside 1.5 IQR of the quartiles. When a
// reference column is given, the thresholds are taken from it instead, which
// lets a transformed column be compared against the original bounds.
func Outliers(x []float64, refs ...[]float64) (Result, error) {
	base := x
	if len(refs) > 0 && refs[0] != nil {
		base = refs[0]
	}
	if err := requireLen("outlier", DropNaN(base), 1); err != nil {
		return Result{}, err
	}
	lower, upper := Fences(base)
	count := 0.0
	for _, v := range x {
		if v < lower || v > upper {
			count++
		}
	}
	return Result{
		Stats:  &count,
		Values: map[string]float64{"lower_threshold": lower, "upper_threshold": upper},
	}, nil
}

// Fences returns the 1.5 IQR outlier thresholds of x.
func Fences(x []float64) (lower, upper float64) {
	q1, q3 := Quantile(x, 0.25), Quantile(x, 0.75)
	iqr := q3 - q1
	return q1 - iqrMultiplier*iqr, q3 + iqrMultiplier*iqr
}

// Levene tests equality of variances across x and the reference groups using
// deviations from the group medians.
func Levene(x []float64, refs ...[]float64) (Result, error) {
	groups := make([][]float64, 0, len(refs)+1)
	for _, g := range append([][]float64{x}, refs...) {
		g = DropNaN(g)
		if err := requireLen("levene group", g, 2); err != nil {
			return Result{}, err
		}
		groups = append(groups, g)
	}
	if len(groups) < 2 {
		return Result{}, fmt.Errorf("%w: levene needs at least two groups", ErrInvalidData)
	}

	k := float64(len(groups))
	var n float64
	z := make([][]float64, len(groups))
	zMeans := make([]float64, len(groups))
	var zTotal float64
	for i, g := range groups {
		med := Quantile(g, 0.5)
		z[i] = make([]float64, len(g))
		for j, v := range g {
			z[i][j] = math.Abs(v - med)
		}
		zMeans[i] = stat.Mean(z[i], nil)
		zTotal += floats.Sum(z[i])
		n += float64(len(g))
	}
	zGrand := zTotal / n

	var between, within float64
	for i := range groups {
		between += float64(len(z[i])) * (zMeans[i] - zGrand) * (zMeans[i] - zGrand)
		for _, v := range z[i] {
			within += (v - zMeans[i]) * (v - zMeans[i])
		}
	}
	if within == 0 {
		return Result{}, fmt.Errorf("%w: levene is undefined when every group is constant", ErrInvalidData)
	}
	w := (n - k) / (k - 1) * between / within
	p := distuv.F{D1: k - 1, D2: n - k}.Survival(w)
	return Result{Stats: finite(w), PValue: finite(p), RejectIndicator: indicator(p)}, nil
}

// VIF is the variance inflation factor of x given the other predictors in
// refs. With no other predictor it returns no statistic and an annotation.
func VIF(x []float64, refs ...[]float64) (Result, error) {
	if len(refs) == 0 {
		return Result{Annotation: annotationOnePredictor}, nil
	}
	_, res, err := fitOLS(refs, nil, x)
	if err != nil {
		return Result{}, fmt.Errorf("vif: %w", err)
	}
	r2 := res.Stats["rsquared"]
	if r2 >= 1 {
		return Result{}, fmt.Errorf("%w: predictors are perfectly collinear", ErrInvalidData)
	}
	v := 1 / (1 - r2)
	return Result{Stats: finite(v), Annotation: vifAnnotation(v)}, nil
}

func vifAnnotation(v float64) string {
	switch {
	case v > 10:
		return "A VIF above 10 signals serious multicollinearity requiring correction."
	case v > 4:
		return "A VIF above 4 warrants further investigation."
	default:
		return "There is no sign of serious multicollinearity."
	}
}

func indicator(p float64) string {
	if p < rejectAlpha {
		return doesReject
	}
	return doesNotReject
}

// Names returns the registered metric names in sorted order.
func Names() []string {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	names := make([]string, 0, len(metrics))
	for n := range metrics {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
