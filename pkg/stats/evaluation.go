package stats

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// EvalFunc scores predictions against observed values.
type EvalFunc func(yTrue, yPred []float64, nPredictors int) (float64, error)

var evaluations = map[string]EvalFunc{
	"mse":         MSE,
	"r2":          R2,
	"adjusted_r2": AdjustedR2,
}

// Evaluation looks up an evaluation metric by name.
func Evaluation(name string) (EvalFunc, error) {
	fn, ok := evaluations[name]
	if !ok {
		return nil, fmt.Errorf("%w: evaluation %q", ErrUnknownMetric, name)
	}
	return fn, nil
}

// EvaluationNames lists the evaluation metrics.
func EvaluationNames() []string {
	names := make([]string, 0, len(evaluations))
	for n := range evaluations {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func checkPair(yTrue, yPred []float64) error {
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("%w: %d observations but %d predictions", ErrInvalidData, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return fmt.Errorf("%w: no observations to evaluate", ErrInvalidData)
	}
	return nil
}

// MSE is the mean squared error.
func MSE(yTrue, yPred []float64, _ int) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	var s float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		s += d * d
	}
	return s / float64(len(yTrue)), nil
}

// R2 is the coefficient of determination.
func R2(yTrue, yPred []float64, _ int) (float64, error) {
	if err := checkPair(yTrue, yPred); err != nil {
		return 0, err
	}
	mean := stat.Mean(yTrue, nil)
	var ssr, sst float64
	for i := range yTrue {
		ssr += (yTrue[i] - yPred[i]) * (yTrue[i] - yPred[i])
		sst += (yTrue[i] - mean) * (yTrue[i] - mean)
	}
	if sst == 0 {
		return 0, fmt.Errorf("%w: observed values are constant", ErrInvalidData)
	}
	return 1 - ssr/sst, nil
}

// AdjustedR2 penalises R2 by the number of predictors.
func AdjustedR2(yTrue, yPred []float64, nPredictors int) (float64, error) {
	r2, err := R2(yTrue, yPred, nPredictors)
	if err != nil {
		return 0, err
	}
	n := float64(len(yTrue))
	df := n - float64(nPredictors) - 1
	if df <= 0 {
		return math.NaN(), fmt.Errorf("%w: too few observations for adjusted r2", ErrInvalidData)
	}
	return 1 - (1-r2)*(n-1)/df, nil
}
