package stats

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// TransformFunc maps a column to a transformed column of the same length.
type TransformFunc func(x []float64) ([]float64, error)

// Transformation describes a registered column transformation.
type Transformation struct {
	Name        string
	DisplayName string
	Func        TransformFunc
}

var transformations = map[string]Transformation{
	"log":    {Name: "log", DisplayName: "Logarithmic Transform", Func: Log},
	"log1p":  {Name: "log1p", DisplayName: "Log(1 + x) Transform", Func: Log1p},
	"sqrt":   {Name: "sqrt", DisplayName: "Square Root Transform", Func: Sqrt},
	"zscore": {Name: "zscore", DisplayName: "Standardization", Func: ZScore},
}

// LookupTransformation finds a transformation by name.
func LookupTransformation(name string) (Transformation, error) {
	t, ok := transformations[name]
	if !ok {
		return Transformation{}, fmt.Errorf("%w: %q", ErrUnknownTransformation, name)
	}
	return t, nil
}

// TransformationNames lists the registered transformations.
func TransformationNames() []string {
	names := make([]string, 0, len(transformations))
	for n := range transformations {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func mapValues(x []float64, fn func(float64) float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = fn(v)
	}
	return out
}

// Log takes the natural logarithm; every value must be positive.
func Log(x []float64) ([]float64, error) {
	for _, v := range x {
		if v <= 0 {
			return nil, fmt.Errorf("%w: the column contains non-positive values, log transformation cannot be applied", ErrInvalidData)
		}
	}
	return mapValues(x, math.Log), nil
}

// Log1p computes log(1 + x); every value must exceed -1.
func Log1p(x []float64) ([]float64, error) {
	for _, v := range x {
		if v <= -1 {
			return nil, fmt.Errorf("%w: log(1 + x) needs values above -1", ErrInvalidData)
		}
	}
	return mapValues(x, math.Log1p), nil
}

// Sqrt takes the square root; negative values are rejected.
func Sqrt(x []float64) ([]float64, error) {
	for _, v := range x {
		if v < 0 {
			return nil, fmt.Errorf("%w: the column contains negative values, square root cannot be applied", ErrInvalidData)
		}
	}
	return mapValues(x, math.Sqrt), nil
}

// ZScore standardises x to zero mean and unit variance.
func ZScore(x []float64) ([]float64, error) {
	clean := DropNaN(x)
	if err := requireLen("zscore", clean, 2); err != nil {
		return nil, err
	}
	mean, std := stat.MeanStdDev(clean, nil)
	if std == 0 {
		return nil, fmt.Errorf("%w: cannot standardise a constant column", ErrInvalidData)
	}
	return mapValues(x, func(v float64) float64 { return (v - mean) / std }), nil
}
