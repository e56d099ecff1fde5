package stats

import (
	"fmt"
	"slices"
	"strconv"
)

const (
	ModelOLS   = "Simple Linear Regression"
	ModelRidge = "Ridge Regression"
	ModelLasso = "Lasso Regression"
	ModelTTest = "T Test"

	defaultAlpha     = 1.0
	defaultTestAlpha = 0.05
)

// Model is a fitted model.
type Model interface {
	Name() string
	Predict(x [][]float64) ([]float64, error)
}

// Predictors is implemented by models with slope coefficients.
type Predictors interface {
	NumPredictors() int
}

// FitFunc fits a model. x holds the columns of the first input and y the
// first column of the second input; for a two-sample test they are the two
// samples.
type FitFunc func(x [][]float64, names []string, y []float64, params map[string]any) (Model, *Results, error)

var models = map[string]FitFunc{
	ModelOLS: func(x [][]float64, names []string, y []float64, _ map[string]any) (Model, *Results, error) {
		return fitOLS(x, names, y)
	},
	ModelRidge: func(x [][]float64, names []string, y []float64, params map[string]any) (Model, *Results, error) {
		return fitRidge(x, names, y, floatParam(params, "alpha", defaultAlpha))
	},
	ModelLasso: func(x [][]float64, names []string, y []float64, params map[string]any) (Model, *Results, error) {
		return fitLasso(x, names, y, floatParam(params, "alpha", defaultAlpha))
	},
	ModelTTest: func(x [][]float64, _ []string, y []float64, params map[string]any) (Model, *Results, error) {
		if len(x) != 1 {
			return nil, nil, fmt.Errorf("%w: a t-test takes exactly one column per sample", ErrInvalidData)
		}
		alternative, _ := params["alternative"].(string)
		equalVar := boolParam(params, "equal_var", true)
		res, err := TTest(x[0], y, alternative, floatParam(params, "alpha", defaultTestAlpha), equalVar)
		if err != nil {
			return nil, nil, err
		}
		return ttestModel{}, res, nil
	},
}

// Fitter looks up a model by name.
func Fitter(name string) (FitFunc, error) {
	fn, ok := models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return fn, nil
}

// ModelNames lists the available models.
func ModelNames() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func floatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// boolParam accepts booleans and the option spellings a UI sends back.
func boolParam(params map[string]any, key string, def bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
