package stats

import (
	"errors"
	"math"
	"testing"
)

var (
	regX = [][]float64{{1, 2, 3, 4, 5, 6}}
	regY = []float64{3.1, 4.9, 7.2, 8.8, 11.1, 13.0}
)

func TestOLS(t *testing.T) {
	fit, err := Fitter(ModelOLS)
	if err != nil {
		t.Fatal(err)
	}
	model, res, err := fit(regX, []string{"x"}, regY, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Terms) != 2 || res.Terms[1].Name != "x" {
		t.Fatalf("unexpected terms %+v", res.Terms)
	}
	if math.Abs(res.Terms[1].Coef-2) > 0.1 {
		t.Fatalf("expected slope near 2, got %v", res.Terms[1].Coef)
	}
	if res.Stats["rsquared"] < 0.99 {
		t.Fatalf("expected a near-perfect fit, got %v", res.Stats["rsquared"])
	}
	for _, key := range []string{"rsquared_adj", "fvalue", "f_pvalue", "llf", "aic", "bic"} {
		if _, ok := res.Stats[key]; !ok {
			t.Errorf("missing statistic %q", key)
		}
	}
	if res.Terms[1].PValue == nil || *res.Terms[1].PValue > 0.001 {
		t.Fatalf("expected a significant slope, got %v", res.Terms[1].PValue)
	}

	pred, err := model.Predict([][]float64{{10}})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pred[0]-21) > 1 {
		t.Fatalf("expected prediction near 21, got %v", pred[0])
	}
}

func TestOLS_TooFewObservations(t *testing.T) {
	fit, _ := Fitter(ModelOLS)
	_, _, err := fit([][]float64{{1, 2}}, nil, []float64{1, 2}, nil)
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestRidgeMatchesOLSAtZeroAlpha(t *testing.T) {
	_, ols, err := fitOLS(regX, nil, regY)
	if err != nil {
		t.Fatal(err)
	}
	_, ridge, err := fitRidge(regX, nil, regY, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ols.Terms {
		if math.Abs(ols.Terms[i].Coef-ridge.Terms[i].Coef) > 1e-9 {
			t.Fatalf("term %d: ols %v ridge %v", i, ols.Terms[i].Coef, ridge.Terms[i].Coef)
		}
	}
}

func TestLassoShrinksToZero(t *testing.T) {
	fit, _ := Fitter(ModelLasso)
	model, res, err := fit(regX, nil, regY, map[string]any{"alpha": 1000.0})
	if err != nil {
		t.Fatal(err)
	}
	if res.Terms[1].Coef != 0 {
		t.Fatalf("expected slope shrunk to 0, got %v", res.Terms[1].Coef)
	}
	if res.Stats["alpha"] != 1000 {
		t.Fatalf("alpha not recorded: %v", res.Stats)
	}
	pred, _ := model.Predict([][]float64{{1}})
	if math.Abs(pred[0]-8.0166) > 0.01 {
		t.Fatalf("expected prediction at the response mean, got %v", pred[0])
	}
}

func TestTTest(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{6, 7, 8, 9, 10}

	res, err := TTest(a, b, AlternativeTwoSided, 0.05, true)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Stats["tstat"]+5) > 1e-9 || res.Stats["df"] != 8 {
		t.Fatalf("unexpected t = %v df = %v", res.Stats["tstat"], res.Stats["df"])
	}
	if res.Stats["pvalue"] > 0.01 || res.Stats["reject"] != 1 {
		t.Fatalf("expected rejection, p = %v", res.Stats["pvalue"])
	}

	smaller, _ := TTest(a, b, AlternativeSmaller, 0.05, true)
	larger, _ := TTest(a, b, AlternativeLarger, 0.05, true)
	if smaller.Stats["pvalue"] > 0.01 || larger.Stats["pvalue"] < 0.99 {
		t.Fatalf("one-sided p-values wrong: smaller %v larger %v", smaller.Stats["pvalue"], larger.Stats["pvalue"])
	}

	welch, _ := TTest(a, b, AlternativeTwoSided, 0.05, false)
	if welch.Stats["df"] != 8 {
		t.Fatalf("equal variances give Welch df 8, got %v", welch.Stats["df"])
	}

	if _, err := TTest(a, b, "sideways", 0.05, true); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for an unknown alternative, got %v", err)
	}
}

func TestTTestModelDoesNotPredict(t *testing.T) {
	fit, _ := Fitter(ModelTTest)
	model, res, err := fit([][]float64{{1, 2, 3}}, nil, []float64{4, 5, 6}, map[string]any{"alternative": "two-sided"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Model != ModelTTest {
		t.Fatalf("unexpected model %q", res.Model)
	}
	if _, err := model.Predict(nil); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestUnknownModel(t *testing.T) {
	if _, err := Fitter("Random Forest"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestEvaluations(t *testing.T) {
	yTrue := []float64{1, 2, 3, 4}
	yPred := []float64{1, 2, 3, 5}

	mse, _ := MSE(yTrue, yPred, 1)
	if mse != 0.25 {
		t.Fatalf("mse = %v", mse)
	}
	r2, _ := R2(yTrue, yPred, 1)
	if math.Abs(r2-0.8) > 1e-12 {
		t.Fatalf("r2 = %v", r2)
	}
	adj, _ := AdjustedR2(yTrue, yPred, 1)
	if math.Abs(adj-0.7) > 1e-12 {
		t.Fatalf("adjusted r2 = %v", adj)
	}
	if _, err := Evaluation("mae"); !errors.Is(err, ErrUnknownMetric) {
		t.Fatalf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestTransformations(t *testing.T) {
	tr, err := LookupTransformation("log")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Func([]float64{1, 0}); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for log of 0, got %v", err)
	}
	out, err := tr.Func([]float64{1, math.E})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0 || math.Abs(out[1]-1) > 1e-12 {
		t.Fatalf("log = %v", out)
	}

	z, err := ZScore([]float64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if z[1] != 0 || z[0] >= 0 {
		t.Fatalf("zscore = %v", z)
	}

	if _, err := LookupTransformation("boxcox"); !errors.Is(err, ErrUnknownTransformation) {
		t.Fatalf("expected ErrUnknownTransformation, got %v", err)
	}
}
