package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	interceptName = "const"
	lassoMaxIter  = 1000
	lassoTol      = 1e-8
)

// Term is one fitted coefficient.
type Term struct {
	Name    string   `json:"name"`
	Coef    float64  `json:"coef"`
	StdErr  *float64 `json:"stdErr,omitempty"`
	T       *float64 `json:"t,omitempty"`
	PValue  *float64 `json:"pvalue,omitempty"`
	CILower *float64 `json:"ciLower,omitempty"`
	CIUpper *float64 `json:"ciUpper,omitempty"`
}

// Results is the fitted summary of a model.
type Results struct {
	Model  string             `json:"model"`
	Params map[string]any     `json:"params,omitempty"`
	Terms  []Term             `json:"terms,omitempty"`
	Stats  map[string]float64 `json:"stats"`
}

type linearModel struct {
	name      string
	intercept float64
	coef      []float64
}

func (m *linearModel) Name() string { return m.name }

// NumPredictors returns the number of slope coefficients.
func (m *linearModel) NumPredictors() int { return len(m.coef) }

func (m *linearModel) Predict(x [][]float64) ([]float64, error) {
	if len(x) != len(m.coef) {
		return nil, fmt.Errorf("%w: model expects %d predictors, got %d", ErrInvalidData, len(m.coef), len(x))
	}
	n := 0
	if len(x) > 0 {
		n = len(x[0])
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = m.intercept
		for j, col := range x {
			out[i] += m.coef[j] * col[i]
		}
	}
	return out, nil
}

func checkDesign(x [][]float64, y []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: no predictors", ErrInvalidData)
	}
	for _, col := range x {
		if len(col) != len(y) {
			return fmt.Errorf("%w: predictor and response lengths differ", ErrInvalidData)
		}
		for _, v := range col {
			if math.IsNaN(v) {
				return fmt.Errorf("%w: predictors contain missing values", ErrInvalidData)
			}
		}
	}
	for _, v := range y {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: response contains missing values", ErrInvalidData)
		}
	}
	return nil
}

func termNames(names []string, k int) []string {
	out := make([]string, k)
	for i := range out {
		if i < len(names) {
			out[i] = names[i]
		} else {
			out[i] = fmt.Sprintf("x%d", i+1)
		}
	}
	return out
}

// fitOLS fits ordinary least squares with an intercept.
func fitOLS(x [][]float64, names []string, y []float64) (*linearModel, *Results, error) {
	if err := checkDesign(x, y); err != nil {
		return nil, nil, err
	}
	n, k := len(y), len(x)+1
	if n <= k {
		return nil, nil, fmt.Errorf("%w: %d observations are too few for %d parameters", ErrInvalidData, n, k)
	}

	design := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j, col := range x {
			design.Set(i, j+1, col[i])
		}
	}
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	var beta mat.VecDense
	if err := beta.SolveVec(design, yv); err != nil {
		return nil, nil, fmt.Errorf("%w: solving least squares: %v", ErrInvalidData, err)
	}
	var xtx, cov mat.Dense
	xtx.Mul(design.T(), design)
	if err := cov.Inverse(&xtx); err != nil {
		return nil, nil, fmt.Errorf("%w: design matrix is singular: %v", ErrInvalidData, err)
	}

	ymean := stat.Mean(y, nil)
	var ssr, sst float64
	for i := 0; i < n; i++ {
		fit := mat.Dot(design.RowView(i), &beta)
		ssr += (y[i] - fit) * (y[i] - fit)
		sst += (y[i] - ymean) * (y[i] - ymean)
	}
	if sst == 0 {
		return nil, nil, fmt.Errorf("%w: response is constant", ErrInvalidData)
	}

	dfResid, dfModel := float64(n-k), float64(k-1)
	sigma2 := ssr / dfResid
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfResid}
	crit := tdist.Quantile(0.975)

	labels := append([]string{interceptName}, termNames(names, k-1)...)
	terms := make([]Term, k)
	for j := 0; j < k; j++ {
		coef := beta.AtVec(j)
		se := math.Sqrt(sigma2 * cov.At(j, j))
		t := coef / se
		terms[j] = Term{
			Name:    labels[j],
			Coef:    coef,
			StdErr:  finite(se),
			T:       finite(t),
			PValue:  finite(2 * tdist.Survival(math.Abs(t))),
			CILower: finite(coef - crit*se),
			CIUpper: finite(coef + crit*se),
		}
	}

	r2 := 1 - ssr/sst
	fval := ((sst - ssr) / dfModel) / (ssr / dfResid)
	llf := -float64(n) / 2 * (math.Log(2*math.Pi) + math.Log(ssr/float64(n)) + 1)

	st := map[string]float64{
		"nobs":     float64(n),
		"df_model": dfModel,
		"df_resid": dfResid,
	}
	setFinite(st, "rsquared", r2)
	setFinite(st, "rsquared_adj", 1-(1-r2)*float64(n-1)/dfResid)
	setFinite(st, "fvalue", fval)
	setFinite(st, "f_pvalue", distuv.F{D1: dfModel, D2: dfResid}.Survival(fval))
	setFinite(st, "llf", llf)
	setFinite(st, "aic", -2*llf+2*float64(k))
	setFinite(st, "bic", -2*llf+float64(k)*math.Log(float64(n)))

	coef := make([]float64, k-1)
	for j := range coef {
		coef[j] = beta.AtVec(j + 1)
	}
	model := &linearModel{name: ModelOLS, intercept: beta.AtVec(0), coef: coef}
	return model, &Results{Model: ModelOLS, Terms: terms, Stats: st}, nil
}

// centred returns the column means and mean-centred copies of x and y.
func centred(x [][]float64, y []float64) (xc [][]float64, xm []float64, yc []float64, ym float64) {
	xc = make([][]float64, len(x))
	xm = make([]float64, len(x))
	for j, col := range x {
		xm[j] = stat.Mean(col, nil)
		xc[j] = make([]float64, len(col))
		for i, v := range col {
			xc[j][i] = v - xm[j]
		}
	}
	ym = stat.Mean(y, nil)
	yc = make([]float64, len(y))
	for i, v := range y {
		yc[i] = v - ym
	}
	return xc, xm, yc, ym
}

// fitRidge solves (X'X + alpha I) b = X'y on centred data.
func fitRidge(x [][]float64, names []string, y []float64, alpha float64) (*linearModel, *Results, error) {
	if err := checkDesign(x, y); err != nil {
		return nil, nil, err
	}
	if alpha < 0 {
		return nil, nil, fmt.Errorf("%w: alpha must not be negative", ErrInvalidData)
	}
	xc, xm, yc, ym := centred(x, y)
	p, n := len(x), len(y)

	design := mat.NewDense(n, p, nil)
	for j, col := range xc {
		design.SetCol(j, col)
	}
	var a mat.Dense
	a.Mul(design.T(), design)
	for j := 0; j < p; j++ {
		a.Set(j, j, a.At(j, j)+alpha)
	}
	var xty mat.VecDense
	xty.MulVec(design.T(), mat.NewVecDense(n, yc))
	var beta mat.VecDense
	if err := beta.SolveVec(&a, &xty); err != nil {
		return nil, nil, fmt.Errorf("%w: solving ridge system: %v", ErrInvalidData, err)
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}
	return penalised(ModelRidge, names, x, y, coef, xm, ym, alpha)
}

// fitLasso minimises (1/2n)||y - Xb||^2 + alpha ||b||_1 by coordinate descent.
func fitLasso(x [][]float64, names []string, y []float64, alpha float64) (*linearModel, *Results, error) {
	if err := checkDesign(x, y); err != nil {
		return nil, nil, err
	}
	if alpha < 0 {
		return nil, nil, fmt.Errorf("%w: alpha must not be negative", ErrInvalidData)
	}
	xc, xm, yc, ym := centred(x, y)
	p, n := len(x), float64(len(y))

	norms := make([]float64, p)
	for j, col := range xc {
		for _, v := range col {
			norms[j] += v * v
		}
		norms[j] /= n
	}

	coef := make([]float64, p)
	resid := append([]float64(nil), yc...)
	for iter := 0; iter < lassoMaxIter; iter++ {
		var maxDelta float64
		for j, col := range xc {
			if norms[j] == 0 {
				continue
			}
			var rho float64
			for i, v := range col {
				rho += v * (resid[i] + v*coef[j])
			}
			rho /= n
			next := softThreshold(rho, alpha) / norms[j]
			if delta := next - coef[j]; delta != 0 {
				for i, v := range col {
					resid[i] -= v * delta
				}
				maxDelta = math.Max(maxDelta, math.Abs(delta))
				coef[j] = next
			}
		}
		if maxDelta < lassoTol {
			break
		}
	}
	return penalised(ModelLasso, names, x, y, coef, xm, ym, alpha)
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	}
	return 0
}

func penalised(name string, names []string, x [][]float64, y, coef, xm []float64, ym, alpha float64) (*linearModel, *Results, error) {
	intercept := ym
	for j, m := range xm {
		intercept -= coef[j] * m
	}
	model := &linearModel{name: name, intercept: intercept, coef: coef}

	pred, _ := model.Predict(x)
	r2, err := R2(y, pred, len(coef))
	if err != nil {
		return nil, nil, err
	}

	labels := append([]string{interceptName}, termNames(names, len(coef))...)
	terms := []Term{{Name: labels[0], Coef: intercept}}
	for j, c := range coef {
		terms = append(terms, Term{Name: labels[j+1], Coef: c})
	}
	st := map[string]float64{"alpha": alpha, "nobs": float64(len(y))}
	setFinite(st, "rsquared", r2)
	return model, &Results{Model: name, Params: map[string]any{"alpha": alpha}, Terms: terms, Stats: st}, nil
}
