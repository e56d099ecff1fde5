// Package assumptions evaluates statistical preconditions column by column
// and phrases the outcome for the user.
package assumptions

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/systemstart/guidedstats/pkg/frame"
	"github.com/systemstart/guidedstats/pkg/stats"
	"github.com/systemstart/guidedstats/pkg/viz"
)

// ErrUnknownAssumption is returned for an assumption name that is not registered.
var ErrUnknownAssumption = errors.New("unknown assumption")

// RefMode selects which reference columns are handed to the metric.
type RefMode int

const (
	// RefNone runs the metric on the column alone.
	RefNone RefMode = iota
	// RefPrevious passes the pre-transformation column, when there is one.
	RefPrevious
	// RefGroups passes the first column of every reference frame.
	RefGroups
	// RefOthers passes every other predictor of the first reference frame.
	RefOthers
)

// VizFunc builds the chart payload for one column.
type VizFunc func(name string, x []float64, refs [][]float64, rng *rand.Rand) any

// Assumption is a registered check.
type Assumption struct {
	Name    string
	Display string
	Metric  string
	RefMode RefMode
	VizType string
	Viz     VizFunc
	Prompt  string
}

// CheckResult is the outcome for one column.
type CheckResult struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	stats.Result
}

// Input carries the data of one check.
type Input struct {
	X        *frame.Frame
	Refs     []*frame.Frame
	Previous *frame.Frame
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Assumption{
		"outlier": {
			Name:    "outlier",
			Display: "Outliers Checking",
			Metric:  "outlier",
			RefMode: RefPrevious,
			VizType: viz.TypeBoxplot,
			Viz: func(name string, x []float64, _ [][]float64, _ *rand.Rand) any {
				return viz.Boxplot(name, x)
			},
			Prompt: `{{ .stats }} outlier(s) fall outside of the "interquartile range" (IQR)`,
		},
		"levene": {
			Name:    "levene",
			Display: "Levene Test",
			Metric:  "levene",
			RefMode: RefGroups,
			VizType: viz.TypeBoxplot,
			Viz: func(_ string, x []float64, refs [][]float64, _ *rand.Rand) any {
				return viz.MultiBoxplot(append([][]float64{x}, refs...)...)
			},
			Prompt: "The p-value of Levene Test is {{ .pvalue }}, which {{ .rejectIndicator }} the null hypothesis that the variances are equal",
		},
		"normality": {
			Name:    "normality",
			Display: "Normality Test",
			Metric:  "shapiro",
			RefMode: RefNone,
			VizType: viz.TypeDensity,
			Viz: func(_ string, x []float64, _ [][]float64, rng *rand.Rand) any {
				return viz.Normality(x, rng)
			},
			Prompt: "The p-value of Shapiro-Wilk Test is {{ .pvalue }}, which {{ .rejectIndicator }} the null hypothesis that the data is normally distributed",
		},
		"multicollinearity": {
			Name:    "multicollinearity",
			Display: "Multicollinearity Test",
			Metric:  "vif",
			RefMode: RefOthers,
			VizType: viz.TypeHeatmap,
			Prompt:  "The VIF of the predictor is {{ .stats }}. {{ .annotation }}",
		},
	}
)

// Lookup returns the named assumption.
func Lookup(name string) (Assumption, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := registry[name]
	if !ok {
		return Assumption{}, fmt.Errorf("%w: %q", ErrUnknownAssumption, name)
	}
	if _, err := stats.Metric(a.Metric); err != nil {
		return Assumption{}, fmt.Errorf("assumption %q: %w", name, err)
	}
	return a, nil
}

// Register adds or replaces an assumption.
func Register(a Assumption) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[a.Name] = a
}

// Names lists the registered assumptions.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Check runs the assumption on every column of in.X and returns one result
// and one chart per column. Data problems wrap stats.ErrInvalidData.
func (a Assumption) Check(in Input, rng *rand.Rand) ([]CheckResult, []viz.Viz, error) {
	metric, err := stats.Metric(a.Metric)
	if err != nil {
		return nil, nil, err
	}
	prompt, err := template.New(a.Name).Funcs(sprig.TxtFuncMap()).Parse(a.Prompt)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing prompt of %q: %w", a.Name, err)
	}

	var (
		results []CheckResult
		charts  []viz.Viz
	)
	for _, col := range in.X.Columns() {
		x, err := in.X.Floats(col)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", stats.ErrInvalidData, err)
		}
		refs, err := a.references(col, in)
		if err != nil {
			return nil, nil, err
		}

		res, err := metric(x, refs...)
		if err != nil {
			return nil, nil, fmt.Errorf("%s on %q: %w", a.Display, col, err)
		}
		var buf bytes.Buffer
		if err := prompt.Execute(&buf, res.Fields()); err != nil {
			return nil, nil, fmt.Errorf("rendering prompt of %q: %w", a.Name, err)
		}
		results = append(results, CheckResult{Name: col, Prompt: buf.String(), Result: res})

		if a.Viz != nil {
			charts = append(charts, viz.Viz{VizType: a.VizType, VizStats: a.Viz(col, x, refs, rng)})
		}
	}

	if a.RefMode == RefOthers {
		charts = append(charts, heatmap(in))
	}
	return results, charts, nil
}

func (a Assumption) references(col string, in Input) ([][]float64, error) {
	switch a.RefMode {
	case RefPrevious:
		if in.Previous == nil {
			return nil, nil
		}
		prev, err := in.Previous.Floats(col)
		if err != nil {
			return nil, nil
		}
		return [][]float64{prev}, nil
	case RefGroups:
		refs := make([][]float64, 0, len(in.Refs))
		for _, f := range in.Refs {
			if f.Width() == 0 {
				continue
			}
			v, err := f.Floats(f.Columns()[0])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", stats.ErrInvalidData, err)
			}
			refs = append(refs, v)
		}
		return refs, nil
	case RefOthers:
		pool := in.X
		if len(in.Refs) > 0 {
			pool = in.Refs[0]
		}
		var refs [][]float64
		for _, other := range pool.Columns() {
			if other == col || !pool.IsNumeric(other) {
				continue
			}
			v, _ := pool.Floats(other)
			refs = append(refs, v)
		}
		return refs, nil
	}
	return nil, nil
}

func heatmap(in Input) viz.Viz {
	pool := in.X
	if len(in.Refs) > 0 {
		pool = in.Refs[0]
	}
	var (
		names []string
		cols  [][]float64
	)
	for _, c := range pool.Columns() {
		if v, err := pool.Floats(c); err == nil {
			names = append(names, c)
			cols = append(cols, v)
		}
	}
	return viz.Viz{VizType: viz.TypeHeatmap, VizStats: viz.CorrelationHeatmap(names, cols)}
}
