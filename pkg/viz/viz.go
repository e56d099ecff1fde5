// Package viz turns analysis results into plotting-ready records.
package viz

import (
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/systemstart/guidedstats/pkg/stats"
)

const (
	TypeBoxplot  = "boxplot"
	TypeDensity  = "density"
	TypeHeatmap  = "heatmap"
	TypeResidual = "residual"
	TypeTTest    = "ttest"

	MaxOutliers = 10
	MaxPoints   = 100
)

// Viz is one chart payload.
type Viz struct {
	VizType  string `json:"vizType"`
	VizStats any    `json:"vizStats"`
}

// BoxStats summarises one column for a boxplot.
type BoxStats struct {
	Name     string    `json:"name"`
	Lower    float64   `json:"lower"`
	Q1       float64   `json:"q1"`
	Median   float64   `json:"median"`
	Q3       float64   `json:"q3"`
	Upper    float64   `json:"upper"`
	Outliers []float64 `json:"outliers"`
}

// Point is a residual scatter point.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Group string  `json:"group"`
}

// DensityPoint is one sampled value of a group.
type DensityPoint struct {
	Group string  `json:"group"`
	Value float64 `json:"value"`
}

// HeatCell is one entry of a correlation matrix. Value is nil when the
// correlation is undefined.
type HeatCell struct {
	Variable1 string   `json:"variable1"`
	Variable2 string   `json:"variable2"`
	Value     *float64 `json:"value"`
}

// Boxplot computes quartiles, 1.5 IQR fences and up to MaxOutliers outliers on
// each side, largest upper outliers first.
func Boxplot(name string, x []float64) BoxStats {
	clean := stats.DropNaN(x)
	lower, upper := stats.Fences(clean)
	var above, below []float64
	for _, v := range clean {
		switch {
		case v > upper:
			above = append(above, v)
		case v < lower:
			below = append(below, v)
		}
	}
	slices.Sort(above)
	slices.Reverse(above)
	slices.Sort(below)

	outliers := make([]float64, 0, MaxOutliers*2)
	outliers = append(outliers, above[:min(len(above), MaxOutliers)]...)
	outliers = append(outliers, below[:min(len(below), MaxOutliers)]...)

	return BoxStats{
		Name:     name,
		Lower:    lower,
		Q1:       stats.Quantile(clean, 0.25),
		Median:   stats.Quantile(clean, 0.5),
		Q3:       stats.Quantile(clean, 0.75),
		Upper:    upper,
		Outliers: outliers,
	}
}

// MultiBoxplot builds one boxplot per group, named group1, group2, ...
func MultiBoxplot(groups ...[]float64) []BoxStats {
	out := make([]BoxStats, len(groups))
	for i, g := range groups {
		out[i] = Boxplot("group"+strconv.Itoa(i+1), g)
	}
	return out
}

// Residuals samples up to MaxPoints (prediction, residual) pairs.
func Residuals(pred, actual []float64, group string, rng *rand.Rand) []Point {
	points := make([]Point, 0, len(pred))
	for i := range pred {
		r := pred[i] - actual[i]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		points = append(points, Point{X: pred[i], Y: r, Group: group})
	}
	return sample(points, MaxPoints, rng)
}

// Density samples up to MaxPoints values from each of two groups.
func Density(a, b []float64, labels [2]string, rng *rand.Rand) []DensityPoint {
	out := groupPoints(a, labels[0], rng)
	return append(out, groupPoints(b, labels[1], rng)...)
}

func groupPoints(x []float64, label string, rng *rand.Rand) []DensityPoint {
	clean := stats.DropNaN(x)
	pts := make([]DensityPoint, len(clean))
	for i, v := range clean {
		pts[i] = DensityPoint{Group: label, Value: v}
	}
	return sample(pts, MaxPoints, rng)
}

// Normality pairs x with an equally long sample from a normal distribution of
// the same mean and standard deviation.
func Normality(x []float64, rng *rand.Rand) []DensityPoint {
	if rng == nil {
		rng = newRand()
	}
	clean := stats.DropNaN(x)
	mean, std := stat.PopMeanStdDev(clean, nil)
	ref := make([]float64, len(clean))
	if std > 0 {
		dist := distuv.Normal{Mu: mean, Sigma: std, Src: rng}
		for i := range ref {
			ref[i] = dist.Rand()
		}
	} else {
		for i := range ref {
			ref[i] = mean
		}
	}
	return Density(clean, ref, [2]string{"current data column", "normally distributed data"}, rng)
}

// CorrelationHeatmap lists the pairwise Pearson correlations of the columns.
func CorrelationHeatmap(names []string, cols [][]float64) []HeatCell {
	cells := make([]HeatCell, 0, len(cols)*len(cols))
	for i, a := range cols {
		for j, b := range cols {
			var v *float64
			if r := stat.Correlation(a, b, nil); !math.IsNaN(r) {
				v = &r
			}
			cells = append(cells, HeatCell{Variable1: names[i], Variable2: names[j], Value: v})
		}
	}
	return cells
}

func sample[T any](items []T, max int, rng *rand.Rand) []T {
	if len(items) <= max {
		return items
	}
	if rng == nil {
		rng = newRand()
	}
	perm := rng.Perm(len(items))[:max]
	slices.Sort(perm)
	out := make([]T, max)
	for i, p := range perm {
		out[i] = items[p]
	}
	return out
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
