package stats

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Shapiro runs the Shapiro-Wilk normality test on x using Royston's
// approximation of the coefficients and the p-value.
func Shapiro(x []float64, _ ...[]float64) (Result, error) {
	x = DropNaN(x)
	n := len(x)
	if n < 3 || n > 5000 {
		return Result{}, fmt.Errorf("%w: shapiro needs between 3 and 5000 observations, got %d", ErrInvalidData, n)
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)

	mean := stat.Mean(sorted, nil)
	var ss float64
	for _, v := range sorted {
		ss += (v - mean) * (v - mean)
	}
	if ss == 0 {
		return Result{}, fmt.Errorf("%w: shapiro is undefined for a constant column", ErrInvalidData)
	}

	a := shapiroCoefficients(n)
	var num float64
	for i, v := range sorted {
		num += a[i] * v
	}
	w := math.Min(num*num/ss, 1)
	p := shapiroPValue(w, n)
	return Result{Stats: finite(w), PValue: finite(p), RejectIndicator: indicator(p)}, nil
}

func shapiroCoefficients(n int) []float64 {
	a := make([]float64, n)
	if n == 3 {
		a[0], a[2] = -math.Sqrt2/2, math.Sqrt2/2
		return a
	}

	m := make([]float64, n)
	var mm float64
	for i := range m {
		m[i] = distuv.UnitNormal.Quantile((float64(i+1) - 0.375) / (float64(n) + 0.25))
		mm += m[i] * m[i]
	}

	u := 1 / math.Sqrt(float64(n))
	poly := func(c0 float64, cs ...float64) float64 {
		out, pow := c0, u
		for _, c := range cs {
			out += c * pow
			pow *= u
		}
		return out
	}

	an := poly(m[n-1]/math.Sqrt(mm), 0.221157, -0.147981, -2.071190, 4.434685, -2.706056)
	if n <= 5 {
		phi := (mm - 2*m[n-1]*m[n-1]) / (1 - 2*an*an)
		for i := 1; i < n-1; i++ {
			a[i] = m[i] / math.Sqrt(phi)
		}
		a[n-1], a[0] = an, -an
		return a
	}

	an1 := poly(m[n-2]/math.Sqrt(mm), 0.042981, -0.293762, -1.752461, 5.682633, -3.582633)
	phi := (mm - 2*m[n-1]*m[n-1] - 2*m[n-2]*m[n-2]) / (1 - 2*an*an - 2*an1*an1)
	for i := 2; i < n-2; i++ {
		a[i] = m[i] / math.Sqrt(phi)
	}
	a[n-1], a[0] = an, -an
	a[n-2], a[1] = an1, -an1
	return a
}

func shapiroPValue(w float64, n int) float64 {
	if n == 3 {
		p := 6 / math.Pi * (math.Asin(math.Sqrt(w)) - math.Asin(math.Sqrt(0.75)))
		return math.Max(p, 0)
	}
	nf := float64(n)
	var z float64
	if n <= 11 {
		g := -2.273 + 0.459*nf
		mu := 0.5440 - 0.39978*nf + 0.025054*nf*nf - 0.0006714*nf*nf*nf
		sigma := math.Exp(1.3822 - 0.77857*nf + 0.062767*nf*nf - 0.0020322*nf*nf*nf)
		arg := g - math.Log(1-w)
		if arg <= 0 {
			return 0
		}
		z = (-math.Log(arg) - mu) / sigma
	} else {
		ln := math.Log(nf)
		mu := 0.0038915*ln*ln*ln - 0.083751*ln*ln - 0.31082*ln - 1.5861
		sigma := math.Exp(0.0030302*ln*ln - 0.082676*ln - 0.4803)
		z = (math.Log(1-w) - mu) / sigma
	}
	return distuv.UnitNormal.Survival(z)
}
