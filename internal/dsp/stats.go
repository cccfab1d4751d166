package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MADScale converts a median absolute deviation into a consistent estimator of the
// standard deviation for normally distributed data.
const MADScale = 1.4826

// Sorted returns a sorted copy of x.
func Sorted(x []float64) []float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	return s
}

// Median returns the median of x, averaging the two middle values for even lengths.
// Returns 0 for an empty slice.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return medianSorted(Sorted(x))
}

func medianSorted(s []float64) float64 {
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

// MAD returns the median absolute deviation of x around its median.
func MAD(x []float64) (median, mad float64) {
	if len(x) == 0 {
		return 0, 0
	}
	median = Median(x)
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - median)
	}
	return median, Median(dev)
}

// Quantile returns the q-quantile of x (q in [0, 1]) interpolating linearly between the
// order statistics at rank q·(n-1) (Hyndman-Fan type 7, numpy's default). gonum's
// stat.LinInterp interpolates the empirical CDF instead and gives different values.
func Quantile(x []float64, q float64) float64 {
	if len(x) == 0 {
		return 0
	}
	q = math.Max(0, math.Min(1, q))
	s := Sorted(x)
	h := q * float64(len(s)-1)
	lo := int(math.Floor(h))
	hi := min(lo+1, len(s)-1)
	return s[lo] + (h-float64(lo))*(s[hi]-s[lo])
}

// MeanStd returns the population mean and standard deviation of x.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(x, nil)
}

// Mean returns the arithmetic mean of x, or 0 when empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

// Sum returns the sum of x.
func Sum(x []float64) float64 {
	return floats.Sum(x)
}

// MinMax returns the extremes of x, or zeros when empty.
func MinMax(x []float64) (lo, hi float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return floats.Min(x), floats.Max(x)
}

// ArgMax returns the index of the largest element of x, or -1 when empty.
func ArgMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	return floats.MaxIdx(x)
}

// Skewness and ExcessKurtosis return the sample moments of x, or 0 when the spread is
// degenerate.
func Skewness(x []float64) float64 {
	if len(x) < 3 {
		return 0
	}
	if _, std := MeanStd(x); std == 0 {
		return 0
	}
	return stat.Skew(x, nil)
}

func ExcessKurtosis(x []float64) float64 {
	if len(x) < 4 {
		return 0
	}
	if _, std := MeanStd(x); std == 0 {
		return 0
	}
	return stat.ExKurtosis(x, nil)
}

// Standardize returns (x - mean) / std. A zero-variance input is only centred.
func Standardize(x []float64) []float64 {
	mean, std := MeanStd(x)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v - mean
		if std > 0 {
			out[i] /= std
		}
	}
	return out
}
