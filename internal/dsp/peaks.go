package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Peak is a local maximum of a sequence.
type Peak struct {
	Index      int
	Value      float64
	Prominence float64
}

// FindPeaks returns the local maxima of x whose prominence is at least minProminence,
// keeping only the tallest peak within any window of minDistance samples.
// Peaks are returned in index order. Plateaus report their first sample.
func FindPeaks(x []float64, minProminence float64, minDistance int) []Peak {
	return FindPeaksAbove(x, math.Inf(-1), minProminence, minDistance)
}

// FindPeaksAbove is FindPeaks restricted to maxima of at least height. The height
// filter runs before distance suppression.
func FindPeaksAbove(x []float64, height, minProminence float64, minDistance int) []Peak {
	var cands []Peak
	for i := 1; i < len(x)-1; i++ {
		if !(x[i] > x[i-1]) || x[i] < height {
			continue
		}
		j := i
		for j+1 < len(x) && x[j+1] == x[i] {
			j++
		}
		if j+1 < len(x) && x[j+1] < x[i] {
			if p := prominence(x, i); p >= minProminence {
				cands = append(cands, Peak{Index: i, Value: x[i], Prominence: p})
			}
		}
		i = j
	}

	if minDistance <= 1 || len(cands) < 2 {
		return cands
	}

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return cands[order[a]].Value > cands[order[b]].Value })

	keep := make([]bool, len(cands))
	removed := make([]bool, len(cands))
	for _, c := range order {
		if removed[c] {
			continue
		}
		keep[c] = true
		for k := range cands {
			if k != c && !keep[k] && abs(cands[k].Index-cands[c].Index) < minDistance {
				removed[k] = true
			}
		}
	}

	out := cands[:0:0]
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

// prominence is the height of x[i] above the higher of the two minima reached before
// encountering a taller sample on either side.
func prominence(x []float64, i int) float64 {
	leftMin := x[i]
	for k := i - 1; k >= 0 && x[k] <= x[i]; k-- {
		leftMin = math.Min(leftMin, x[k])
	}
	rightMin := x[i]
	for k := i + 1; k < len(x) && x[k] <= x[i]; k++ {
		rightMin = math.Min(rightMin, x[k])
	}
	return x[i] - math.Max(leftMin, rightMin)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Histogram counts x into bins equal-width bins spanning [min, max].
// It returns the counts and the bin centres.
func Histogram(x []float64, bins int) (counts, centres []float64) {
	if len(x) == 0 || bins <= 0 {
		return nil, nil
	}
	lo, hi := MinMax(x)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram wants the last divider strictly above the maximum.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts = stat.Histogram(nil, dividers, Sorted(x), nil)
	centres = make([]float64, bins)
	for i := range centres {
		centres[i] = (dividers[i] + dividers[i+1]) / 2
	}
	return counts, centres
}

// EntropyBits returns the Shannon entropy in bits of a count vector.
func EntropyBits(counts []float64) float64 {
	total := floats.Sum(counts)
	if total == 0 {
		return 0
	}
	p := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = c / total
	}
	return stat.Entropy(p) / math.Ln2
}
