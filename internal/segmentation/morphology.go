package segmentation

import "slices"

// run is a maximal stretch of equal mask values, [start, end] inclusive.
type run struct {
	start, end int
	on         bool
}

func (r run) len() int { return r.end - r.start + 1 }

func runs(mask []bool) []run {
	var out []run
	for i := 0; i < len(mask); {
		j := i
		for j+1 < len(mask) && mask[j+1] == mask[i] {
			j++
		}
		out = append(out, run{start: i, end: j, on: mask[i]})
		i = j + 1
	}
	return out
}

// Close is a 1-D binary closing with a flat structuring element of k frames: every
// interior gap strictly shorter than k frames between two active runs is filled. A gap
// of exactly k frames survives, as it does under a standard dilate-then-erode closing
// with a k-frame element. Gaps touching either end of the mask are left alone.
// k <= 1 returns an unchanged copy.
func Close(mask []bool, k int) []bool {
	out := slices.Clone(mask)
	if k <= 1 {
		return out
	}
	rs := runs(mask)
	for i, r := range rs {
		if r.on || i == 0 || i == len(rs)-1 {
			continue
		}
		if r.len() < k {
			for j := r.start; j <= r.end; j++ {
				out[j] = true
			}
		}
	}
	return out
}

// Open is a 1-D binary opening with a flat structuring element of k frames: every
// active run shorter than k frames is removed. k <= 1 returns an unchanged copy.
func Open(mask []bool, k int) []bool {
	out := slices.Clone(mask)
	if k <= 1 {
		return out
	}
	for _, r := range runs(mask) {
		if r.on && r.len() < k {
			for j := r.start; j <= r.end; j++ {
				out[j] = false
			}
		}
	}
	return out
}

// Clean applies closing then opening.
func Clean(mask []bool, closing, opening int) []bool {
	return Open(Close(mask, closing), opening)
}
