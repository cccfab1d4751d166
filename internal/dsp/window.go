// Package dsp holds the signal-processing primitives shared by the preprocessing stages and
// the measurement methods: windows, FFT/STFT framing, analytic signals and robust statistics.
package dsp

import (
	"fmt"
	"math"
)

// Window names accepted by Window.
const (
	WindowHann        = "hann"
	WindowHamming     = "hamming"
	WindowBlackman    = "blackman"
	WindowRectangular = "rectangular"
)

// Window returns a periodic window of the given type and length.
// Periodic (FFT) windows are used throughout so framed spectra line up with the
// conventions of the analysis tooling the measurements are compared against.
func Window(name string, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", n)
	}

	w := make([]float64, n)
	fn := float64(n)
	switch name {
	case WindowHann, "":
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/fn)
		}
	case WindowHamming:
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/fn)
		}
	case WindowBlackman:
		for i := range w {
			x := 2 * math.Pi * float64(i) / fn
			w[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		}
	case WindowRectangular:
		for i := range w {
			w[i] = 1
		}
	default:
		return nil, fmt.Errorf("invalid window type %q (valid: hann, hamming, blackman, rectangular)", name)
	}
	return w, nil
}
