package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum is a one-sided magnitude spectrum.
type Spectrum struct {
	Frequencies []float64 // Hz, len n/2+1
	Magnitudes  []float64
}

// MagnitudeSpectrum computes the one-sided magnitude spectrum of x after applying the
// named window. The window is sized to len(x).
func MagnitudeSpectrum(x []float64, sampleRate int, window string) (Spectrum, error) {
	n := len(x)
	if n < 2 {
		return Spectrum{}, fmt.Errorf("need at least 2 samples for a spectrum, got %d", n)
	}
	w, err := Window(window, n)
	if err != nil {
		return Spectrum{}, err
	}

	buf := make([]float64, n)
	for i, v := range x {
		buf[i] = v * w[i]
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, buf)

	spec := Spectrum{
		Frequencies: make([]float64, len(coeff)),
		Magnitudes:  make([]float64, len(coeff)),
	}
	for k, c := range coeff {
		spec.Frequencies[k] = fft.Freq(k) * float64(sampleRate)
		spec.Magnitudes[k] = cmplx.Abs(c)
	}
	return spec, nil
}

// Power returns the squared magnitudes of the spectrum.
func (s Spectrum) Power() []float64 {
	p := make([]float64, len(s.Magnitudes))
	for i, m := range s.Magnitudes {
		p[i] = m * m
	}
	return p
}

// STFT is a framed magnitude representation of a signal.
// Frame i covers samples [i*Hop, i*Hop+Size); its timestamp is the frame centre.
type STFT struct {
	Size        int
	Hop         int
	SampleRate  int
	Frequencies []float64   // Hz, len Size/2+1
	Times       []float64   // seconds, frame centres
	Magnitudes  [][]float64 // [frame][bin]
}

// ComputeSTFT frames x with the given window size and overlap and returns per-frame
// magnitude spectra. Frames that would run past the end of x are not emitted (no padding).
func ComputeSTFT(x []float64, sampleRate, size, overlap int, window string) (*STFT, error) {
	if size <= 0 {
		return nil, fmt.Errorf("stft window length must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("stft overlap must be in [0, %d), got %d", size, overlap)
	}
	w, err := Window(window, size)
	if err != nil {
		return nil, err
	}

	hop := size - overlap
	frames := 0
	if len(x) >= size {
		frames = 1 + (len(x)-size)/hop
	}

	fft := fourier.NewFFT(size)
	out := &STFT{
		Size:        size,
		Hop:         hop,
		SampleRate:  sampleRate,
		Frequencies: make([]float64, size/2+1),
		Times:       make([]float64, frames),
		Magnitudes:  make([][]float64, frames),
	}
	for k := range out.Frequencies {
		out.Frequencies[k] = fft.Freq(k) * float64(sampleRate)
	}

	// Scale like a density-free one-sided STFT: divide by the window sum.
	wsum := 0.0
	for _, v := range w {
		wsum += v
	}
	if wsum == 0 {
		wsum = 1
	}

	buf := make([]float64, size)
	coeff := make([]complex128, size/2+1)
	for i := 0; i < frames; i++ {
		start := i * hop
		for k := 0; k < size; k++ {
			buf[k] = x[start+k] * w[k]
		}
		coeff = fft.Coefficients(coeff, buf)
		row := make([]float64, len(coeff))
		for k, c := range coeff {
			row[k] = cmplx.Abs(c) / wsum
		}
		out.Magnitudes[i] = row
		out.Times[i] = (float64(start) + float64(size)/2) / float64(sampleRate)
	}
	return out, nil
}

// HopSeconds returns the time between consecutive frames.
func (s *STFT) HopSeconds() float64 {
	return float64(s.Hop) / float64(s.SampleRate)
}

// BinsBetween returns the indices of the frequency bins within [lo, hi] Hz.
func (s *STFT) BinsBetween(lo, hi float64) []int {
	var idx []int
	for k, f := range s.Frequencies {
		if f >= lo && f <= hi {
			idx = append(idx, k)
		}
	}
	return idx
}

// Analytic returns the analytic signal of x (x + j·H{x}) using the FFT method.
func Analytic(x []float64) []complex128 {
	n := len(x)
	if n == 0 {
		return nil
	}

	coeff := fourier.NewFFT(n).Coefficients(nil, x)

	full := make([]complex128, n)
	full[0] = coeff[0]
	half := n / 2
	for k := 1; k < len(coeff); k++ {
		if n%2 == 0 && k == half {
			full[k] = coeff[k]
			continue
		}
		full[k] = 2 * coeff[k]
	}

	seq := fourier.NewCmplxFFT(n).Sequence(nil, full)
	scale := complex(1/float64(n), 0)
	for i := range seq {
		seq[i] *= scale
	}
	return seq
}

// Envelope returns |analytic(x)|.
func Envelope(x []float64) []float64 {
	a := Analytic(x)
	env := make([]float64, len(a))
	for i, c := range a {
		env[i] = cmplx.Abs(c)
	}
	return env
}

// CrossCorrelation returns the full linear cross-correlation of a and b for lags in
// [-maxLag, maxLag]; element i corresponds to lag i-maxLag. A positive lag means b
// trails a.
func CrossCorrelation(a, b []float64, maxLag int) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return nil
	}
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag < 0 {
		maxLag = 0
	}

	size := nextPow2(2 * n)
	fa := make([]complex128, size)
	fb := make([]complex128, size)
	for i := 0; i < n; i++ {
		fa[i] = complex(a[i], 0)
		fb[i] = complex(b[i], 0)
	}

	fft := fourier.NewCmplxFFT(size)
	ca := fft.Coefficients(nil, fa)
	cb := fft.Coefficients(nil, fb)
	for i := range ca {
		ca[i] = cmplx.Conj(ca[i]) * cb[i]
	}
	raw := fft.Sequence(nil, ca)

	out := make([]float64, 2*maxLag+1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		idx := lag
		if idx < 0 {
			idx += size
		}
		out[lag+maxLag] = real(raw[idx]) / float64(size)
	}
	return out
}

// Autocorrelation returns the autocorrelation of x for lags [0, maxLag].
func Autocorrelation(x []float64, maxLag int) []float64 {
	full := CrossCorrelation(x, x, maxLag)
	if len(full) == 0 {
		return nil
	}
	mid := len(full) / 2
	return append([]float64(nil), full[mid:]...)
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// FrameCount returns the number of full frames of the given size and hop in n samples.
func FrameCount(n, size, hop int) int {
	if n < size || size <= 0 || hop <= 0 {
		return 0
	}
	return 1 + (n-size)/hop
}

// HzToBin maps a frequency to the nearest bin of an n-point FFT.
func HzToBin(hz float64, n, sampleRate int) int {
	return int(math.Round(hz * float64(n) / float64(sampleRate)))
}
