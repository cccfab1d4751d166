// Package preprocess applies the optional, run-once transforms that precede analysis:
// level normalisation of every channel and temporal segmentation of the timeline.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/dsp"
)

// Normalisation methods.
const (
	NormalizeRMS  = "rms"
	NormalizeLUFS = "lufs"
)

// NormalizationMethods lists the accepted normalisation method names.
var NormalizationMethods = []string{NormalizeRMS, NormalizeLUFS}

// ErrInvalidNormalizationMethod is returned for an unrecognised normalisation method.
var ErrInvalidNormalizationMethod = errors.New("invalid normalization method")

// NormalizeConfig controls level normalisation.
type NormalizeConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Method      string  `json:"method" yaml:"method"`
	TargetLevel float64 `json:"target_level" yaml:"target_level"` // dBFS for rms, LUFS for lufs
}

// DefaultNormalizeConfig matches the protocol defaults: disabled, RMS to -20 dBFS.
func DefaultNormalizeConfig() NormalizeConfig {
	return NormalizeConfig{Method: NormalizeRMS, TargetLevel: -20.0}
}

// Validate checks the method name.
func (c NormalizeConfig) Validate() error {
	switch c.Method {
	case NormalizeRMS, NormalizeLUFS:
		return nil
	default:
		return fmt.Errorf("%w: %q (valid: rms, lufs)", ErrInvalidNormalizationMethod, c.Method)
	}
}

// Normalise rescales every channel independently so its level statistic matches the
// target. Silent channels are passed through unchanged.
func Normalise(set *channels.Set, cfg NormalizeConfig) (*channels.Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return set.Map(func(ch channels.Channel) ([]float64, error) {
		x := ch.Samples()
		var level float64
		switch cfg.Method {
		case NormalizeRMS:
			rms := dsp.RMS(x)
			if rms == 0 {
				return x, nil
			}
			level = 20 * math.Log10(rms)
		case NormalizeLUFS:
			lufs := IntegratedLoudness(x, ch.SampleRate())
			if math.IsInf(lufs, -1) {
				return x, nil
			}
			level = lufs
		}
		gain := dsp.DBToAmplitude(cfg.TargetLevel - level)
		for i := range x {
			x[i] *= gain
		}
		return x, nil
	})
}

// biquad is a direct-form I second-order section with a0 normalised to 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (f biquad) apply(x []float64) []float64 {
	y := make([]float64, len(x))
	var x1, x2, y1, y2 float64
	for i, v := range x {
		out := f.b0*v + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, v
		y2, y1 = y1, out
		y[i] = out
	}
	return y
}

// kWeighting returns the BS.1770 pre-filter (high shelf) and RLB high-pass for any
// sample rate, designed through the bilinear transform.
func kWeighting(sampleRate int) (shelf, highpass biquad) {
	fs := float64(sampleRate)

	{
		const (
			f0   = 1681.974450955533
			gain = 3.999843853973347
			q    = 0.7071752369554196
		)
		k := math.Tan(math.Pi * f0 / fs)
		vh := math.Pow(10, gain/20)
		vb := math.Pow(vh, 0.4996667741545416)
		a0 := 1 + k/q + k*k
		shelf = biquad{
			b0: (vh + vb*k/q + k*k) / a0,
			b1: 2 * (k*k - vh) / a0,
			b2: (vh - vb*k/q + k*k) / a0,
			a1: 2 * (k*k - 1) / a0,
			a2: (1 - k/q + k*k) / a0,
		}
	}

	{
		const (
			f0 = 38.13547087602444
			q  = 0.5003270373238773
		)
		k := math.Tan(math.Pi * f0 / fs)
		a0 := 1 + k/q + k*k
		highpass = biquad{
			b0: 1, b1: -2, b2: 1,
			a1: 2 * (k*k - 1) / a0,
			a2: (1 - k/q + k*k) / a0,
		}
	}
	return shelf, highpass
}

// IntegratedLoudness is an approximate single-channel BS.1770 integrated loudness:
// K-weighting, 400 ms blocks with 75% overlap, -70 LUFS absolute and -10 LU relative
// gates. Signals shorter than one block are measured as a single block.
// Returns -Inf for silence.
func IntegratedLoudness(x []float64, sampleRate int) float64 {
	if len(x) == 0 || sampleRate <= 0 {
		return math.Inf(-1)
	}

	shelf, hp := kWeighting(sampleRate)
	y := hp.apply(shelf.apply(x))

	block := int(0.4 * float64(sampleRate))
	hop := block / 4
	if block <= 0 || hop <= 0 || len(y) < block {
		block, hop = len(y), len(y)
	}

	var powers []float64
	for start := 0; start+block <= len(y); start += hop {
		sum := 0.0
		for _, v := range y[start : start+block] {
			sum += v * v
		}
		powers = append(powers, sum/float64(block))
	}

	loudness := func(p float64) float64 { return -0.691 + 10*math.Log10(p) }

	gated := func(threshold float64) (float64, int) {
		sum, n := 0.0, 0
		for _, p := range powers {
			if p > 0 && loudness(p) > threshold {
				sum += p
				n++
			}
		}
		return sum, n
	}

	absSum, absN := gated(-70)
	if absN == 0 {
		return math.Inf(-1)
	}
	relative := loudness(absSum/float64(absN)) - 10

	relSum, relN := gated(relative)
	if relN == 0 {
		return math.Inf(-1)
	}
	return loudness(relSum / float64(relN))
}
