package preprocess

import (
	"errors"
	"fmt"
	"math"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/dsp"
)

// Segmentation methods.
const (
	SegmentEnergy   = "energy"
	SegmentSpectral = "spectral"
)

// SegmentationMethods lists the accepted segmentation method names.
var SegmentationMethods = []string{SegmentEnergy, SegmentSpectral}

// ErrInvalidSegmentationMethod is returned for an unrecognised segmentation method.
var ErrInvalidSegmentationMethod = errors.New("invalid segmentation method")

// Boundary is a half-open sample range [Start, End).
type Boundary struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples in the range.
func (b Boundary) Len() int { return b.End - b.Start }

// WholeSignal returns the single segment covering n samples.
func WholeSignal(n int) []Boundary {
	return []Boundary{{Start: 0, End: n}}
}

// SegmentationConfig controls timeline segmentation.
type SegmentationConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	Method          string  `json:"method" yaml:"method"`
	SegmentDuration float64 `json:"segment_duration" yaml:"segment_duration"` // seconds
}

// DefaultSegmentationConfig matches the protocol defaults: disabled, 1 s energy windows.
func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{Method: SegmentEnergy, SegmentDuration: 1.0}
}

// Validate checks the method name and duration.
func (c SegmentationConfig) Validate() error {
	switch c.Method {
	case SegmentEnergy, SegmentSpectral:
	default:
		return fmt.Errorf("%w: %q (valid: energy, spectral)", ErrInvalidSegmentationMethod, c.Method)
	}
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("segment duration must be positive, got %g", c.SegmentDuration)
	}
	return nil
}

// Segment partitions x into windows of roughly cfg.SegmentDuration.
//
// Nominal cut points fall every L samples. Each cut is moved to the quietest 10 ms
// block (energy) or the strongest spectral-flux frame (spectral) within ±L/4 of its
// nominal position, which keeps cuts strictly increasing. A tail shorter than L/2 is
// dropped, except that the first window is always kept.
func Segment(x []float64, sampleRate int, cfg SegmentationConfig) ([]Boundary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := len(x)
	length := int(math.Round(cfg.SegmentDuration * float64(sampleRate)))
	if length <= 0 {
		return nil, fmt.Errorf("segment duration %gs is shorter than one sample", cfg.SegmentDuration)
	}
	if n <= length {
		return WholeSignal(n), nil
	}

	var snap func(nominal, radius int) int
	switch cfg.Method {
	case SegmentEnergy:
		snap = energySnapper(x, sampleRate)
	case SegmentSpectral:
		snap = fluxSnapper(x, length)
	}

	radius := length / 4
	cuts := []int{0}
	for nominal := length; nominal < n; nominal += length {
		cut := nominal
		if radius > 0 {
			cut = snap(nominal, radius)
		}
		if cut <= cuts[len(cuts)-1] || cut >= n {
			cut = nominal
		}
		cuts = append(cuts, cut)
	}
	cuts = append(cuts, n)

	bounds := make([]Boundary, 0, len(cuts)-1)
	for i := 1; i < len(cuts); i++ {
		bounds = append(bounds, Boundary{Start: cuts[i-1], End: cuts[i]})
	}
	if last := bounds[len(bounds)-1]; len(bounds) > 1 && last.Len() < length/2 {
		bounds = bounds[:len(bounds)-1]
	}
	return bounds, nil
}

// energySnapper moves a cut to the start of the quietest 10 ms block near it.
func energySnapper(x []float64, sampleRate int) func(int, int) int {
	block := max(1, sampleRate/100)
	energy := dsp.FrameRMS(x, block)

	return func(nominal, radius int) int {
		lo := max(0, (nominal-radius)/block)
		hi := min(len(energy)-1, (nominal+radius)/block)
		best, bestIdx := math.Inf(1), -1
		for i := lo; i <= hi; i++ {
			if energy[i] < best {
				best, bestIdx = energy[i], i
			}
		}
		if bestIdx < 0 {
			return nominal
		}
		return bestIdx * block
	}
}

// fluxSnapper moves a cut to the frame with the largest positive spectral flux near it.
func fluxSnapper(x []float64, length int) func(int, int) int {
	size := 1024
	for size > 16 && size > length/2 {
		size /= 2
	}
	hop := size / 2

	// sampleRate is irrelevant to flux ordering; 1 keeps frequencies in cycles/sample.
	stft, err := dsp.ComputeSTFT(x, 1, size, size-hop, dsp.WindowHann)
	if err != nil || len(stft.Magnitudes) < 2 {
		return func(nominal, _ int) int { return nominal }
	}

	flux := make([]float64, len(stft.Magnitudes))
	for i := 1; i < len(stft.Magnitudes); i++ {
		prev, cur := stft.Magnitudes[i-1], stft.Magnitudes[i]
		for k := range cur {
			if d := cur[k] - prev[k]; d > 0 {
				flux[i] += d
			}
		}
	}

	return func(nominal, radius int) int {
		best, bestIdx := -1.0, -1
		for i := 1; i < len(flux); i++ {
			start := i * hop
			if start < nominal-radius || start > nominal+radius {
				continue
			}
			if flux[i] > best {
				best, bestIdx = flux[i], i
			}
		}
		if bestIdx < 0 {
			return nominal
		}
		return bestIdx * hop
	}
}

// Config groups both preprocessing stages.
type Config struct {
	Normalize    NormalizeConfig    `json:"normalize" yaml:"normalize"`
	Segmentation SegmentationConfig `json:"segmentation" yaml:"segmentation"`
}

// DefaultConfig returns both stages disabled with their default parameters.
func DefaultConfig() Config {
	return Config{Normalize: DefaultNormalizeConfig(), Segmentation: DefaultSegmentationConfig()}
}

// Validate checks enabled stages only.
func (c Config) Validate() error {
	if c.Normalize.Enabled {
		if err := c.Normalize.Validate(); err != nil {
			return err
		}
	}
	if c.Segmentation.Enabled {
		if err := c.Segmentation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply runs the enabled stages once. Segmentation is computed on the first channel
// after normalisation; when disabled the whole signal is a single segment.
func Apply(set *channels.Set, cfg Config) (*channels.Set, []Boundary, error) {
	if set == nil || set.Len() == 0 {
		return nil, nil, errors.New("no channels to preprocess")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	out := set
	if cfg.Normalize.Enabled {
		var err error
		out, err = Normalise(set, cfg.Normalize)
		if err != nil {
			return nil, nil, err
		}
	}

	first := out.All()[0]
	if !cfg.Segmentation.Enabled {
		return out, WholeSignal(first.Len()), nil
	}
	bounds, err := Segment(first.Samples(), first.SampleRate(), cfg.Segmentation)
	if err != nil {
		return nil, nil, err
	}
	return out, bounds, nil
}
