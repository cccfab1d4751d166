package methods

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
)

// maxComponents caps listed modulation frequencies.
const maxComponents = 10

func modulationMethods() []engine.Entry {
	return []engine.Entry{
		{
			ID:          "am_detection",
			Category:    Modulation,
			Description: "Envelope modulation spectrum and depth",
			Func:        amDetection,
			Defaults:    withCap(engine.Params{"prominence_ratio": 0.1}),
		},
		{
			ID:          "fm_detection",
			Category:    Modulation,
			Description: "Instantaneous frequency deviation and its spectrum",
			Func:        fmDetection,
			Defaults:    withCap(engine.Params{"prominence_ratio": 0.1}),
		},
		{
			ID:          "phase_analysis",
			Category:    Modulation,
			Description: "Instantaneous phase statistics and phase jumps",
			Func:        phaseAnalysis,
			Defaults:    withCap(engine.Params{"jump_threshold_rad": math.Pi / 2}),
		},
		{
			ID:          "modulation_index",
			Category:    Modulation,
			Description: "Envelope AC/DC ratio and depth",
			Func:        modulationIndex,
			Defaults:    withCap(engine.Params{}),
		},
	}
}

// rfftMagnitude returns the one-sided magnitude spectrum of x without windowing,
// with bin frequencies for the given sample rate.
func rfftMagnitude(x []float64, sampleRate int) (freqs, mags []float64) {
	if len(x) < 2 {
		return nil, nil
	}
	fft := fourier.NewFFT(len(x))
	coeff := fft.Coefficients(nil, x)
	freqs = make([]float64, len(coeff))
	mags = make([]float64, len(coeff))
	for k, c := range coeff {
		freqs[k] = fft.Freq(k) * float64(sampleRate)
		mags[k] = cmplx.Abs(c)
	}
	return freqs, mags
}

// modulationPeaks finds peaks of mags above DC whose prominence is at least
// promRatio of the spectrum maximum.
func modulationPeaks(mags []float64, promRatio float64) []dsp.Peak {
	if len(mags) < 3 {
		return nil
	}
	peaks := dsp.FindPeaks(mags[1:], promRatio*dsp.PeakLevel(mags), 1)
	for i := range peaks {
		peaks[i].Index++
	}
	return peaks
}

// unwrap removes 2π discontinuities from a phase sequence.
func unwrap(phase []float64) []float64 {
	out := make([]float64, len(phase))
	if len(phase) == 0 {
		return out
	}
	out[0] = phase[0]
	offset := 0.0
	for i := 1; i < len(phase); i++ {
		d := phase[i] - phase[i-1]
		if d > math.Pi {
			offset -= 2 * math.Pi * math.Round(d/(2*math.Pi))
		} else if d < -math.Pi {
			offset += 2 * math.Pi * math.Round(-d/(2*math.Pi))
		}
		out[i] = phase[i] + offset
	}
	return out
}

func timeAxis(n, sampleRate int) []float64 {
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i) / float64(sampleRate)
	}
	return t
}

func amDetection(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	promRatio := r.Float("prominence_ratio")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	sr := ctx.SampleRate()
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		env := dsp.Envelope(x)
		freqs, mags := rfftMagnitude(env, sr)
		peaks := modulationPeaks(mags, promRatio)

		var modFreqs, modMags []float64
		for _, pk := range firstN(peaks, maxComponents) {
			modFreqs = append(modFreqs, freqs[pk.Index])
			modMags = append(modMags, mags[pk.Index])
		}
		dominant := 0.0
		if len(peaks) > 0 {
			dominant = freqs[peaks[0].Index]
		}
		mean, std := dsp.MeanStd(env)
		lo, hi := dsp.MinMax(env)
		return map[string]any{
				"num_modulation_frequencies": len(peaks),
				"modulation_frequencies":     modFreqs,
				"modulation_magnitudes":      modMags,
				"dominant_modulation_freq":   dominant,
				"modulation_depth":           ratio(hi-lo, mean),
				"modulation_index":           ratio(std, mean),
				"envelope_mean":              mean,
				"envelope_std":               std,
			}, map[string]any{
				"time":                   timeAxis(len(env), sr),
				"envelope":               env,
				"modulation_frequencies": freqs,
				"modulation_spectrum":    mags,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m, Visualization: viz}, nil
}

// instantaneous returns the unwrapped instantaneous phase of x.
func instantaneous(x []float64) (wrapped, unwrapped []float64) {
	a := dsp.Analytic(x)
	wrapped = make([]float64, len(a))
	for i, c := range a {
		wrapped[i] = cmplx.Phase(c)
	}
	return wrapped, unwrap(wrapped)
}

func fmDetection(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	promRatio := r.Float("prominence_ratio")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	sr := ctx.SampleRate()
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		_, phase := instantaneous(x)
		inst := diff(phase)
		for i := range inst {
			inst[i] *= float64(sr) / (2 * math.Pi)
		}
		mean, std := dsp.MeanStd(inst)
		lo, hi := dsp.MinMax(inst)

		freqs, mags := rfftMagnitude(inst, sr)
		peaks := modulationPeaks(mags, promRatio)
		var modFreqs []float64
		for _, pk := range firstN(peaks, maxComponents) {
			modFreqs = append(modFreqs, freqs[pk.Index])
		}
		return map[string]any{
				"carrier_frequency_mean":    mean,
				"frequency_deviation":       std,
				"frequency_range":           hi - lo,
				"num_fm_components":         len(peaks),
				"fm_modulation_frequencies": modFreqs,
				"modulation_index_fm":       ratio(std, mean),
			}, map[string]any{
				"time":                    timeAxis(len(inst), sr),
				"instantaneous_frequency": inst,
				"carrier_frequency":       mean,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m, Visualization: viz}, nil
}

func phaseAnalysis(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	jump := r.Float("jump_threshold_rad")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	sr := ctx.SampleRate()
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		wrapped, phase := instantaneous(x)
		mean, std := dsp.MeanStd(wrapped)
		lo, hi := dsp.MinMax(wrapped)

		steps := diff(phase)
		_, stepStd := dsp.MeanStd(steps)
		absMean := 0.0
		for _, s := range steps {
			absMean += math.Abs(s)
		}
		if len(steps) > 0 {
			absMean /= float64(len(steps))
		}
		coherence := math.Max(0, math.Min(1, 1-ratio(stepStd, absMean)))

		var jumps []int
		for i := 1; i < len(wrapped); i++ {
			if math.Abs(wrapped[i]-wrapped[i-1]) > jump {
				jumps = append(jumps, i-1)
			}
		}
		total := 0.0
		if len(phase) > 0 {
			total = phase[len(phase)-1] - phase[0]
		}
		return map[string]any{
				"phase_mean":            mean,
				"phase_std":             std,
				"phase_range":           hi - lo,
				"unwrapped_phase_total": total,
				"phase_coherence":       coherence,
				"num_phase_jumps":       len(jumps),
				"phase_jump_rate":       float64(len(jumps)) / float64(len(x)) * float64(sr),
			}, map[string]any{
				"time":  timeAxis(len(phase), sr),
				"phase": phase,
				"jumps": jumps,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m, Visualization: viz}, nil
}

func modulationIndex(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		env := dsp.Envelope(x)
		dc, ac := dsp.MeanStd(env)
		lo, hi := dsp.MinMax(env)
		return map[string]any{
			"modulation_index":      ratio(ac, dc),
			"modulation_depth":      ratio(hi-lo, dc),
			"ac_component":          ac,
			"dc_component":          dc,
			"peak_to_average_ratio": ratio(hi, dc),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m}, nil
}
