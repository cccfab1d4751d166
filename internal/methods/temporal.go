package methods

import (
	"fmt"
	"math"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
	"github.com/linuxmatters/sigtrace/internal/results"
)

// maxListed caps per-channel event lists in measurements.
const maxListed = 100

func temporalMethods() []engine.Entry {
	return []engine.Entry{
		{
			ID:          "envelope",
			Category:    Temporal,
			Description: "Amplitude envelope (Hilbert magnitude or framed RMS)",
			Func:        envelope,
			Defaults:    withCap(engine.Params{"method": "hilbert", "window_size": 1024}),
		},
		{
			ID:          "autocorrelation",
			Category:    Temporal,
			Description: "Autocorrelation and first periodicity peak",
			Func:        autocorrelation,
			Defaults:    withCap(engine.Params{"max_lag": 0, "normalize": true}),
		},
		{
			ID:          "pulse_detection",
			Category:    Temporal,
			Description: "Envelope pulses above a fraction of the peak",
			Func:        pulseDetection,
			Defaults:    withCap(engine.Params{"threshold": 0.5, "min_distance": 0.01}),
		},
		{
			ID:          "duration_ratios",
			Category:    Temporal,
			Description: "Ratios between consecutive pulse intervals",
			Func:        durationRatios,
			Defaults:    withCap(engine.Params{"threshold": 0.5, "min_distance": 0.01}),
		},
		{
			ID:          "level_statistics",
			Category:    Temporal,
			Description: "RMS, peak, crest factor, DC offset, zero-crossing rate and loudness",
			Func:        levelStatistics,
			Defaults:    withCap(engine.Params{}),
		},
	}
}

func envelope(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	method := r.String("method")
	window := r.Int("window_size")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if method != "hilbert" && method != "rms" {
		return results.Output{}, fmt.Errorf("envelope method must be hilbert or rms, got %q", method)
	}
	if method == "rms" && window <= 0 {
		return results.Output{}, fmt.Errorf("window_size must be positive, got %d", window)
	}

	sr := float64(ctx.SampleRate())
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		var env []float64
		step := 1.0 / sr
		if method == "hilbert" {
			env = dsp.Envelope(x)
		} else {
			env = dsp.FrameRMS(x, window)
			step = float64(window) / sr
		}
		mean, std := dsp.MeanStd(env)
		lo, hi := dsp.MinMax(env)
		times := make([]float64, len(env))
		for i := range times {
			times[i] = float64(i) * step
		}
		return map[string]any{
				"mean":             mean,
				"std":              std,
				"min":              lo,
				"max":              hi,
				"dynamic_range_db": dsp.AmplitudeToDB(hi) - dsp.AmplitudeToDB(lo),
				"variation_coeff":  ratio(std, mean),
				"num_values":       len(env),
			}, map[string]any{
				"time":     times,
				"envelope": env,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"method": method},
		Visualization: viz,
	}, nil
}

func autocorrelation(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	maxLag := r.Int("max_lag")
	normalize := r.Bool("normalize")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if maxLag < 0 {
		return results.Output{}, fmt.Errorf("max_lag must not be negative, got %d", maxLag)
	}
	if maxLag == 0 {
		maxLag = ctx.SampleRate()
	}

	sr := float64(ctx.SampleRate())
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		mean := dsp.Mean(x)
		centred := make([]float64, len(x))
		for i, v := range x {
			centred[i] = v - mean
		}
		ac := dsp.Autocorrelation(centred, maxLag)
		if normalize && len(ac) > 0 && ac[0] != 0 {
			zero := ac[0]
			for i := range ac {
				ac[i] /= zero
			}
		}

		out := map[string]any{
			"max_lag":          len(ac) - 1,
			"first_peak_lag_s": 0.0,
			"first_peak_value": 0.0,
			"periodicity":      0.0,
		}
		if len(ac) > 2 {
			if peaks := dsp.FindPeaks(ac, 0, 1); len(peaks) > 0 {
				out["first_peak_lag_s"] = float64(peaks[0].Index) / sr
				out["first_peak_value"] = peaks[0].Value
			}
			_, hi := dsp.MinMax(ac[1:])
			out["periodicity"] = hi
		}

		lags := make([]float64, len(ac))
		for i := range lags {
			lags[i] = float64(i) / sr
		}
		return out, map[string]any{"lags_s": lags, "autocorrelation": ac}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"max_lag": maxLag, "normalized": normalize},
		Visualization: viz,
	}, nil
}

// pulses returns the sample positions of envelope peaks at or above threshold times
// the envelope maximum, at least minDistance seconds apart.
func pulses(x []float64, sampleRate int, threshold, minDistance float64) ([]int, []float64, error) {
	if threshold < 0 || threshold > 1 {
		return nil, nil, fmt.Errorf("threshold must be in [0, 1], got %g", threshold)
	}
	if minDistance < 0 {
		return nil, nil, fmt.Errorf("min_distance must not be negative, got %g", minDistance)
	}
	env := dsp.Envelope(x)
	height := threshold * dsp.PeakLevel(env)
	if height == 0 {
		return nil, env, nil
	}
	dist := int(math.Round(minDistance * float64(sampleRate)))
	peaks := dsp.FindPeaksAbove(env, height, 0, dist)
	idx := make([]int, len(peaks))
	for i, pk := range peaks {
		idx[i] = pk.Index
	}
	return idx, env, nil
}

func pulseDetection(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	threshold := r.Float("threshold")
	minDistance := r.Float("min_distance")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	sr := float64(ctx.SampleRate())
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		idx, env, err := pulses(x, ctx.SampleRate(), threshold, minDistance)
		if err != nil {
			return nil, nil, err
		}
		times := make([]float64, len(idx))
		amps := make([]float64, len(idx))
		for i, k := range idx {
			times[i] = float64(k) / sr
			amps[i] = env[k]
		}
		intervals := diff(times)
		meanIv, stdIv := dsp.MeanStd(intervals)
		return map[string]any{
				"num_pulses":         len(idx),
				"pulse_rate_hz":      float64(len(idx)) / (float64(len(x)) / sr),
				"pulse_times_s":      firstN(times, maxListed),
				"mean_interval_s":    meanIv,
				"std_interval_s":     stdIv,
				"mean_amplitude":     dsp.Mean(amps),
				"threshold_absolute": threshold * dsp.PeakLevel(env),
			}, map[string]any{
				"pulse_times":      times,
				"pulse_amplitudes": amps,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m, Visualization: viz}, nil
}

func durationRatios(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	threshold := r.Float("threshold")
	minDistance := r.Float("min_distance")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	sr := float64(ctx.SampleRate())
	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		idx, _, err := pulses(x, ctx.SampleRate(), threshold, minDistance)
		if err != nil {
			return nil, nil, err
		}
		times := make([]float64, len(idx))
		for i, k := range idx {
			times[i] = float64(k) / sr
		}
		intervals := diff(times)
		ratios := make([]float64, 0, max(0, len(intervals)-1))
		for i := 1; i < len(intervals); i++ {
			if intervals[i-1] > 0 {
				ratios = append(ratios, intervals[i]/intervals[i-1])
			}
		}
		meanIv, stdIv := dsp.MeanStd(intervals)
		meanR, stdR := dsp.MeanStd(ratios)
		return map[string]any{
			"num_intervals":   len(intervals),
			"mean_interval_s": meanIv,
			"interval_cv":     ratio(stdIv, meanIv),
			"mean_ratio":      meanR,
			"std_ratio":       stdR,
			"ratios":          firstN(ratios, maxListed),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m}, nil
}

func levelStatistics(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		rms, peak := dsp.RMS(x), dsp.PeakLevel(x)
		lufs := preprocess.IntegratedLoudness(x, ctx.SampleRate())
		if math.IsInf(lufs, -1) {
			lufs = dsp.SilenceFloorDB
		}
		return map[string]any{
			"rms_dbfs":           dsp.AmplitudeToDB(rms),
			"peak_dbfs":          dsp.AmplitudeToDB(peak),
			"crest_factor_db":    dsp.AmplitudeToDB(peak) - dsp.AmplitudeToDB(rms),
			"dc_offset":          dsp.Mean(x),
			"zero_crossing_rate": dsp.ZeroCrossingRate(x),
			"integrated_lufs":    lufs,
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m}, nil
}

// diff returns the first differences of x.
func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := range out {
		out[i] = x[i+1] - x[i]
	}
	return out
}
