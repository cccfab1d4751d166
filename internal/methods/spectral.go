package methods

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
)

func spectralMethods(opts Options) []engine.Entry {
	frames := engine.Params{"n_fft": 2048, "hop_length": 512, "window": dsp.WindowHann}
	return []engine.Entry{
		{
			ID:          "fft_global",
			Category:    Spectral,
			Description: "Whole-signal magnitude spectrum",
			Func:        fftGlobal,
			Defaults:    withCap(engine.Params{"window": dsp.WindowHann}),
		},
		{
			ID:          "peak_detection",
			Category:    Spectral,
			Description: "Prominent spectral peaks",
			Func:        peakDetection,
			Defaults: withCap(engine.Params{
				"window":           dsp.WindowHann,
				"prominence_ratio": 0.05,
				"min_distance_hz":  10.0,
				"max_peaks":        20,
			}),
		},
		{
			ID:          "spectral_centroid",
			Category:    Spectral,
			Description: "Magnitude-weighted mean frequency",
			Func:        spectralShape(centroidOf, "centroid_hz"),
			Defaults:    withCap(frames),
		},
		{
			ID:          "spectral_bandwidth",
			Category:    Spectral,
			Description: "Magnitude-weighted spread around the centroid",
			Func:        spectralShape(bandwidthOf, "bandwidth_hz"),
			Defaults:    withCap(frames),
		},
		{
			ID:          "spectral_flatness",
			Category:    Spectral,
			Description: "Geometric over arithmetic mean of the power spectrum",
			Func:        spectralShape(flatnessOf, "flatness"),
			Defaults:    withCap(frames),
		},
		{
			ID:          "mains_hum",
			Category:    Spectral,
			Description: "Level of mains hum and its harmonics",
			Func:        mainsHum,
			Defaults: withCap(engine.Params{
				"fundamental_hz": opts.MainsHz,
				"harmonics":      5,
				"bandwidth_hz":   2.0,
			}),
		},
	}
}

func fftGlobal(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	window := r.String("window")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		spec, err := dsp.MagnitudeSpectrum(x, ctx.SampleRate(), window)
		if err != nil {
			return nil, nil, err
		}
		power := spec.Power()
		// DC is excluded from the dominant component.
		k := 1 + dsp.ArgMax(spec.Magnitudes[1:])
		db := make([]float64, len(spec.Magnitudes))
		for i, v := range spec.Magnitudes {
			db[i] = dsp.AmplitudeToDB(v)
		}
		return map[string]any{
				"dominant_frequency_hz": spec.Frequencies[k],
				"dominant_magnitude_db": db[k],
				"total_power":           dsp.Sum(power),
				"num_bins":              len(spec.Magnitudes),
				"resolution_hz":         spec.Frequencies[1],
			}, map[string]any{
				"frequencies":  spec.Frequencies,
				"magnitude_db": db,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"window": window},
		Visualization: viz,
	}, nil
}

func peakDetection(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	window := r.String("window")
	promRatio := r.Float("prominence_ratio")
	minDistHz := r.Float("min_distance_hz")
	maxPeaks := r.Int("max_peaks")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if promRatio < 0 || minDistHz < 0 || maxPeaks <= 0 {
		return results.Output{}, fmt.Errorf("invalid peak parameters (prominence_ratio %g, min_distance_hz %g, max_peaks %d)",
			promRatio, minDistHz, maxPeaks)
	}

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		spec, err := dsp.MagnitudeSpectrum(x, ctx.SampleRate(), window)
		if err != nil {
			return nil, nil, err
		}
		res := spec.Frequencies[1]
		dist := 1
		if res > 0 {
			dist = max(1, int(math.Round(minDistHz/res)))
		}
		peaks := dsp.FindPeaks(spec.Magnitudes, promRatio*dsp.PeakLevel(spec.Magnitudes), dist)
		slices.SortStableFunc(peaks, func(a, b dsp.Peak) int { return cmp.Compare(b.Value, a.Value) })
		peaks = firstN(peaks, maxPeaks)

		list := make([]map[string]any, len(peaks))
		for i, pk := range peaks {
			list[i] = map[string]any{
				"frequency_hz": spec.Frequencies[pk.Index],
				"magnitude_db": dsp.AmplitudeToDB(pk.Value),
				"prominence":   pk.Prominence,
			}
		}
		return map[string]any{"num_peaks": len(list), "peaks": list}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{Measurements: m}, nil
}

// shapeFunc reduces one magnitude spectrum to a scalar.
type shapeFunc func(freqs, mags []float64) float64

func centroidOf(freqs, mags []float64) float64 {
	num, den := 0.0, 0.0
	for i, m := range mags {
		num += freqs[i] * m
		den += m
	}
	return ratio(num, den)
}

func bandwidthOf(freqs, mags []float64) float64 {
	c := centroidOf(freqs, mags)
	num, den := 0.0, 0.0
	for i, m := range mags {
		d := freqs[i] - c
		num += m * d * d
		den += m
	}
	return math.Sqrt(ratio(num, den))
}

func flatnessOf(_, mags []float64) float64 {
	logSum, sum := 0.0, 0.0
	for _, m := range mags {
		pw := m*m + 1e-10
		logSum += math.Log(pw)
		sum += pw
	}
	n := float64(len(mags))
	return math.Exp(logSum/n) / (sum / n)
}

// spectralShape builds a method reporting fn over the whole-signal spectrum and the
// mean and spread of fn across STFT frames.
func spectralShape(fn shapeFunc, key string) engine.Method {
	return func(ctx *engine.Context, p engine.Params) (results.Output, error) {
		r := p.Reader()
		nfft := r.Int("n_fft")
		hop := r.Int("hop_length")
		window := r.String("window")
		maxSamples := r.Int("max_samples")
		if err := r.Err(); err != nil {
			return results.Output{}, err
		}
		if hop <= 0 || hop > nfft {
			return results.Output{}, fmt.Errorf("hop_length must be in [1, n_fft], got %d", hop)
		}

		m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
			spec, err := dsp.MagnitudeSpectrum(x, ctx.SampleRate(), window)
			if err != nil {
				return nil, nil, err
			}
			out := map[string]any{key: fn(spec.Frequencies, spec.Magnitudes)}

			st, err := dsp.ComputeSTFT(x, ctx.SampleRate(), nfft, nfft-hop, window)
			if err != nil {
				return nil, nil, err
			}
			track := make([]float64, len(st.Magnitudes))
			for i, frame := range st.Magnitudes {
				track[i] = fn(st.Frequencies, frame)
			}
			mean, std := dsp.MeanStd(track)
			out["frame_mean"] = mean
			out["frame_std"] = std
			out["num_frames"] = len(track)
			return out, map[string]any{"times": st.Times, key: track}, nil
		})
		if err != nil {
			return results.Output{}, err
		}
		return results.Output{
			Measurements:  m,
			Metrics:       map[string]any{"n_fft": nfft, "hop_length": hop},
			Visualization: viz,
		}, nil
	}
}

func mainsHum(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	f0 := r.Float("fundamental_hz")
	harmonics := r.Int("harmonics")
	bw := r.Float("bandwidth_hz")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if f0 <= 0 || harmonics <= 0 || bw <= 0 {
		return results.Output{}, fmt.Errorf("invalid hum parameters (fundamental_hz %g, harmonics %d, bandwidth_hz %g)",
			f0, harmonics, bw)
	}
	nyquist := float64(ctx.SampleRate()) / 2

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		spec, err := dsp.MagnitudeSpectrum(x, ctx.SampleRate(), dsp.WindowHann)
		if err != nil {
			return nil, nil, err
		}
		power := spec.Power()
		total := dsp.Sum(power[1:])

		bandPower := func(lo, hi float64) (sum float64, n int) {
			for k, f := range spec.Frequencies {
				if f >= lo && f <= hi {
					sum += power[k]
					n++
				}
			}
			return sum, n
		}

		var list []map[string]any
		humPower := 0.0
		for h := 1; h <= harmonics; h++ {
			fc := f0 * float64(h)
			if fc+bw > nyquist {
				break
			}
			in, nIn := bandPower(fc-bw, fc+bw)
			wide, nWide := bandPower(fc-6*bw, fc+6*bw)
			// Neighbourhood is the wide band with the harmonic band removed.
			floor := 0.0
			if nWide > nIn {
				floor = (wide - in) / float64(nWide-nIn)
			}
			perBin := 0.0
			if nIn > 0 {
				perBin = in / float64(nIn)
			}
			humPower += in
			list = append(list, map[string]any{
				"harmonic":     h,
				"frequency_hz": fc,
				"level_db":     dsp.PowerToDB(ratio(in, total)),
				"snr_db":       dsp.PowerToDB(ratio(perBin, floor)),
			})
		}
		return map[string]any{
			"fundamental_hz":  f0,
			"harmonics":       list,
			"hum_power_ratio": ratio(humPower, total),
			"hum_level_db":    dsp.PowerToDB(ratio(humPower, total)),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics:      map[string]any{"fundamental_hz": f0, "bandwidth_hz": bw},
	}, nil
}
