package methods

import (
	"fmt"
	"math"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
)

func steganographyMethods() []engine.Entry {
	return []engine.Entry{
		{
			ID:          "lsb_analysis",
			Category:    Steganography,
			Description: "Least-significant-bit balance, transitions and run lengths",
			Func:        lsbAnalysis,
			Defaults:    withCap(engine.Params{"bit_depth": 16, "analysis_samples": 100000}),
		},
		{
			ID:          "quantization_noise",
			Category:    Steganography,
			Description: "Structure of the requantization residual",
			Func:        quantizationNoise,
			Defaults:    withCap(engine.Params{"bit_depth": 16, "analysis_samples": 100000}),
		},
	}
}

func bitDepth(r *engine.Reader) (int, error) {
	bits := r.Int("bit_depth")
	if err := r.Err(); err != nil {
		return 0, err
	}
	if bits < 2 || bits > 32 {
		return 0, fmt.Errorf("bit_depth must be in [2, 32], got %d", bits)
	}
	return bits, nil
}

func lsbAnalysis(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	limit := r.Int("analysis_samples")
	maxSamples := r.Int("max_samples")
	bits, err := bitDepth(r)
	if err != nil {
		return results.Output{}, err
	}

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		q := quantize(head(x, limit), bits)
		lsb := make([]float64, len(q))
		for i, v := range q {
			lsb[i] = float64(v & 1)
		}
		mean, std := dsp.MeanStd(lsb)

		transitions := 0
		var zeroRuns, oneRuns []float64
		run := 1
		for i := 1; i < len(lsb); i++ {
			if lsb[i] == lsb[i-1] {
				run++
				continue
			}
			transitions++
			if lsb[i-1] == 0 {
				zeroRuns = append(zeroRuns, float64(run))
			} else {
				oneRuns = append(oneRuns, float64(run))
			}
			run = 1
		}
		rate := 0.0
		if len(lsb) > 0 {
			rate = float64(transitions) / float64(len(lsb))
		}
		return map[string]any{
			"lsb_mean":         mean,
			"lsb_std":          std,
			"transition_rate":  rate,
			"mean_zero_run":    dsp.Mean(zeroRuns),
			"mean_one_run":     dsp.Mean(oneRuns),
			"samples_analyzed": len(q),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics:      map[string]any{"bit_depth": bits},
	}, nil
}

// autocorrLags is the lag window searched for residual periodicity.
const autocorrLags = 100

func quantizationNoise(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	limit := r.Int("analysis_samples")
	maxSamples := r.Int("max_samples")
	bits, err := bitDepth(r)
	if err != nil {
		return results.Output{}, err
	}
	full := float64(int64(1)<<(bits-1) - 1)

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		x = head(x, limit)
		q := quantize(x, bits)
		noise := make([]float64, len(x))
		for i, v := range x {
			noise[i] = v - float64(q[i])/full
		}
		_, std := dsp.MeanStd(noise)
		power := 0.0
		for _, v := range noise {
			power += v * v
		}
		if len(noise) > 0 {
			power /= float64(len(noise))
		}

		peak := 0.0
		if ac := dsp.Autocorrelation(noise, autocorrLags-1); len(ac) > 1 && ac[0] > 0 {
			_, hi := dsp.MinMax(ac[1:])
			peak = hi / ac[0]
		}

		flatness := 0.0
		if _, mags := rfftMagnitude(noise, 1); len(mags) > 0 {
			logSum := 0.0
			for _, v := range mags {
				logSum += math.Log(v + 1e-10)
			}
			flatness = math.Exp(logSum/float64(len(mags))) / (dsp.Mean(mags) + 1e-10)
		}
		return map[string]any{
			"noise_power":       power,
			"noise_std":         std,
			"autocorr_peak":     peak,
			"spectral_flatness": flatness,
			"samples_analyzed":  len(x),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics:      map[string]any{"bit_depth": bits},
	}, nil
}
