package methods

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
)

var errSingleChannel = errors.New("needs at least two channels")

func interChannelMethods() []engine.Entry {
	return []engine.Entry{
		{
			ID:          "cross_correlation",
			Category:    InterChannel,
			Description: "Normalized cross-correlation of every channel pair",
			Func:        crossCorrelation,
			Defaults:    withCap(engine.Params{"max_lag_s": 0.05}),
		},
		{
			ID:          "lr_difference",
			Category:    InterChannel,
			Description: "Energy and correlation of the left/right difference",
			Func:        lrDifference,
			Defaults:    withCap(engine.Params{}),
		},
		{
			ID:          "time_delay",
			Category:    InterChannel,
			Description: "Sub-sample delay between channel pairs",
			Func:        timeDelay,
			Defaults:    withCap(engine.Params{"max_lag_s": 0.01}),
		},
	}
}

// pairFunc measures one ordered channel pair.
type pairFunc func(a, b channels.Channel) (map[string]any, error)

// eachPair applies fn to every channel pair in declaration order, keyed "a_vs_b".
func eachPair(ctx *engine.Context, maxSamples int, fn pairFunc) (map[string]any, error) {
	chs := ctx.Channels()
	if len(chs) < 2 {
		return nil, errSingleChannel
	}
	if err := engine.CheckSampleLimit(ctx.Len(), maxSamples); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	for i := range chs {
		for j := i + 1; j < len(chs); j++ {
			key := chs[i].Name() + "_vs_" + chs[j].Name()
			m, err := fn(chs[i], chs[j])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			out[key] = m
		}
	}
	return out, nil
}

// normalizedXCorr returns the cross-correlation of a and b for lags [-maxLag, maxLag]
// scaled so that identical signals peak at 1.
func normalizedXCorr(a, b []float64, maxLag int) []float64 {
	cc := dsp.CrossCorrelation(a, b, maxLag)
	norm := math.Sqrt(floats.Dot(a, a) * floats.Dot(b, b))
	if norm > 0 {
		floats.Scale(1/norm, cc)
	}
	return cc
}

func lagSamples(ctx *engine.Context, seconds float64) (int, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("max_lag_s must be positive, got %g", seconds)
	}
	return max(1, int(math.Round(seconds*float64(ctx.SampleRate())))), nil
}

func crossCorrelation(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	maxLagS := r.Float("max_lag_s")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	maxLag, err := lagSamples(ctx, maxLagS)
	if err != nil {
		return results.Output{}, err
	}

	sr := float64(ctx.SampleRate())
	viz := make(map[string]any)
	m, err := eachPair(ctx, maxSamples, func(a, b channels.Channel) (map[string]any, error) {
		cc := normalizedXCorr(a.Samples(), b.Samples(), maxLag)
		mid := len(cc) / 2
		k := dsp.ArgMax(cc)
		lags := make([]float64, len(cc))
		for i := range lags {
			lags[i] = float64(i-mid) / sr
		}
		viz[a.Name()+"_vs_"+b.Name()] = map[string]any{"lags_s": lags, "correlation": cc}
		return map[string]any{
			"peak_correlation":     cc[k],
			"peak_lag_samples":     k - mid,
			"peak_lag_s":           float64(k-mid) / sr,
			"zero_lag_correlation": cc[mid],
		}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"max_lag_samples": maxLag},
		Visualization: viz,
	}, nil
}

func lrDifference(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	left, okL := ctx.Channel(channels.Left)
	right, okR := ctx.Channel(channels.Right)
	if !okL || !okR {
		return results.Output{}, errors.New("needs the left and right channels")
	}
	if err := engine.CheckSampleLimit(left.Len(), maxSamples); err != nil {
		return results.Output{}, err
	}

	l, rt := left.Samples(), right.Samples()
	side := make([]float64, len(l))
	mid := make([]float64, len(l))
	for i := range l {
		side[i] = (l[i] - rt[i]) / 2
		mid[i] = (l[i] + rt[i]) / 2
	}
	corr := 0.0
	if _, sl := dsp.MeanStd(l); sl > 0 {
		if _, sr := dsp.MeanStd(rt); sr > 0 {
			corr = stat.Correlation(l, rt, nil)
		}
	}
	sideRMS, midRMS := dsp.RMS(side), dsp.RMS(mid)
	return results.Output{
		Measurements: map[string]any{
			channels.Left + "_vs_" + channels.Right: map[string]any{
				"difference_rms_dbfs": dsp.AmplitudeToDB(sideRMS),
				"sum_rms_dbfs":        dsp.AmplitudeToDB(midRMS),
				"side_to_mid_db":      dsp.AmplitudeToDB(sideRMS) - dsp.AmplitudeToDB(midRMS),
				"energy_ratio":        ratio(sideRMS*sideRMS, midRMS*midRMS),
				"correlation":         corr,
				"difference_peak":     dsp.PeakLevel(side),
			},
		},
	}, nil
}

// parabolicPeak refines the location of the maximum at k using its neighbours.
func parabolicPeak(y []float64, k int) float64 {
	if k <= 0 || k >= len(y)-1 {
		return float64(k)
	}
	a, b, c := y[k-1], y[k], y[k+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(k)
	}
	return float64(k) + 0.5*(a-c)/den
}

func timeDelay(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	maxLagS := r.Float("max_lag_s")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	maxLag, err := lagSamples(ctx, maxLagS)
	if err != nil {
		return results.Output{}, err
	}

	sr := float64(ctx.SampleRate())
	m, err := eachPair(ctx, maxSamples, func(a, b channels.Channel) (map[string]any, error) {
		cc := normalizedXCorr(a.Samples(), b.Samples(), maxLag)
		mid := len(cc) / 2
		k := dsp.ArgMax(cc)
		delay := parabolicPeak(cc, k) - float64(mid)
		return map[string]any{
			"delay_samples":    delay,
			"delay_s":          delay / sr,
			"delay_ms":         1000 * delay / sr,
			"peak_correlation": cc[k],
		}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics:      map[string]any{"max_lag_samples": maxLag},
	}, nil
}
