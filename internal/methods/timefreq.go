package methods

import (
	"fmt"
	"math"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
	"github.com/linuxmatters/sigtrace/internal/segmentation"
)

func timeFrequencyMethods() []engine.Entry {
	seg := segmentation.DefaultConfig()
	return []engine.Entry{
		{
			ID:          "stft",
			Category:    TimeFrequency,
			Description: "Short-time Fourier transform summary",
			Func:        stft,
			Defaults:    withCap(engine.Params{"n_fft": 2048, "hop_length": 512, "window": dsp.WindowHann}),
		},
		{
			ID:          "band_stability",
			Category:    TimeFrequency,
			Description: "Frame-to-frame stability of energy in fixed frequency bands",
			Func:        bandStability,
			Defaults: withCap(engine.Params{
				"n_fft":           2048,
				"hop_length":      512,
				"frequency_bands": []any{0.0, 250.0, 500.0, 1000.0, 2000.0, 4000.0, 8000.0},
			}),
		},
		{
			ID:          "morpho_segmentation",
			Category:    TimeFrequency,
			Description: "Carrier-band energy segmentation with morphological cleaning",
			Func:        morphoSegmentation,
			Defaults: withCap(engine.Params{
				"carrier_hz":         seg.Band.CarrierHz,
				"relative_bandwidth": seg.Band.RelativeBandwidth,
				"window_length":      seg.Band.WindowLength,
				"overlap":            seg.Band.Overlap,
				"window":             seg.Band.Window,
				"threshold_method":   seg.Threshold.Method,
				"quantile":           seg.Threshold.Quantile,
				"z_threshold":        seg.Threshold.Z,
				"closing_len_frames": seg.ClosingFrames,
				"opening_len_frames": seg.OpeningFrames,
				"min_segment_s":      seg.MinSegmentLength,
				"include_segments":   true,
			}),
		},
	}
}

func stftParams(r *engine.Reader) (nfft, hop int, err error) {
	nfft = r.Int("n_fft")
	hop = r.Int("hop_length")
	if err := r.Err(); err != nil {
		return 0, 0, err
	}
	if nfft <= 1 || hop <= 0 || hop > nfft {
		return 0, 0, fmt.Errorf("need n_fft > 1 and hop_length in [1, n_fft], got %d and %d", nfft, hop)
	}
	return nfft, hop, nil
}

func stft(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	window := r.String("window")
	maxSamples := r.Int("max_samples")
	nfft, hop, err := stftParams(r)
	if err != nil {
		return results.Output{}, err
	}

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		st, err := dsp.ComputeSTFT(x, ctx.SampleRate(), nfft, nfft-hop, window)
		if err != nil {
			return nil, nil, err
		}
		if len(st.Magnitudes) == 0 {
			return nil, nil, fmt.Errorf("signal has %d samples, need at least %d", len(x), nfft)
		}

		dominant := make([]float64, len(st.Magnitudes))
		flux := make([]float64, 0, len(st.Magnitudes))
		db := make([][]float64, len(st.Magnitudes))
		for i, frame := range st.Magnitudes {
			dominant[i] = st.Frequencies[1+dsp.ArgMax(frame[1:])]
			if i > 0 {
				sum := 0.0
				for k, v := range frame {
					if d := v - st.Magnitudes[i-1][k]; d > 0 {
						sum += d * d
					}
				}
				flux = append(flux, math.Sqrt(sum))
			}
			row := make([]float64, len(frame))
			for k, v := range frame {
				row[k] = dsp.AmplitudeToDB(v)
			}
			db[i] = row
		}
		domMean, domStd := dsp.MeanStd(dominant)
		fluxMean, fluxStd := dsp.MeanStd(flux)
		return map[string]any{
				"num_frames":              len(st.Magnitudes),
				"num_bins":                len(st.Frequencies),
				"time_resolution_s":       st.HopSeconds(),
				"frequency_resolution_hz": st.Frequencies[1],
				"dominant_frequency_mean": domMean,
				"dominant_frequency_std":  domStd,
				"spectral_flux_mean":      fluxMean,
				"spectral_flux_std":       fluxStd,
			}, map[string]any{
				"times":        st.Times,
				"frequencies":  st.Frequencies,
				"magnitude_db": db,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"n_fft": nfft, "hop_length": hop, "window": window},
		Visualization: viz,
	}, nil
}

func bandStability(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	edges := r.Floats("frequency_bands")
	maxSamples := r.Int("max_samples")
	nfft, hop, err := stftParams(r)
	if err != nil {
		return results.Output{}, err
	}
	if len(edges) < 2 {
		return results.Output{}, fmt.Errorf("frequency_bands needs at least two edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return results.Output{}, fmt.Errorf("frequency_bands must increase, got %v", edges)
		}
	}

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		st, err := dsp.ComputeSTFT(x, ctx.SampleRate(), nfft, nfft-hop, dsp.WindowHann)
		if err != nil {
			return nil, nil, err
		}
		if len(st.Magnitudes) == 0 {
			return nil, nil, fmt.Errorf("signal has %d samples, need at least %d", len(x), nfft)
		}

		var bands []map[string]any
		tracks := make(map[string]any)
		var stabilities []float64
		for b := 1; b < len(edges); b++ {
			lo, hi := edges[b-1], edges[b]
			bins := st.BinsBetween(lo, hi)
			if len(bins) == 0 {
				continue
			}
			energy := make([]float64, len(st.Magnitudes))
			for i, frame := range st.Magnitudes {
				for _, k := range bins {
					energy[i] += frame[k] * frame[k]
				}
			}
			mean, std := dsp.MeanStd(energy)
			cv := ratio(std, mean)
			stability := 1 / (1 + cv)
			stabilities = append(stabilities, stability)
			bands = append(bands, map[string]any{
				"low_hz":      lo,
				"high_hz":     hi,
				"mean_energy": mean,
				"cv":          cv,
				"stability":   stability,
			})
			tracks[fmt.Sprintf("%g-%g", lo, hi)] = energy
		}
		tracks["times"] = st.Times
		return map[string]any{
			"bands":          bands,
			"mean_stability": dsp.Mean(stabilities),
		}, tracks, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"frequency_bands": edges},
		Visualization: viz,
	}, nil
}

func segmentationConfig(r *engine.Reader) (segmentation.Config, error) {
	cfg := segmentation.Config{
		Band: segmentation.BandConfig{
			CarrierHz:         r.Float("carrier_hz"),
			RelativeBandwidth: r.Float("relative_bandwidth"),
			WindowLength:      r.Int("window_length"),
			Overlap:           r.Int("overlap"),
			Window:            r.String("window"),
		},
		Threshold: segmentation.ThresholdConfig{
			Method:   r.String("threshold_method"),
			Quantile: r.Float("quantile"),
			Z:        r.Float("z_threshold"),
		},
		ClosingFrames:    r.Int("closing_len_frames"),
		OpeningFrames:    r.Int("opening_len_frames"),
		MinSegmentLength: r.Float("min_segment_s"),
	}
	if err := r.Err(); err != nil {
		return cfg, err
	}
	if cfg.Band.WindowLength <= 0 || cfg.Band.Overlap < 0 || cfg.Band.Overlap >= cfg.Band.WindowLength {
		return cfg, fmt.Errorf("need window_length > 0 and overlap in [0, window_length), got %d and %d",
			cfg.Band.WindowLength, cfg.Band.Overlap)
	}
	return cfg, nil
}

func morphoSegmentation(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	include := r.Bool("include_segments")
	maxSamples := r.Int("max_samples")
	cfg, err := segmentationConfig(r)
	if err != nil {
		return results.Output{}, err
	}

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		res, err := segmentation.Run(x, ctx.SampleRate(), cfg)
		if err != nil {
			return nil, nil, err
		}
		durations := make([]float64, len(res.Segments))
		for i, s := range res.Segments {
			durations[i] = s.Duration
		}
		meanDur, stdDur := dsp.MeanStd(durations)
		out := map[string]any{
			"num_segments":      len(res.Segments),
			"activity_ratio":    res.Activity(),
			"mean_duration_s":   meanDur,
			"std_duration_s":    stdDur,
			"total_duration_s":  dsp.Sum(durations),
			"num_frames":        len(res.Band.Energy),
			"band_low_hz":       res.Band.LowHz,
			"band_high_hz":      res.Band.HighHz,
			"band_bins":         res.Band.Bins,
			"hop_s":             res.Band.Hop,
			"threshold":         res.Threshold.Value,
			"threshold_details": map[string]any{
				"method":         res.Threshold.Method,
				"quantile_value": res.Threshold.Quantile,
				"robust_z_value": res.Threshold.RobustZ,
				"median":         res.Threshold.Median,
				"mad":            res.Threshold.MAD,
			},
		}
		if include {
			out["segments"] = res.Segments
		}
		return out, map[string]any{
			"times":       res.Band.Times,
			"band_energy": res.Band.Energy,
			"mask_raw":    res.RawMask,
			"mask_clean":  res.Mask,
			"threshold":   res.Threshold.Value,
		}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics: map[string]any{
			"carrier_hz":         cfg.Band.CarrierHz,
			"threshold_method":   cfg.Threshold.Method,
			"closing_len_frames": cfg.ClosingFrames,
			"opening_len_frames": cfg.OpeningFrames,
		},
		Visualization: viz,
	}, nil
}
