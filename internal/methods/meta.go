package methods

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/linuxmatters/sigtrace/internal/dsp"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
	"github.com/linuxmatters/sigtrace/internal/results"
)

// minSegmentSamples is the shortest slice compared by the segment methods.
const minSegmentSamples = 1024

func metaAnalysisMethods() []engine.Entry {
	return []engine.Entry{
		{
			ID:          "high_order_statistics",
			Category:    MetaAnalysis,
			Description: "Moments of the amplitude distribution against a fitted normal",
			Func:        highOrderStatistics,
			Defaults:    withCap(engine.Params{"num_bins": 50, "analysis_samples": 200000}),
		},
		{
			ID:          "inter_segment_comparison",
			Category:    MetaAnalysis,
			Description: "Feature distances between timeline segments",
			Func:        interSegmentComparison,
			Defaults:    withCap(engine.Params{"num_segments": 10}),
		},
		{
			ID:          "segment_clustering",
			Category:    MetaAnalysis,
			Description: "Spectral-shape repetition across equal segments",
			Func:        segmentClustering,
			Defaults:    withCap(engine.Params{"num_segments": 20, "unique_threshold": 0.5}),
		},
		{
			ID:          "stability_scores",
			Category:    MetaAnalysis,
			Description: "Energy and spectral-centroid stability over windows",
			Func:        stabilityScores,
			Defaults:    withCap(engine.Params{"window_size": 2048, "hop_length": 512, "analysis_samples": 200000}),
		},
	}
}

func highOrderStatistics(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	bins := r.Int("num_bins")
	limit := r.Int("analysis_samples")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if bins < 2 {
		return results.Output{}, fmt.Errorf("num_bins must be at least 2, got %d", bins)
	}

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		x = head(x, limit)
		mean, std := dsp.MeanStd(x)
		peak := dsp.PeakLevel(x)
		skew, kurt := dsp.Skewness(x), dsp.ExcessKurtosis(x)

		counts, centres := dsp.Histogram(x, bins)
		density := make([]float64, len(counts))
		normal := make([]float64, len(centres))
		if len(centres) > 1 {
			width := centres[1] - centres[0]
			for i, c := range counts {
				density[i] = c / (float64(len(x)) * width)
			}
		}
		if std > 0 {
			dist := distuv.Normal{Mu: mean, Sigma: std}
			for i, c := range centres {
				normal[i] = dist.Prob(c)
			}
		}
		return map[string]any{
				"mean":             mean,
				"std":              std,
				"variance":         std * std,
				"skewness":         skew,
				"kurtosis":         kurt,
				"peak_value":       peak,
				"crest_factor":     ratio(peak, dsp.RMS(x)),
				"samples_analyzed": len(x),
			}, map[string]any{
				"histogram":           density,
				"bin_centers":         centres,
				"normal_distribution": normal,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"num_bins": bins},
		Visualization: viz,
	}, nil
}

// equalSplit divides n samples into k equal consecutive ranges, dropping the remainder.
func equalSplit(n, k int) []preprocess.Boundary {
	size := n / k
	out := make([]preprocess.Boundary, k)
	for i := range out {
		out[i] = preprocess.Boundary{Start: i * size, End: (i + 1) * size}
	}
	return out
}

// segmentFeatures returns energy, bin-index spectral centroid, spectral mean and
// spectral spread of one slice.
func segmentFeatures(seg []float64) []float64 {
	_, mags := rfftMagnitude(seg, 1)
	num, den := 0.0, 0.0
	for k, v := range mags {
		num += float64(k) * v
		den += v
	}
	mean, std := dsp.MeanStd(mags)
	return []float64{floats.Dot(seg, seg), ratio(num, den), mean, std}
}

func interSegmentComparison(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	k := r.Int("num_segments")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if k < 2 {
		return results.Output{}, fmt.Errorf("num_segments must be at least 2, got %d", k)
	}

	// Timeline boundaries from preprocessing win over an equal split.
	bounds, source := ctx.Segments(), "timeline"
	if len(bounds) < 2 {
		bounds, source = equalSplit(ctx.Len(), k), "equal_split"
	}
	for _, b := range bounds {
		if b.Len() < minSegmentSamples {
			return results.Output{}, fmt.Errorf("segment [%d, %d) is shorter than %d samples", b.Start, b.End, minSegmentSamples)
		}
	}

	m, _, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		features := make([][]float64, len(bounds))
		for i, b := range bounds {
			features[i] = segmentFeatures(x[b.Start:b.End])
		}
		var dists []float64
		for i := range features {
			for j := i + 1; j < len(features); j++ {
				dists = append(dists, floats.Distance(features[i], features[j], 2))
			}
		}
		mean, std := dsp.MeanStd(dists)
		lo, hi := dsp.MinMax(dists)
		return map[string]any{
			"num_segments":     len(bounds),
			"mean_distance":    mean,
			"std_distance":     std,
			"min_distance":     lo,
			"max_distance":     hi,
			"similarity_score": 1 / (1 + mean),
		}, nil, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements: m,
		Metrics:      map[string]any{"num_segments": len(bounds), "segment_source": source},
	}, nil
}

// spectralProfileBins is the length of the normalised spectral profile compared by
// segment_clustering.
const spectralProfileBins = 100

func cosineDistance(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(a, b)/(na*nb)
}

func segmentClustering(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	k := r.Int("num_segments")
	unique := r.Float("unique_threshold")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if k < 2 {
		return results.Output{}, fmt.Errorf("num_segments must be at least 2, got %d", k)
	}
	if ctx.Len()/k < minSegmentSamples {
		return results.Output{}, fmt.Errorf("%d segments of %d samples are shorter than %d samples", k, ctx.Len()/k, minSegmentSamples)
	}
	bounds := equalSplit(ctx.Len(), k)

	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		profiles := make([][]float64, k)
		for i, b := range bounds {
			_, mags := rfftMagnitude(x[b.Start:b.End], 1)
			prof := make([]float64, spectralProfileBins)
			copy(prof, mags)
			if s := floats.Sum(prof); s > 0 {
				floats.Scale(1/s, prof)
			}
			profiles[i] = prof
		}

		matrix := make([][]float64, k)
		var positive []float64
		uniqueCount := 0
		for i := range profiles {
			matrix[i] = make([]float64, k)
			nearest := math.Inf(1)
			for j := range profiles {
				if i == j {
					continue
				}
				d := cosineDistance(profiles[i], profiles[j])
				matrix[i][j] = d
				if d > 0 {
					positive = append(positive, d)
					nearest = math.Min(nearest, d)
				}
			}
			if !math.IsInf(nearest, 1) && nearest > unique {
				uniqueCount++
			}
		}
		return map[string]any{
				"num_segments":       k,
				"avg_intra_distance": dsp.Mean(positive),
				"unique_segments":    uniqueCount,
				"repetition_rate":    1 - float64(uniqueCount)/float64(k),
			}, map[string]any{
				"distance_matrix": matrix,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"num_segments": k, "unique_threshold": unique},
		Visualization: viz,
	}, nil
}

func stabilityScores(ctx *engine.Context, p engine.Params) (results.Output, error) {
	r := p.Reader()
	window := r.Int("window_size")
	hop := r.Int("hop_length")
	limit := r.Int("analysis_samples")
	maxSamples := r.Int("max_samples")
	if err := r.Err(); err != nil {
		return results.Output{}, err
	}
	if window <= 1 || hop <= 0 {
		return results.Output{}, fmt.Errorf("invalid stability parameters (window_size %d, hop_length %d)", window, hop)
	}

	sr := float64(ctx.SampleRate())
	m, viz, err := eachChannel(ctx, maxSamples, func(_ string, x []float64) (map[string]any, map[string]any, error) {
		x = head(x, limit)
		n := dsp.FrameCount(len(x), window, hop)
		if n == 0 {
			return nil, nil, fmt.Errorf("signal has %d samples, need at least %d", len(x), window)
		}
		energy := make([]float64, n)
		centroid := make([]float64, n)
		times := make([]float64, n)
		for i := range energy {
			frame := x[i*hop : i*hop+window]
			energy[i] = floats.Dot(frame, frame)
			_, mags := rfftMagnitude(frame, 1)
			num, den := 0.0, 0.0
			for k, v := range mags {
				num += float64(k) * v
				den += v
			}
			centroid[i] = ratio(num, den)
			times[i] = float64(i*hop) / sr
		}
		eMean, eStd := dsp.MeanStd(energy)
		cMean, cStd := dsp.MeanStd(centroid)
		energyStability := 1 / (1 + ratio(eStd, eMean))
		spectralStability := 1 / (1 + ratio(cStd, cMean))
		return map[string]any{
				"energy_stability":   energyStability,
				"spectral_stability": spectralStability,
				"overall_stability":  (energyStability + spectralStability) / 2,
				"num_windows":        n,
			}, map[string]any{
				"times":             times,
				"energy":            energy,
				"spectral_centroid": centroid,
			}, nil
	})
	if err != nil {
		return results.Output{}, err
	}
	return results.Output{
		Measurements:  m,
		Metrics:       map[string]any{"window_size": window, "hop_length": hop},
		Visualization: viz,
	}, nil
}
