package segmentation

import (
	"fmt"
)

// Segment is a contiguous active stretch of the cleaned mask.
// Frame indices are inclusive; times are frame timestamps, so a one-frame segment has
// zero duration.
type Segment struct {
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	Start      float64 `json:"start_s"`
	End        float64 `json:"end_s"`
	Duration   float64 `json:"duration_s"`
}

// Timeline maps frame indices to seconds: t = Offset + i·Hop.
type Timeline struct {
	Offset float64
	Hop    float64
}

// At returns the timestamp of frame i.
func (t Timeline) At(i int) float64 {
	return t.Offset + float64(i)*t.Hop
}

// Extract returns the maximal runs of true in mask as ordered, non-overlapping segments.
func Extract(mask []bool, tl Timeline) []Segment {
	var segs []Segment
	for _, r := range runs(mask) {
		if !r.on {
			continue
		}
		start, end := tl.At(r.start), tl.At(r.end)
		segs = append(segs, Segment{
			StartFrame: r.start,
			EndFrame:   r.end,
			Start:      start,
			End:        end,
			Duration:   max(0, end-start),
		})
	}
	return segs
}

// DropShorter removes segments shorter than minDuration seconds.
func DropShorter(segs []Segment, minDuration float64) []Segment {
	if minDuration <= 0 {
		return segs
	}
	out := segs[:0:0]
	for _, s := range segs {
		if s.Duration >= minDuration {
			out = append(out, s)
		}
	}
	return out
}

// Config is the full parameter set of one segmentation pass.
type Config struct {
	Band             BandConfig
	Threshold        ThresholdConfig
	ClosingFrames    int
	OpeningFrames    int
	MinSegmentLength float64 // seconds; 0 keeps every segment
}

// DefaultConfig returns the reference settings: closing 5 frames, opening 3 frames.
func DefaultConfig() Config {
	return Config{
		Band:          DefaultBandConfig(),
		Threshold:     DefaultThresholdConfig(),
		ClosingFrames: 5,
		OpeningFrames: 3,
	}
}

// Result carries every intermediate of a pass.
type Result struct {
	Band      *BandEnergy
	Threshold Threshold
	RawMask   []bool
	Mask      []bool
	Segments  []Segment
}

// Activity is the fraction of frames active in the cleaned mask.
func (r *Result) Activity() float64 {
	if len(r.Mask) == 0 {
		return 0
	}
	n := 0
	for _, on := range r.Mask {
		if on {
			n++
		}
	}
	return float64(n) / float64(len(r.Mask))
}

// SegmentTimeline runs threshold, morphology and extraction on an energy timeline.
func SegmentTimeline(energy []float64, tl Timeline, cfg Config) (*Result, error) {
	if cfg.ClosingFrames < 0 || cfg.OpeningFrames < 0 {
		return nil, fmt.Errorf("morphology lengths must not be negative (closing %d, opening %d)",
			cfg.ClosingFrames, cfg.OpeningFrames)
	}
	th, err := ComputeThreshold(energy, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	raw := Binarize(energy, th.Value)
	clean := Clean(raw, cfg.ClosingFrames, cfg.OpeningFrames)
	return &Result{
		Threshold: th,
		RawMask:   raw,
		Mask:      clean,
		Segments:  DropShorter(Extract(clean, tl), cfg.MinSegmentLength),
	}, nil
}

// Run extracts band energy from x and segments it.
func Run(x []float64, sampleRate int, cfg Config) (*Result, error) {
	band, err := ExtractBandEnergy(x, sampleRate, cfg.Band)
	if err != nil {
		return nil, err
	}
	res, err := SegmentTimeline(band.Energy, Timeline{Offset: band.Offset, Hop: band.Hop}, cfg)
	if err != nil {
		return nil, err
	}
	res.Band = band
	return res, nil
}
