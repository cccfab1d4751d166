package segmentation

import (
	"math"
	"math/rand"
	"testing"
)

// timeline returns n frames of zero energy with the given inclusive ranges set to 1.
func timeline(n int, ranges ...[2]int) []float64 {
	e := make([]float64, n)
	for _, r := range ranges {
		for i := r[0]; i <= r[1]; i++ {
			e[i] = 1
		}
	}
	return e
}

func morphConfig(closing, opening int) Config {
	cfg := DefaultConfig()
	cfg.ClosingFrames = closing
	cfg.OpeningFrames = opening
	return cfg
}

func TestSegmentTimelineRoundTrip(t *testing.T) {
	tl := Timeline{Hop: 0.25}
	res, err := SegmentTimeline(timeline(100, [2]int{10, 50}), tl, morphConfig(0, 0))
	if err != nil {
		t.Fatalf("SegmentTimeline failed: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(res.Segments), res.Segments)
	}
	s := res.Segments[0]
	if s.StartFrame != 10 || s.EndFrame != 50 {
		t.Errorf("frames = [%d..%d], want [10..50]", s.StartFrame, s.EndFrame)
	}
	if s.Start != 2.5 || s.End != 12.5 || s.Duration != 10 {
		t.Errorf("times = %.3f..%.3f (%.3f s), want 2.5..12.5 (10 s)", s.Start, s.End, s.Duration)
	}
}

func TestClosingMergesShortGaps(t *testing.T) {
	energy := timeline(60, [2]int{10, 20}, [2]int{23, 30})

	tests := []struct {
		closing int
		want    [][2]int
	}{
		{closing: 3, want: [][2]int{{10, 30}}},
		{closing: 1, want: [][2]int{{10, 20}, {23, 30}}},
		{closing: 0, want: [][2]int{{10, 20}, {23, 30}}},
	}
	for _, tt := range tests {
		res, err := SegmentTimeline(energy, Timeline{Hop: 1}, morphConfig(tt.closing, 0))
		if err != nil {
			t.Fatalf("closing=%d: %v", tt.closing, err)
		}
		if len(res.Segments) != len(tt.want) {
			t.Errorf("closing=%d: got %d segments, want %d", tt.closing, len(res.Segments), len(tt.want))
			continue
		}
		for i, w := range tt.want {
			if s := res.Segments[i]; s.StartFrame != w[0] || s.EndFrame != w[1] {
				t.Errorf("closing=%d segment %d = [%d..%d], want [%d..%d]", tt.closing, i, s.StartFrame, s.EndFrame, w[0], w[1])
			}
		}
	}
}

func TestOpeningRemovesIsolatedFrames(t *testing.T) {
	energy := timeline(20, [2]int{5, 5})

	res, err := SegmentTimeline(energy, Timeline{Hop: 1}, morphConfig(0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 0 {
		t.Errorf("opening=2: got %d segments, want 0", len(res.Segments))
	}

	res, err = SegmentTimeline(energy, Timeline{Hop: 1}, morphConfig(0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 1 || res.Segments[0].StartFrame != 5 || res.Segments[0].EndFrame != 5 {
		t.Errorf("opening=0: segments = %+v, want one frame at 5", res.Segments)
	}
}

func TestDegenerateMasks(t *testing.T) {
	tests := []struct {
		name string
		mask []bool
		want int
	}{
		{"empty", nil, 0},
		{"all zero", make([]bool, 10), 0},
		{"all one", []bool{true, true, true, true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(Extract(Clean(tt.mask, 5, 3), Timeline{Hop: 1})); got != tt.want {
				t.Errorf("segments = %d, want %d", got, tt.want)
			}
		})
	}

	// A flat timeline never activates.
	res, err := SegmentTimeline(make([]float64, 50), Timeline{Hop: 1}, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 0 {
		t.Errorf("flat timeline produced %d segments", len(res.Segments))
	}
}

func TestCloseLeavesEdgeGaps(t *testing.T) {
	mask := []bool{false, true, true, false, false, true, false}
	got := Close(mask, 5)
	want := []bool{false, true, true, true, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Close = %v, want %v", got, want)
		}
	}
	if mask[3] {
		t.Error("Close modified its input")
	}
}

func TestCloseKeepsGapOfExactlyK(t *testing.T) {
	// Active 0..2, gap 3..5 (three frames), active 6..8.
	mask := []bool{true, true, true, false, false, false, true, true, true}

	if got := Close(mask, 3); got[3] || got[4] || got[5] {
		t.Errorf("Close(k=3) filled a three-frame gap: %v", got)
	}
	if got := Close(mask, 4); !got[3] || !got[4] || !got[5] {
		t.Errorf("Close(k=4) left a three-frame gap: %v", got)
	}
}

func TestBinarizeExcludesIdleFloor(t *testing.T) {
	// 70 frames idling at 0.2 with a burst at 1.0 over frames 10..29. The median of the
	// timeline is the idle level, so the threshold sits on the floor.
	energy := make([]float64, 70)
	for i := range energy {
		energy[i] = 0.2
		if i >= 10 && i < 30 {
			energy[i] = 1.0
		}
	}
	th, err := ComputeThreshold(energy, ThresholdConfig{Method: ThresholdHybrid, Quantile: 0.5, Z: 0})
	if err != nil {
		t.Fatal(err)
	}
	if th.Value != 0.2 {
		t.Fatalf("threshold = %g, want the idle level 0.2", th.Value)
	}

	mask := Binarize(energy, th.Value)
	active := 0
	for i, on := range mask {
		if on {
			active++
			if i < 10 || i >= 30 {
				t.Errorf("idle frame %d marked active", i)
			}
		}
	}
	if active != 20 {
		t.Errorf("active frames = %d, want the 20 burst frames", active)
	}
}

func TestHybridThresholdMonotonicInQuantile(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	energy := make([]float64, 500)
	for i := range energy {
		energy[i] = math.Abs(rng.NormFloat64())
		if i%50 < 5 {
			energy[i] += 4
		}
	}

	for _, z := range []float64{0, 1, 3} {
		prev := math.Inf(-1)
		for q := 0.0; q <= 1.0001; q += 0.05 {
			th, err := ComputeThreshold(energy, ThresholdConfig{Method: ThresholdHybrid, Quantile: math.Min(q, 1), Z: z})
			if err != nil {
				t.Fatal(err)
			}
			if th.Value < prev {
				t.Errorf("z=%g q=%.2f: threshold %.6f dropped below %.6f", z, q, th.Value, prev)
			}
			if th.Value < th.Quantile || th.Value < th.RobustZ {
				t.Errorf("hybrid %.6f is below one of its bars (%.6f, %.6f)", th.Value, th.Quantile, th.RobustZ)
			}
			prev = th.Value
		}
	}
}

func TestThresholdMethods(t *testing.T) {
	energy := []float64{1, 2, 3, 4, 100}

	// Rank 0.5·(n-1) = 2 lands on the 3rd order statistic.
	q, _ := ComputeThreshold(energy, ThresholdConfig{Method: ThresholdQuantile, Quantile: 0.5})
	if q.Value != 3 {
		t.Errorf("quantile threshold = %g, want 3", q.Value)
	}
	// Median 3, MAD 1.
	z, _ := ComputeThreshold(energy, ThresholdConfig{Method: ThresholdRobustZ, Z: 1})
	if want := 3 + 1.4826; math.Abs(z.Value-want) > 1e-12 {
		t.Errorf("robust_z threshold = %g, want %g", z.Value, want)
	}
	if _, err := ComputeThreshold(energy, ThresholdConfig{Method: "otsu"}); err == nil {
		t.Error("expected error for unknown method")
	}
	if _, err := ComputeThreshold(energy, ThresholdConfig{Quantile: 1.5}); err == nil {
		t.Error("expected error for quantile outside [0, 1]")
	}
}

func TestDropShorter(t *testing.T) {
	segs := []Segment{{Duration: 0.05}, {Duration: 0.2}, {Duration: 0.1}}
	got := DropShorter(segs, 0.1)
	if len(got) != 2 || got[0].Duration != 0.2 || got[1].Duration != 0.1 {
		t.Errorf("DropShorter = %+v", got)
	}
	if len(DropShorter(segs, 0)) != 3 {
		t.Error("zero minimum should keep every segment")
	}
}

func TestRunFindsKeyedCarrier(t *testing.T) {
	const (
		sr      = 8000
		carrier = 393.0
	)
	// 10 s of silence with the carrier keyed on between 2 s and 3 s. Silent frames are
	// identical, so they all sit at the timeline floor.
	x := make([]float64, 10*sr)
	for i := range x {
		if ts := float64(i) / sr; ts >= 2 && ts < 3 {
			x[i] = 0.5 * math.Sin(2*math.Pi*carrier*ts)
		}
	}

	cfg := DefaultConfig()
	cfg.Band.WindowLength = 1024
	cfg.Band.Overlap = 768

	res, err := Run(x, sr, cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Band.Bins < 3 {
		t.Errorf("band averaged %d bins, want at least 3", res.Band.Bins)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(res.Segments), res.Segments)
	}
	s := res.Segments[0]
	if math.Abs(s.Start-2) > 0.1 || math.Abs(s.End-3) > 0.1 {
		t.Errorf("segment %.3f..%.3f s, want about 2..3 s", s.Start, s.End)
	}

	again, _ := Run(x, sr, cfg)
	if len(again.Segments) != 1 || again.Segments[0] != s {
		t.Error("Run is not deterministic")
	}
}

func TestExtractBandEnergyErrors(t *testing.T) {
	if _, err := ExtractBandEnergy(make([]float64, 100), 8000, DefaultBandConfig()); err == nil {
		t.Error("expected error for signal shorter than one frame")
	}
	cfg := DefaultBandConfig()
	cfg.CarrierHz = 5000
	if _, err := ExtractBandEnergy(make([]float64, 8192), 8000, cfg); err == nil {
		t.Error("expected error for carrier above Nyquist")
	}
}
