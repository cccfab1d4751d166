package preprocess

import (
	"errors"
	"math"
	"testing"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/dsp"
)

func tone(freq float64, sampleRate, n int, amp float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return x
}

func stereoSet(t *testing.T, l, r []float64, sampleRate int) *channels.Set {
	t.Helper()
	set, err := channels.Derive([][]float64{l, r}, sampleRate, []string{channels.Left, channels.Right})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	return set
}

func TestNormaliseRMS(t *testing.T) {
	const sr = 8000
	set := stereoSet(t, tone(200, sr, sr, 0.5), tone(300, sr, sr, 0.01), sr)

	out, err := Normalise(set, NormalizeConfig{Enabled: true, Method: NormalizeRMS, TargetLevel: -20})
	if err != nil {
		t.Fatalf("Normalise failed: %v", err)
	}
	for _, ch := range out.All() {
		got := dsp.AmplitudeToDB(dsp.RMS(ch.Samples()))
		if math.Abs(got-(-20)) > 1e-9 {
			t.Errorf("%s RMS = %.6f dBFS, want -20", ch.Name(), got)
		}
	}

	// Source set is untouched.
	left, _ := set.Get(channels.Left)
	if math.Abs(dsp.RMS(left.Samples())-0.5/math.Sqrt2) > 1e-9 {
		t.Error("Normalise modified its input")
	}
}

func TestNormaliseLUFS(t *testing.T) {
	const sr = 48000
	set := stereoSet(t, tone(1000, sr, 3*sr, 0.3), tone(1000, sr, 3*sr, 0.05), sr)

	out, err := Normalise(set, NormalizeConfig{Enabled: true, Method: NormalizeLUFS, TargetLevel: -23})
	if err != nil {
		t.Fatalf("Normalise failed: %v", err)
	}
	for _, ch := range out.All() {
		got := IntegratedLoudness(ch.Samples(), sr)
		if math.Abs(got-(-23)) > 0.05 {
			t.Errorf("%s loudness = %.3f LUFS, want -23", ch.Name(), got)
		}
	}
}

func TestIntegratedLoudnessReference(t *testing.T) {
	// A 0 dBFS 1 kHz sine measures about -3.01 LUFS on a single channel.
	const sr = 48000
	got := IntegratedLoudness(tone(1000, sr, 2*sr, 1), sr)
	if math.Abs(got-(-3.01)) > 0.1 {
		t.Errorf("loudness = %.3f LUFS, want about -3.01", got)
	}
	if !math.IsInf(IntegratedLoudness(make([]float64, sr), sr), -1) {
		t.Error("silence should measure -Inf")
	}
}

func TestNormaliseSilencePassesThrough(t *testing.T) {
	set := stereoSet(t, make([]float64, 100), make([]float64, 100), 8000)
	out, err := Normalise(set, NormalizeConfig{Method: NormalizeRMS, TargetLevel: -20})
	if err != nil {
		t.Fatalf("Normalise failed: %v", err)
	}
	left, _ := out.Get(channels.Left)
	if dsp.PeakLevel(left.Samples()) != 0 {
		t.Error("silent channel should stay silent")
	}
}

func TestInvalidMethods(t *testing.T) {
	set := stereoSet(t, []float64{1}, []float64{1}, 8000)

	_, err := Normalise(set, NormalizeConfig{Method: "peak"})
	if !errors.Is(err, ErrInvalidNormalizationMethod) {
		t.Errorf("err = %v, want ErrInvalidNormalizationMethod", err)
	}

	_, err = Segment([]float64{1, 2, 3}, 8000, SegmentationConfig{Method: "novelty", SegmentDuration: 1})
	if !errors.Is(err, ErrInvalidSegmentationMethod) {
		t.Errorf("err = %v, want ErrInvalidSegmentationMethod", err)
	}

	_, _, err = Apply(set, Config{Segmentation: SegmentationConfig{Enabled: true, Method: "x", SegmentDuration: 1}})
	if !errors.Is(err, ErrInvalidSegmentationMethod) {
		t.Errorf("Apply err = %v, want ErrInvalidSegmentationMethod", err)
	}
}

func checkPartition(t *testing.T, bounds []Boundary, n int) {
	t.Helper()
	if len(bounds) == 0 {
		t.Fatal("no boundaries")
	}
	if bounds[0].Start != 0 {
		t.Errorf("first segment starts at %d", bounds[0].Start)
	}
	for i, b := range bounds {
		if b.End <= b.Start {
			t.Errorf("segment %d is empty: %+v", i, b)
		}
		if i > 0 && b.Start != bounds[i-1].End {
			t.Errorf("segment %d does not follow %d: %+v after %+v", i, i-1, b, bounds[i-1])
		}
		if b.End > n {
			t.Errorf("segment %d runs past the signal: %+v", i, b)
		}
	}
}

func TestSegmentMethods(t *testing.T) {
	const sr = 8000
	// 5.2 s: five 1 s windows plus a 0.2 s tail that must be dropped.
	x := tone(440, sr, 5*sr+sr/5, 0.5)
	for i := 0; i < len(x); i += 3 * sr / 2 {
		for j := i; j < min(len(x), i+sr/10); j++ {
			x[j] *= 0.01
		}
	}

	for _, method := range SegmentationMethods {
		t.Run(method, func(t *testing.T) {
			bounds, err := Segment(x, sr, SegmentationConfig{Enabled: true, Method: method, SegmentDuration: 1})
			if err != nil {
				t.Fatalf("Segment failed: %v", err)
			}
			checkPartition(t, bounds, len(x))
			for i, b := range bounds[:len(bounds)-1] {
				if b.Len() < sr/2 || b.Len() > 3*sr/2 {
					t.Errorf("segment %d length %d outside [L/2, 3L/2]", i, b.Len())
				}
			}
			if tail := bounds[len(bounds)-1]; tail.End == len(x) && tail.Len() < sr/2 {
				t.Errorf("short tail kept: %+v", tail)
			}
		})
	}
}

func TestSegmentShortSignal(t *testing.T) {
	bounds, err := Segment(make([]float64, 100), 8000, SegmentationConfig{Method: SegmentEnergy, SegmentDuration: 1})
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(bounds) != 1 || bounds[0] != (Boundary{0, 100}) {
		t.Errorf("bounds = %v, want whole signal", bounds)
	}
}

func TestApplyDefaultsToWholeSignal(t *testing.T) {
	set := stereoSet(t, make([]float64, 640), make([]float64, 640), 8000)
	out, bounds, err := Apply(set, DefaultConfig())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out != set {
		t.Error("disabled stages should return the input set")
	}
	if len(bounds) != 1 || bounds[0] != (Boundary{0, 640}) {
		t.Errorf("bounds = %v, want [{0 640}]", bounds)
	}
}
