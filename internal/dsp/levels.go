package dsp

import "math"

// SilenceFloorDB is reported instead of -Inf for digital silence.
const SilenceFloorDB = -200.0

// RMS returns the root-mean-square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// PeakLevel returns the largest absolute sample value.
func PeakLevel(x []float64) float64 {
	peak := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// AmplitudeToDB converts a linear amplitude to dBFS, clamping silence to SilenceFloorDB.
func AmplitudeToDB(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceFloorDB
	}
	return math.Max(SilenceFloorDB, 20*math.Log10(amplitude))
}

// PowerToDB converts a power ratio to dB, clamping silence to SilenceFloorDB.
func PowerToDB(power float64) float64 {
	if power <= 0 {
		return SilenceFloorDB
	}
	return math.Max(SilenceFloorDB, 10*math.Log10(power))
}

// DBToAmplitude converts dB to a linear amplitude factor.
func DBToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose sign differs.
func ZeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

// FrameRMS returns the RMS of consecutive non-overlapping frames of the given size.
// A trailing partial frame is included.
func FrameRMS(x []float64, size int) []float64 {
	if size <= 0 || len(x) == 0 {
		return nil
	}
	out := make([]float64, 0, (len(x)+size-1)/size)
	for start := 0; start < len(x); start += size {
		end := min(start+size, len(x))
		out = append(out, RMS(x[start:end]))
	}
	return out
}
