// Package segmentation turns the energy of a narrow spectral band around a carrier
// into discrete time segments: band energy per STFT frame, a hybrid threshold,
// 1-D morphological cleaning of the binary mask, then contiguous-run extraction.
package segmentation

import (
	"fmt"
	"math"

	"github.com/linuxmatters/sigtrace/internal/dsp"
)

// BandConfig selects the band and the framing.
type BandConfig struct {
	CarrierHz         float64
	RelativeBandwidth float64 // half-width as a fraction of the carrier
	WindowLength      int     // samples per frame
	Overlap           int     // samples shared by consecutive frames
	Window            string
}

// DefaultBandConfig returns a 393 Hz carrier, ±3% band, 4096-sample Hann frames at 75% overlap.
func DefaultBandConfig() BandConfig {
	return BandConfig{
		CarrierHz:         393,
		RelativeBandwidth: 0.03,
		WindowLength:      4096,
		Overlap:           3072,
		Window:            dsp.WindowHann,
	}
}

// BandEnergy is the per-frame mean magnitude inside the band.
type BandEnergy struct {
	Times  []float64 // frame centres in seconds
	Energy []float64
	LowHz  float64 // nominal band edges
	HighHz float64
	Bins   int     // STFT bins averaged
	Hop    float64 // seconds between frames
	Offset float64 // time of frame 0
}

// ExtractBandEnergy standardises x and measures the mean STFT magnitude within
// [fc-bw, fc+bw] per frame, where bw = max(1 Hz, fc·RelativeBandwidth). When the
// frequency resolution leaves fewer than three bins in the band, the band is widened
// to ±2·bw. A band with no bins yields an all-zero timeline.
func ExtractBandEnergy(x []float64, sampleRate int, cfg BandConfig) (*BandEnergy, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if cfg.CarrierHz < 0 || cfg.CarrierHz > float64(sampleRate)/2 {
		return nil, fmt.Errorf("carrier %.2f Hz outside [0, %d] Hz", cfg.CarrierHz, sampleRate/2)
	}
	if cfg.RelativeBandwidth < 0 {
		return nil, fmt.Errorf("relative bandwidth must not be negative, got %g", cfg.RelativeBandwidth)
	}
	if len(x) < cfg.WindowLength {
		return nil, fmt.Errorf("signal has %d samples, need at least one %d-sample frame", len(x), cfg.WindowLength)
	}

	stft, err := dsp.ComputeSTFT(dsp.Standardize(x), sampleRate, cfg.WindowLength, cfg.Overlap, cfg.Window)
	if err != nil {
		return nil, err
	}

	bw := math.Max(1, math.Abs(cfg.CarrierHz)*cfg.RelativeBandwidth)
	lo, hi := math.Max(0, cfg.CarrierHz-bw), cfg.CarrierHz+bw
	bins := stft.BinsBetween(lo, hi)
	if len(bins) < 3 {
		bins = stft.BinsBetween(cfg.CarrierHz-2*bw, cfg.CarrierHz+2*bw)
	}

	be := &BandEnergy{
		Times:  stft.Times,
		Energy: make([]float64, len(stft.Magnitudes)),
		LowHz:  lo,
		HighHz: hi,
		Bins:   len(bins),
		Hop:    stft.HopSeconds(),
		Offset: float64(cfg.WindowLength) / 2 / float64(sampleRate),
	}
	if len(bins) == 0 {
		return be, nil
	}
	for i, row := range stft.Magnitudes {
		sum := 0.0
		for _, k := range bins {
			sum += row[k]
		}
		be.Energy[i] = sum / float64(len(bins))
	}
	return be, nil
}
