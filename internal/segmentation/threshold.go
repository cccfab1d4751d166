package segmentation

import (
	"fmt"

	"github.com/linuxmatters/sigtrace/internal/dsp"
)

// Threshold policies.
const (
	ThresholdHybrid   = "hybrid"
	ThresholdQuantile = "quantile"
	ThresholdRobustZ  = "robust_z"
)

// ThresholdConfig selects the policy and its parameters.
type ThresholdConfig struct {
	Method   string
	Quantile float64 // in [0, 1]
	Z        float64 // robust z-score cutoff
}

// DefaultThresholdConfig returns the hybrid policy with q = 0.80 and z = 1.0.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{Method: ThresholdHybrid, Quantile: 0.80, Z: 1.0}
}

// Threshold is a computed energy cutoff with the statistics it came from.
type Threshold struct {
	Value    float64 `json:"value"`
	Quantile float64 `json:"quantile_value"`
	RobustZ  float64 `json:"robust_z_value"`
	Median   float64 `json:"median"`
	MAD      float64 `json:"mad"`
	Method   string  `json:"method"`
}

// ComputeThreshold derives the energy cutoff.
//
// The quantile bar is the q-quantile of the energy distribution. The robust bar is
// median + z·1.4826·MAD, the energy whose robust z-score equals z. The hybrid policy
// takes the larger of the two, so a frame has to clear both.
func ComputeThreshold(energy []float64, cfg ThresholdConfig) (Threshold, error) {
	if cfg.Quantile < 0 || cfg.Quantile > 1 {
		return Threshold{}, fmt.Errorf("quantile must be in [0, 1], got %g", cfg.Quantile)
	}
	med, mad := dsp.MAD(energy)
	th := Threshold{
		Quantile: dsp.Quantile(energy, cfg.Quantile),
		RobustZ:  med + cfg.Z*dsp.MADScale*mad,
		Median:   med,
		MAD:      mad,
		Method:   cfg.Method,
	}
	switch cfg.Method {
	case ThresholdHybrid, "":
		th.Method = ThresholdHybrid
		th.Value = max(th.Quantile, th.RobustZ)
	case ThresholdQuantile:
		th.Value = th.Quantile
	case ThresholdRobustZ:
		th.Value = th.RobustZ
	default:
		return Threshold{}, fmt.Errorf("unknown threshold method %q (valid: hybrid, quantile, robust_z)", cfg.Method)
	}
	return th, nil
}

// Binarize marks frames whose energy reaches the threshold (e >= threshold) and lies
// strictly above the timeline's minimum. The second clause is the chosen rule: when the
// threshold collapses onto the floor, as in a timeline that idles at one level for most
// frames, only frames above that idle level are active rather than the whole timeline.
// A flat timeline therefore produces an empty mask.
func Binarize(energy []float64, threshold float64) []bool {
	mask := make([]bool, len(energy))
	if len(energy) == 0 {
		return mask
	}
	floor, _ := dsp.MinMax(energy)
	for i, e := range energy {
		mask[i] = e >= threshold && e > floor
	}
	return mask
}
