// Package methods is the static catalogue of measurement methods. Every method is a
// pure function of the analysis context and its parameters; NewRegistry wires them
// into an engine registry at startup.
package methods

import (
	"fmt"
	"slices"

	"github.com/linuxmatters/sigtrace/internal/engine"
)

// Categories in canonical order.
const (
	Temporal      = "temporal"
	Spectral      = "spectral"
	TimeFrequency = "time_frequency"
	Modulation    = "modulation"
	Information   = "information"
	InterChannel  = "inter_channel"
	MetaAnalysis  = "meta_analysis"
	Steganography = "steganography"
)

// Categories lists every category a protocol may enable.
var Categories = []string{Temporal, Spectral, TimeFrequency, Modulation, Information, InterChannel, MetaAnalysis, Steganography}

// defaultMaxSamples caps whole-signal methods at 30 minutes of 48 kHz audio.
const defaultMaxSamples = 48000 * 60 * 30

// Options carries process-level defaults into method parameters.
type Options struct {
	// MainsHz is the default fundamental for mains_hum.
	MainsHz float64
}

// NewRegistry builds the registry from the static catalogue.
func NewRegistry(opts Options) (*engine.Registry, error) {
	if opts.MainsHz <= 0 {
		opts.MainsHz = 50
	}
	return engine.NewRegistry(Catalogue(opts)...)
}

// Catalogue returns every method entry in category order.
func Catalogue(opts Options) []engine.Entry {
	return slices.Concat(
		temporalMethods(),
		spectralMethods(opts),
		timeFrequencyMethods(),
		modulationMethods(),
		informationMethods(),
		interChannelMethods(),
		metaAnalysisMethods(),
		steganographyMethods(),
	)
}

// withCap adds the shared max_samples parameter to a method's defaults.
func withCap(p engine.Params) engine.Params {
	return p.Merge(engine.Params{"max_samples": defaultMaxSamples})
}

// channelFunc measures one channel and optionally returns plot data for it.
type channelFunc func(name string, x []float64) (measures, viz map[string]any, err error)

// eachChannel applies fn to every channel of ctx in order after checking the sample
// cap. Any channel error fails the whole method.
func eachChannel(ctx *engine.Context, maxSamples int, fn channelFunc) (map[string]any, map[string]any, error) {
	measurements := make(map[string]any)
	var viz map[string]any
	for _, ch := range ctx.Channels() {
		if err := engine.CheckSampleLimit(ch.Len(), maxSamples); err != nil {
			return nil, nil, fmt.Errorf("channel %s: %w", ch.Name(), err)
		}
		m, v, err := fn(ch.Name(), ch.Samples())
		if err != nil {
			return nil, nil, fmt.Errorf("channel %s: %w", ch.Name(), err)
		}
		measurements[ch.Name()] = m
		if v != nil {
			if viz == nil {
				viz = make(map[string]any)
			}
			viz[ch.Name()] = v
		}
	}
	return measurements, viz, nil
}

// head returns at most n leading samples; n <= 0 keeps everything.
func head(x []float64, n int) []float64 {
	if n > 0 && len(x) > n {
		return x[:n]
	}
	return x
}

// ratio divides with a zero guard matching the 1e-10 regularisation used for
// normalised indices.
func ratio(num, den float64) float64 {
	return num / (den + 1e-10)
}

// firstN returns at most n leading elements.
func firstN[T any](x []T, n int) []T {
	if len(x) > n {
		return x[:n]
	}
	return x
}
