// Package channels derives the named analysis channels (primary tracks plus sum,
// difference and mono mixes) from a decoded multi-track buffer.
package channels

import (
	"fmt"
	"slices"
)

// Channel names understood by Derive.
const (
	Left       = "left"
	Right      = "right"
	Mono       = "mono"
	Sum        = "sum"
	Difference = "difference"
)

// Names lists every valid channel name in canonical order.
var Names = []string{Left, Right, Mono, Sum, Difference}

// Valid reports whether name is a known channel name.
func Valid(name string) bool {
	return slices.Contains(Names, name)
}

// ChannelDerivationError reports a requested channel that cannot be produced from the
// number of source tracks available.
type ChannelDerivationError struct {
	Channel string
	Tracks  int
	Reason  string
}

func (e *ChannelDerivationError) Error() string {
	return fmt.Sprintf("cannot derive channel %q from %d track(s): %s", e.Channel, e.Tracks, e.Reason)
}

// Channel is a named, immutable sample sequence.
// The samples are only reachable through accessors so a Channel shared between
// concurrent readers can never be modified in place.
type Channel struct {
	name       string
	sampleRate int
	samples    []float64
}

// New wraps a copy of samples as a Channel.
func New(name string, samples []float64, sampleRate int) Channel {
	return Channel{name: name, sampleRate: sampleRate, samples: slices.Clone(samples)}
}

// Name returns the channel name.
func (c Channel) Name() string { return c.name }

// SampleRate returns the sample rate in Hz.
func (c Channel) SampleRate() int { return c.sampleRate }

// Len returns the number of samples.
func (c Channel) Len() int { return len(c.samples) }

// At returns sample i.
func (c Channel) At(i int) float64 { return c.samples[i] }

// Samples returns a working copy of the samples; callers may modify it freely.
func (c Channel) Samples() []float64 { return slices.Clone(c.samples) }

// Window returns a working copy of samples [start, end).
func (c Channel) Window(start, end int) []float64 {
	start = max(0, start)
	end = min(end, len(c.samples))
	if start >= end {
		return nil
	}
	return slices.Clone(c.samples[start:end])
}

// Set is an ordered mapping of channel name to Channel.
type Set struct {
	order []string
	byKey map[string]Channel
}

// NewSet builds a Set; insertion order defines iteration order.
func NewSet(chs ...Channel) *Set {
	s := &Set{byKey: make(map[string]Channel, len(chs))}
	for _, ch := range chs {
		if _, dup := s.byKey[ch.name]; !dup {
			s.order = append(s.order, ch.name)
		}
		s.byKey[ch.name] = ch
	}
	return s
}

// Names returns channel names in iteration order.
func (s *Set) Names() []string { return slices.Clone(s.order) }

// Get returns the named channel.
func (s *Set) Get(name string) (Channel, bool) {
	ch, ok := s.byKey[name]
	return ch, ok
}

// Len returns the number of channels.
func (s *Set) Len() int { return len(s.order) }

// All returns the channels in iteration order.
func (s *Set) All() []Channel {
	out := make([]Channel, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byKey[name])
	}
	return out
}

// Map applies fn to every channel and returns a new Set with the results.
func (s *Set) Map(fn func(Channel) ([]float64, error)) (*Set, error) {
	out := make([]Channel, 0, len(s.order))
	for _, ch := range s.All() {
		samples, err := fn(ch)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", ch.name, err)
		}
		out = append(out, Channel{name: ch.name, sampleRate: ch.sampleRate, samples: samples})
	}
	return NewSet(out...), nil
}

// Derive builds the requested channels from raw source tracks.
//
// left and right are the first and second source tracks. sum and difference are
// L+R and L-R and need two tracks. mono averages all available tracks (identity for
// a single track). Unknown names and impossible derivations return a
// *ChannelDerivationError. The result preserves the requested order.
func Derive(tracks [][]float64, sampleRate int, requested []string) (*Set, error) {
	if len(tracks) == 0 {
		return nil, &ChannelDerivationError{Channel: "*", Tracks: 0, Reason: "no source tracks"}
	}
	if len(requested) == 0 {
		requested = []string{Mono}
	}

	n := len(tracks[0])
	for i, tr := range tracks {
		if len(tr) != n {
			return nil, fmt.Errorf("track %d has %d samples, track 0 has %d", i, len(tr), n)
		}
	}

	out := make([]Channel, 0, len(requested))
	for _, name := range requested {
		samples, err := derive(tracks, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Channel{name: name, sampleRate: sampleRate, samples: samples})
	}
	return NewSet(out...), nil
}

func derive(tracks [][]float64, name string) ([]float64, error) {
	needStereo := func() error {
		if len(tracks) < 2 {
			return &ChannelDerivationError{Channel: name, Tracks: len(tracks), Reason: "requires at least two source tracks"}
		}
		return nil
	}

	switch name {
	case Left:
		return slices.Clone(tracks[0]), nil
	case Right:
		if err := needStereo(); err != nil {
			return nil, err
		}
		return slices.Clone(tracks[1]), nil
	case Sum:
		if err := needStereo(); err != nil {
			return nil, err
		}
		return combine(tracks[0], tracks[1], 1), nil
	case Difference:
		if err := needStereo(); err != nil {
			return nil, err
		}
		return combine(tracks[0], tracks[1], -1), nil
	case Mono:
		return mono(tracks), nil
	default:
		return nil, &ChannelDerivationError{Channel: name, Tracks: len(tracks), Reason: "unknown channel name"}
	}
}

func combine(l, r []float64, sign float64) []float64 {
	out := make([]float64, len(l))
	for i := range l {
		out[i] = l[i] + sign*r[i]
	}
	return out
}

func mono(tracks [][]float64) []float64 {
	if len(tracks) == 1 {
		return slices.Clone(tracks[0])
	}
	n := float64(len(tracks))
	out := make([]float64, len(tracks[0]))
	for i := range out {
		s := 0.0
		for _, tr := range tracks {
			s += tr[i]
		}
		out[i] = s / n
	}
	return out
}
