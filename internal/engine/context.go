// Package engine hosts measurement methods: the immutable analysis context they read,
// the registry that maps method identifiers to implementations, and the fail-soft
// executor that runs a declared plan.
package engine

import (
	"fmt"
	"maps"
	"slices"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
)

// Context is the read-only input shared by every method invocation in a run.
// It is built once after preprocessing and never modified.
type Context struct {
	set        *channels.Set
	sampleRate int
	length     int
	segments   []preprocess.Boundary
	metadata   map[string]any
}

// NewContext validates and freezes the analysis inputs. Every channel must share the
// sample rate and length, and segments must be ordered, non-overlapping and in range.
// A nil or empty segment list means the whole signal.
func NewContext(set *channels.Set, segments []preprocess.Boundary, metadata map[string]any) (*Context, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("analysis context needs at least one channel")
	}
	all := set.All()
	sr, n := all[0].SampleRate(), all[0].Len()
	if sr <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sr)
	}
	for _, ch := range all[1:] {
		if ch.SampleRate() != sr || ch.Len() != n {
			return nil, fmt.Errorf("channel %s (%d Hz, %d samples) differs from %s (%d Hz, %d samples)",
				ch.Name(), ch.SampleRate(), ch.Len(), all[0].Name(), sr, n)
		}
	}

	if len(segments) == 0 {
		segments = preprocess.WholeSignal(n)
	}
	prev := 0
	for i, b := range segments {
		if b.Start < prev || b.End <= b.Start || b.End > n {
			return nil, fmt.Errorf("segment %d [%d,%d) is out of order or outside [0,%d)", i, b.Start, b.End, n)
		}
		prev = b.End
	}

	return &Context{
		set:        set,
		sampleRate: sr,
		length:     n,
		segments:   slices.Clone(segments),
		metadata:   maps.Clone(metadata),
	}, nil
}

// SampleRate returns the common sample rate in Hz.
func (c *Context) SampleRate() int { return c.sampleRate }

// Len returns the number of samples per channel.
func (c *Context) Len() int { return c.length }

// Duration returns the signal length in seconds.
func (c *Context) Duration() float64 { return float64(c.length) / float64(c.sampleRate) }

// ChannelNames returns the analysed channel names in order.
func (c *Context) ChannelNames() []string { return c.set.Names() }

// Channel returns the named channel.
func (c *Context) Channel(name string) (channels.Channel, bool) { return c.set.Get(name) }

// Channels returns every channel in order.
func (c *Context) Channels() []channels.Channel { return c.set.All() }

// Segments returns a copy of the segment boundaries.
func (c *Context) Segments() []preprocess.Boundary { return slices.Clone(c.segments) }

// Metadata returns a shallow copy of the run metadata.
func (c *Context) Metadata() map[string]any { return maps.Clone(c.metadata) }
