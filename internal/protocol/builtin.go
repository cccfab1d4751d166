package protocol

import (
	"slices"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/methods"
)

// BuiltinName selects Builtin instead of a protocol file.
const BuiltinName = "builtin"

// ValidCategory reports whether name is a known analysis category.
func ValidCategory(name string) bool {
	return slices.Contains(methods.Categories, name)
}

// Builtin enables every registered method with its defaults. Stereo sources
// analyse left and right so the inter-channel methods have a pair; anything else
// analyses the mono downmix.
func Builtin(reg *engine.Registry, tracks int) *Protocol {
	p := Defaults()
	if tracks >= 2 {
		p.Channels.Analyze = []string{channels.Left, channels.Right}
	}
	for _, cat := range reg.Categories() {
		c := Category{Name: cat, Enabled: true}
		for _, e := range reg.Entries() {
			if e.Category == cat {
				c.Methods = append(c.Methods, engine.Declaration{Name: e.ID})
			}
		}
		p.Analyses = append(p.Analyses, c)
	}
	return &p
}
