// Package protocol loads analysis protocols: the YAML document that names the
// channels to derive, the preprocessing to apply and the methods to run per category.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// Formats lists the accepted export formats.
var Formats = []string{FormatJSON, FormatXLSX}

// RequiredKeys must appear at the top level of every protocol document.
var RequiredKeys = []string{"version", "channels", "analyses"}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid protocol")

// Protocol is a parsed protocol document.
type Protocol struct {
	Version       string            `yaml:"version" json:"version"`
	Channels      Channels          `yaml:"channels" json:"channels"`
	Preprocessing preprocess.Config `yaml:"preprocessing" json:"preprocessing"`
	Analyses      Analyses          `yaml:"analyses" json:"analyses"`
	Output        Output            `yaml:"output" json:"output"`
}

// Channels names the derived channels to analyse, in order.
type Channels struct {
	Analyze []string `yaml:"analyze" json:"analyze"`
}

// Output controls which artefacts a run writes.
type Output struct {
	SaveRawData              bool     `yaml:"save_raw_data" json:"save_raw_data"`
	SaveConfig               bool     `yaml:"save_config" json:"save_config"`
	IncludeVisualizationData bool     `yaml:"include_visualization_data" json:"include_visualization_data"`
	Formats                  []string `yaml:"formats" json:"formats"`
}

// Wants reports whether format is among the requested export formats.
func (o Output) Wants(format string) bool {
	return slices.Contains(o.Formats, format)
}

// Category is one entry of the analyses mapping.
type Category struct {
	Name    string               `yaml:"-" json:"-"`
	Enabled bool                 `yaml:"enabled" json:"enabled"`
	Methods []engine.Declaration `yaml:"methods" json:"methods"`
}

// Analyses keeps categories in document order.
type Analyses []Category

// UnmarshalYAML walks the mapping node directly so category order survives decoding.
func (a *Analyses) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: analyses must be a mapping", node.Line)
	}
	out := make(Analyses, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		c := Category{Name: key.Value, Enabled: true}
		if value.Kind != yaml.ScalarNode || value.Tag != "!!null" {
			if err := value.Decode(&c); err != nil {
				return fmt.Errorf("analyses.%s: %w", key.Value, err)
			}
		}
		out = append(out, c)
	}
	*a = out
	return nil
}

// MarshalJSON writes analyses as an object with categories in document order.
func (a Analyses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Name, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Defaults returns the values used for keys a document leaves out.
func Defaults() Protocol {
	return Protocol{
		Version:       "1.0",
		Channels:      Channels{Analyze: []string{channels.Mono}},
		Preprocessing: preprocess.DefaultConfig(),
		Output: Output{
			SaveRawData: true,
			SaveConfig:  true,
			Formats:     []string{FormatJSON},
		},
	}
}

// Load reads and validates a protocol file.
func Load(path string) (*Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a protocol document.
func Parse(data []byte) (*Protocol, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document must be a mapping", ErrInvalid)
	}
	root := doc.Content[0]

	present := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		present[root.Content[i].Value] = true
	}
	var missing []string
	for _, k := range RequiredKeys {
		if !present[k] {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required keys %v", ErrInvalid, missing)
	}

	p := Defaults()
	if err := root.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.Preprocessing.Normalize.Method == "" {
		p.Preprocessing.Normalize.Method = preprocess.NormalizeRMS
	}
	if p.Preprocessing.Segmentation.Method == "" {
		p.Preprocessing.Segmentation.Method = preprocess.SegmentEnergy
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks channel, preprocessing, category and format names.
// Method identifiers are not checked here; the engine skips unknown ones.
func (p *Protocol) Validate() error {
	var errs []error
	if p.Version == "" {
		errs = append(errs, errors.New("version is empty"))
	}
	if len(p.Channels.Analyze) == 0 {
		errs = append(errs, errors.New("channels.analyze is empty"))
	}
	for _, name := range p.Channels.Analyze {
		if !channels.Valid(name) {
			errs = append(errs, fmt.Errorf("unknown channel %q (valid: %v)", name, channels.Names))
		}
	}
	if err := p.Preprocessing.Normalize.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Preprocessing.Segmentation.Validate(); err != nil {
		errs = append(errs, err)
	}

	seen := map[string]bool{}
	for _, c := range p.Analyses {
		if !ValidCategory(c.Name) {
			errs = append(errs, fmt.Errorf("unknown analysis category %q", c.Name))
		}
		if seen[c.Name] {
			errs = append(errs, fmt.Errorf("analysis category %q declared twice", c.Name))
		}
		seen[c.Name] = true
	}
	for _, f := range p.Output.Formats {
		if !slices.Contains(Formats, f) {
			errs = append(errs, fmt.Errorf("unknown export format %q (valid: %v)", f, Formats))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Plan returns the enabled categories in document order.
func (p *Protocol) Plan() []engine.CategoryPlan {
	var plan []engine.CategoryPlan
	for _, c := range p.Analyses {
		if !c.Enabled {
			continue
		}
		plan = append(plan, engine.CategoryPlan{Category: c.Name, Methods: slices.Clone(c.Methods)})
	}
	return plan
}

// UnknownMethods lists declared identifiers the registry does not know, as
// "category/method". An empty name is reported as "category/".
func (p *Protocol) UnknownMethods(reg *engine.Registry) []string {
	var out []string
	for _, c := range p.Analyses {
		if !c.Enabled {
			continue
		}
		for _, d := range c.Methods {
			if _, err := reg.Resolve(d.Name); err != nil {
				out = append(out, c.Name+"/"+d.Name)
			}
		}
	}
	return out
}

// JSON renders the protocol as indented JSON for config_used.json.
func (p *Protocol) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
