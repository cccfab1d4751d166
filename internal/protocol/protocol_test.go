package protocol

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/methods"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
)

const sample = `
version: "1.0"
channels:
  analyze: [left, right, difference]
preprocessing:
  normalize:
    enabled: true
    method: lufs
    target_level: -23
  segmentation:
    enabled: true
    segment_duration: 2.5
analyses:
  spectral:
    enabled: true
    methods:
      - name: fft_global
        params:
          window: hamming
      - name: mains_hum
        params:
          harmonics: 3
  temporal:
    methods:
      - name: envelope
      - name: not_a_method
  steganography:
    enabled: false
    methods:
      - name: lsb_analysis
output:
  save_config: false
  include_visualization_data: true
  formats: [json, xlsx]
`

func TestParsePreservesCategoryOrder(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "1.0", p.Version)
	assert.Equal(t, []string{channels.Left, channels.Right, channels.Difference}, p.Channels.Analyze)

	names := make([]string, len(p.Analyses))
	for i, c := range p.Analyses {
		names[i] = c.Name
	}
	assert.Equal(t, []string{methods.Spectral, methods.Temporal, methods.Steganography}, names)
	assert.True(t, p.Analyses[1].Enabled, "enabled defaults to true")

	plan := p.Plan()
	require.Len(t, plan, 2, "disabled categories are left out of the plan")
	assert.Equal(t, methods.Spectral, plan[0].Category)
	assert.Equal(t, "hamming", plan[0].Methods[0].Params["window"])
	assert.Equal(t, 3, plan[0].Methods[1].Params["harmonics"])
}

func TestParseFillsDefaults(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, preprocess.NormalizeLUFS, p.Preprocessing.Normalize.Method)
	assert.Equal(t, -23.0, p.Preprocessing.Normalize.TargetLevel)
	assert.Equal(t, preprocess.SegmentEnergy, p.Preprocessing.Segmentation.Method)
	assert.Equal(t, 2.5, p.Preprocessing.Segmentation.SegmentDuration)

	assert.True(t, p.Output.SaveRawData)
	assert.False(t, p.Output.SaveConfig)
	assert.True(t, p.Output.Wants(FormatXLSX))
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing keys",
			doc:  "version: 1\n",
			want: "missing required keys [channels analyses]",
		},
		{
			name: "unknown channel",
			doc:  "version: 1\nchannels: {analyze: [center]}\nanalyses: {}\n",
			want: `unknown channel "center"`,
		},
		{
			name: "unknown normalisation",
			doc:  "version: 1\nchannels: {analyze: [mono]}\npreprocessing: {normalize: {method: peak}}\nanalyses: {}\n",
			want: "invalid normalization method",
		},
		{
			name: "unknown category",
			doc:  "version: 1\nchannels: {analyze: [mono]}\nanalyses: {spectra: {methods: []}}\n",
			want: `unknown analysis category "spectra"`,
		},
		{
			name: "unknown format",
			doc:  "version: 1\nchannels: {analyze: [mono]}\nanalyses: {}\noutput: {formats: [csv]}\n",
			want: `unknown export format "csv"`,
		},
		{
			name: "not a mapping",
			doc:  "- a\n- b\n",
			want: "document must be a mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUnknownMethods(t *testing.T) {
	reg, err := methods.NewRegistry(methods.Options{})
	require.NoError(t, err)
	p, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"temporal/not_a_method"}, p.UnknownMethods(reg))
}

func TestBuiltinCoversRegistry(t *testing.T) {
	reg, err := methods.NewRegistry(methods.Options{})
	require.NoError(t, err)

	stereo := Builtin(reg, 2)
	require.NoError(t, stereo.Validate())
	assert.Equal(t, []string{channels.Left, channels.Right}, stereo.Channels.Analyze)

	total := 0
	for _, cp := range stereo.Plan() {
		total += len(cp.Methods)
	}
	assert.Equal(t, reg.Len(), total)
	assert.Empty(t, stereo.UnknownMethods(reg))

	assert.Equal(t, []string{channels.Mono}, Builtin(reg, 1).Channels.Analyze)
}

func TestJSONKeepsOrder(t *testing.T) {
	p, err := Parse([]byte(sample))
	require.NoError(t, err)

	out, err := p.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	analyses := decoded["analyses"].(map[string]any)
	assert.Len(t, analyses, 3)

	text := string(out)
	assert.Less(t, strings.Index(text, `"spectral"`), strings.Index(text, `"temporal"`))
	assert.Less(t, strings.Index(text, `"temporal"`), strings.Index(text, `"steganography"`))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, p.Analyses, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlanMethodsAreCopies(t *testing.T) {
	p := &Protocol{Analyses: Analyses{{Name: methods.Temporal, Enabled: true, Methods: []engine.Declaration{{Name: "envelope"}}}}}
	plan := p.Plan()
	plan[0].Methods[0].Name = "changed"
	assert.Equal(t, "envelope", p.Analyses[0].Methods[0].Name)
}
