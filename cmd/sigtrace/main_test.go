package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxmatters/sigtrace/internal/archive"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/mains"
	"github.com/linuxmatters/sigtrace/internal/methods"
	"github.com/linuxmatters/sigtrace/internal/protocol"
)

const testProtocol = `
version: "1.0"
channels:
  analyze: [left, right]
analyses:
  temporal:
    methods:
      - name: level_statistics
      - name: not_a_method
  inter_channel:
    methods:
      - name: time_delay
output:
  save_config: true
  formats: [json, xlsx]
`

// writeStereoTone writes a 16-bit stereo WAV with a 440 Hz tone on the left and a
// delayed copy on the right.
func writeStereoTone(t *testing.T, path string, sampleRate, frames, delay int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	data := make([]int, frames*2)
	for i := range frames {
		data[2*i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		if j := i - delay; j >= 0 {
			data[2*i+1] = int(8000 * math.Sin(2*math.Pi*440*float64(j)/float64(sampleRate)))
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
}

func newTestAnalyser(t *testing.T, protoYAML string) *analyser {
	t.Helper()
	reg, err := methods.NewRegistry(methods.Options{MainsHz: 50})
	require.NoError(t, err)

	a := &analyser{
		registry:     reg,
		logger:       slog.New(slog.DiscardHandler),
		workers:      2,
		outputRoot:   filepath.Join(t.TempDir(), "out"),
		protocolName: protocol.BuiltinName,
		mains:        mains.Resolve(50),
		outputDirs:   map[string]bool{},
	}
	if protoYAML != "" {
		a.protocol, err = protocol.Parse([]byte(protoYAML))
		require.NoError(t, err)
		a.protocolName = "test.yaml"
	}
	return a
}

func TestAnalyseWritesArtefacts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "tone.wav")
	writeStereoTone(t, input, 8000, 8000, 4)

	a := newTestAnalyser(t, testProtocol)
	a.logs = true
	var err error
	a.archive, err = archive.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	defer a.archive.Close()

	var (
		mu     sync.Mutex
		events []engine.Event
	)
	out, err := a.analyse(context.Background(), input, func(ev engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(a.outputRoot, "tone"), out.OutputDir)
	assert.Equal(t, 2, out.Stats.Executed)
	assert.Zero(t, out.Stats.Failed)
	require.Len(t, out.Stats.Skipped, 1)
	assert.Equal(t, "not_a_method", out.Stats.Skipped[0].Method)
	assert.NotEmpty(t, events)

	for _, name := range []string{"results.json", "config_used.json", "results.xlsx", "tone-sigtrace.log"} {
		assert.FileExists(t, filepath.Join(out.OutputDir, name))
	}

	raw, err := os.ReadFile(filepath.Join(out.OutputDir, "results.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, out.RunID, meta["run_id"])
	assert.Equal(t, out.Digest, meta["input_digest"])
	assert.EqualValues(t, 8000, meta["sample_rate"])
	assert.EqualValues(t, 2, meta["source_tracks"])
	assert.Equal(t, []any{"left", "right"}, meta["channels"])
	assert.Len(t, meta["skipped"], 1)
	summary := meta["summary"].(map[string]any)
	assert.EqualValues(t, 2, summary["total_methods"])
	assert.EqualValues(t, 0, summary["failed_methods"])
	assert.EqualValues(t, 2, summary["total_categories"])

	assert.Contains(t, doc, "temporal")
	assert.Contains(t, doc, "inter_channel")
	assert.True(t, strings.Index(string(raw), `"temporal"`) < strings.Index(string(raw), `"inter_channel"`))

	runs, err := a.archive.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Total)
}

func TestAnalyseBuiltinProtocol(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "tone.wav")
	writeStereoTone(t, input, 8000, 4000, 0)

	a := newTestAnalyser(t, "")
	out, err := a.analyse(context.Background(), input, nil)
	require.NoError(t, err)

	// Every registered method is planned; failures are recorded, never dropped
	assert.Equal(t, a.registry.Len(), out.Stats.Executed)
	assert.Equal(t, a.registry.Len(), out.Record.Summary().Total)
	assert.FileExists(t, filepath.Join(out.OutputDir, "results.json"))
	assert.FileExists(t, filepath.Join(out.OutputDir, "config_used.json"))
	assert.NoFileExists(t, filepath.Join(out.OutputDir, "results.xlsx"))
}

func TestAnalyseRejectsUnsupportedFile(t *testing.T) {
	input := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("hello"), 0o644))

	_, err := newTestAnalyser(t, "").analyse(context.Background(), input, nil)
	assert.Error(t, err)
}

func TestOutputDirDisambiguates(t *testing.T) {
	a := newTestAnalyser(t, "")
	first := a.outputDir("/a/take.wav")
	second := a.outputDir("/b/take.flac")
	assert.Equal(t, filepath.Join(a.outputRoot, "take"), first)
	assert.Equal(t, filepath.Join(a.outputRoot, "take-2"), second)
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.wav", "b.wav", filepath.Join("sub", "c.wav"), filepath.Join("sub", "d.flac")} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := expandPatterns([]string{
		filepath.Join(dir, "a.wav"),
		filepath.Join(dir, "**", "*.wav"),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.wav"),
		filepath.Join(dir, "b.wav"),
		filepath.Join(dir, "sub", "c.wav"),
	}, files)
	assert.Equal(t, filepath.Join(dir, "a.wav"), files[0])

	_, err = expandPatterns([]string{filepath.Join(dir, "*.mp3")})
	assert.Error(t, err)

	_, err = expandPatterns([]string{dir})
	assert.ErrorContains(t, err, "is a directory")
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":{"run_id":"r1"},"spectral":{"mains_hum":{"status":"ok"}}}`), 0o644))

	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, path, "$.spectral.mains_hum.status"))
	assert.Equal(t, `"ok"`, strings.TrimSpace(buf.String()))

	assert.Error(t, inspect(&buf, path, "$.temporal"))
	assert.Error(t, inspect(&buf, path, ""))
}
