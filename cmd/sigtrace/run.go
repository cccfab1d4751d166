package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/linuxmatters/sigtrace/internal/archive"
	"github.com/linuxmatters/sigtrace/internal/audio"
	"github.com/linuxmatters/sigtrace/internal/channels"
	"github.com/linuxmatters/sigtrace/internal/cli"
	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/logging"
	"github.com/linuxmatters/sigtrace/internal/mains"
	"github.com/linuxmatters/sigtrace/internal/methods"
	"github.com/linuxmatters/sigtrace/internal/preprocess"
	"github.com/linuxmatters/sigtrace/internal/protocol"
	"github.com/linuxmatters/sigtrace/internal/results"
	"github.com/linuxmatters/sigtrace/internal/ui"
)

// RunCmd analyses one or more audio files
type RunCmd struct {
	Patterns []string `arg:"" name:"files" help:"Audio files or glob patterns (** matches directories)"`
	Protocol string   `short:"p" default:"builtin" env:"SIGTRACE_PROTOCOL" help:"Protocol YAML file, or 'builtin' for every registered method"`
	Output   string   `short:"o" type:"path" default:"sigtrace-results" env:"SIGTRACE_OUTPUT" help:"Directory for per-file results"`
	Workers  int      `short:"w" default:"1" env:"SIGTRACE_WORKERS" help:"Concurrent method invocations (0 uses one per CPU)"`
	Logs     bool     `env:"SIGTRACE_LOGS" help:"Save a run log next to each file's results"`
	Archive  string   `type:"path" env:"SIGTRACE_ARCHIVE" help:"Record every run in this SQLite database"`
	NoTUI    bool     `name:"no-tui" help:"Print plain summaries instead of the progress display"`
}

func (r *RunCmd) Run(g *Globals, logger *slog.Logger) error {
	files, err := expandPatterns(r.Patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no input files matched")
	}

	estimate := mains.Resolve(g.MainsHz)
	logger.Info("mains frequency", "hz", estimate.Hz, "source", estimate.Source,
		"timezone", estimate.Timezone, "country", estimate.Country)

	reg, err := methods.NewRegistry(methods.Options{MainsHz: estimate.Hz})
	if err != nil {
		return err
	}

	a := &analyser{
		registry:     reg,
		logger:       logger,
		workers:      r.Workers,
		outputRoot:   r.Output,
		logs:         r.Logs,
		protocolName: r.Protocol,
		mains:        estimate,
		outputDirs:   map[string]bool{},
	}

	// A protocol file is loaded once; the builtin protocol depends on each file's track count
	if r.Protocol != protocol.BuiltinName {
		if a.protocol, err = protocol.Load(r.Protocol); err != nil {
			return err
		}
		for _, id := range a.protocol.UnknownMethods(reg) {
			logger.Warn("protocol declares unknown method, it will be skipped", "method", id)
		}
	}

	if r.Archive != "" {
		if a.archive, err = archive.Open(r.Archive); err != nil {
			return err
		}
		defer a.archive.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if r.NoTUI || g.Verbose {
		return a.runPlain(ctx, files)
	}
	return a.runTUI(ctx, cancel, files)
}

// expandPatterns resolves glob patterns to files, keeping literal paths as given.
// Duplicates are dropped and order follows the arguments.
func expandPatterns(patterns []string) ([]string, error) {
	var files []string
	seen := map[string]bool{}
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, pattern := range patterns {
		if info, err := os.Stat(pattern); err == nil {
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory; use a pattern such as %s", pattern, filepath.Join(pattern, "**", "*.wav"))
			}
			add(pattern)
			continue
		}
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no such file", pattern)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return files, nil
}

// analyser runs the analysis pipeline for each input file
type analyser struct {
	registry     *engine.Registry
	logger       *slog.Logger
	workers      int
	outputRoot   string
	logs         bool
	protocol     *protocol.Protocol // nil selects the builtin protocol per file
	protocolName string
	mains        mains.Estimate
	archive      *archive.Archive
	outputDirs   map[string]bool
}

// outcome is the result of analysing one file
type outcome struct {
	RunID     string
	Digest    string
	OutputDir string
	Metadata  *audio.Metadata
	Record    *results.Record
	Stats     engine.Stats
}

// analyse loads, preprocesses and analyses a single file, then writes its artefacts.
// onEvent receives engine progress and may be nil.
func (a *analyser) analyse(ctx context.Context, path string, onEvent func(engine.Event)) (*outcome, error) {
	start := time.Now()
	log := a.logger.With("file", filepath.Base(path))

	buf, meta, err := audio.Load(path)
	if err != nil {
		return nil, err
	}
	digest, err := audio.Digest(path)
	if err != nil {
		return nil, err
	}
	log.Debug("audio loaded", "sample_rate", meta.SampleRate, "tracks", meta.Channels,
		"frames", meta.Frames, "format", meta.Format, "digest", digest)

	proto := a.protocol
	if proto == nil {
		proto = protocol.Builtin(a.registry, len(buf.Tracks))
	}

	set, err := channels.Derive(buf.Tracks, buf.SampleRate, proto.Channels.Analyze)
	if err != nil {
		return nil, err
	}
	set, segments, err := preprocess.Apply(set, proto.Preprocessing)
	if err != nil {
		return nil, err
	}
	log.Debug("preprocessing complete", "channels", set.Names(), "segments", len(segments))
	prepTime := time.Since(start)

	runID := uuid.NewString()
	metadata := map[string]any{
		"run_id":         runID,
		"audio_file":     path,
		"input_digest":   digest,
		"sample_rate":    meta.SampleRate,
		"source_tracks":  meta.Channels,
		"bit_depth":      meta.BitDepth,
		"format":         meta.Format,
		"duration":       meta.Duration,
		"channels":       set.Names(),
		"segments":       len(segments),
		"mains":          a.mains,
		"config_version": proto.Version,
		"tool_version":   version,
	}

	actx, err := engine.NewContext(set, segments, metadata)
	if err != nil {
		return nil, err
	}

	agg := results.NewAggregator(proto.Output.IncludeVisualizationData)
	if err := agg.SetMetadata(metadata); err != nil {
		return nil, err
	}
	if err := agg.SetPreprocessing(proto.Preprocessing); err != nil {
		return nil, err
	}

	plan := proto.Plan()
	eng := engine.New(a.registry,
		engine.WithLogger(log),
		engine.WithWorkers(a.workers),
		engine.WithEventHandler(onEvent),
	)
	stats, err := eng.Run(ctx, actx, plan, agg)
	if err != nil {
		return nil, err
	}

	if err := agg.SetMetadata(map[string]any{
		"summary": map[string]any{
			"total_methods":    stats.Executed,
			"failed_methods":   stats.Failed,
			"total_categories": len(plan),
		},
	}); err != nil {
		return nil, err
	}
	record, err := agg.Export()
	if err != nil {
		return nil, err
	}

	out := &outcome{
		RunID:     runID,
		Digest:    digest,
		OutputDir: a.outputDir(path),
		Metadata:  meta,
		Record:    record,
		Stats:     stats,
	}
	if err := a.writeArtefacts(ctx, out, proto, path); err != nil {
		return nil, err
	}

	if a.logs {
		if err := logging.WriteRunLog(logging.LogPath(out.OutputDir, path), logging.RunData{
			InputPath:    path,
			RunID:        runID,
			StartTime:    start,
			EndTime:      time.Now(),
			PrepTime:     prepTime,
			SampleRate:   meta.SampleRate,
			SourceTracks: meta.Channels,
			DurationSecs: meta.Duration,
			Protocol:     a.protocolName,
			Record:       record,
			Stats:        stats,
		}); err != nil {
			log.Error("failed to write run log", "error", err)
		}
	}

	log.Info("analysis complete", "methods", stats.Executed, "failed", stats.Failed,
		"skipped", len(stats.Skipped), "elapsed", time.Since(start))
	return out, nil
}

// outputDir picks a per-file directory named after the input, suffixed when two
// inputs share a name.
func (a *analyser) outputDir(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dir := filepath.Join(a.outputRoot, stem)
	for n := 2; a.outputDirs[dir]; n++ {
		dir = filepath.Join(a.outputRoot, fmt.Sprintf("%s-%d", stem, n))
	}
	a.outputDirs[dir] = true
	return dir
}

func (a *analyser) writeArtefacts(ctx context.Context, out *outcome, proto *protocol.Protocol, path string) error {
	if err := os.MkdirAll(out.OutputDir, 0o755); err != nil {
		return err
	}

	raw, err := out.Record.Indent()
	if err != nil {
		return err
	}
	if proto.Output.SaveRawData || proto.Output.Wants(protocol.FormatJSON) {
		if err := os.WriteFile(filepath.Join(out.OutputDir, "results.json"), raw, 0o644); err != nil {
			return err
		}
	}

	if proto.Output.SaveConfig {
		cfg, err := proto.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(out.OutputDir, "config_used.json"), cfg, 0o644); err != nil {
			return err
		}
	}

	if proto.Output.Wants(protocol.FormatXLSX) {
		f, err := os.Create(filepath.Join(out.OutputDir, "results.xlsx"))
		if err != nil {
			return err
		}
		if err := out.Record.WriteXLSX(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	if a.archive != nil {
		run := archive.Run{
			ID:         out.RunID,
			AudioFile:  path,
			Digest:     out.Digest,
			SampleRate: out.Metadata.SampleRate,
			Duration:   out.Metadata.Duration,
			Total:      out.Stats.Executed,
			Failed:     out.Stats.Failed,
			CreatedAt:  time.Now(),
		}
		if err := a.archive.Save(ctx, run, raw); err != nil {
			return err
		}
	}
	return nil
}

// runPlain analyses files sequentially and prints a summary for each.
func (a *analyser) runPlain(ctx context.Context, files []string) error {
	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := a.analyse(ctx, path, nil)
		if err != nil {
			a.logger.Error("analysis failed", "file", path, "error", err)
			cli.PrintError(fmt.Sprintf("%s: %v", path, err))
			failed++
			continue
		}
		logging.DisplaySummary(os.Stdout, path, out.Metadata, out.Record)
		fmt.Printf("Results: %s\n", out.OutputDir)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be analysed", failed, len(files))
	}
	return nil
}

// runTUI analyses files in the background while the progress display runs.
func (a *analyser) runTUI(ctx context.Context, cancel context.CancelFunc, files []string) error {
	model := ui.NewModel(files, a.logger)
	p := tea.NewProgram(model, tea.WithAltScreen())

	failed := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, path := range files {
			if ctx.Err() != nil {
				break
			}
			a.logger.Debug("sending FileStartMsg", "index", i, "file", path)
			p.Send(ui.FileStartMsg{FileIndex: i, FileName: path})

			out, err := a.analyse(ctx, path, func(ev engine.Event) {
				p.Send(ui.MethodMsg{FileIndex: i, Event: ev})
			})
			if err != nil {
				a.logger.Error("analysis failed", "file", path, "error", err)
				failed++
				p.Send(ui.FileCompleteMsg{FileIndex: i, Error: err})
				continue
			}

			p.Send(ui.FileCompleteMsg{
				FileIndex: i,
				Succeeded: out.Stats.Executed - out.Stats.Failed,
				Failed:    out.Stats.Failed,
				OutputDir: out.OutputDir,
			})
		}
		p.Send(ui.AllCompleteMsg{})
	}()

	final, err := p.Run()
	// Quitting the display cancels any methods still running
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	fmt.Print(final.View())

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) could not be analysed", failed, len(files))
	}
	return nil
}
