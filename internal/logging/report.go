package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/linuxmatters/sigtrace/internal/engine"
	"github.com/linuxmatters/sigtrace/internal/results"
)

// writeSection writes a section header with title and dashed underline.
// The underline length matches the title length.
func writeSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// RunData contains everything needed to write a run log.
type RunData struct {
	InputPath    string
	RunID        string
	StartTime    time.Time
	EndTime      time.Time
	PrepTime     time.Duration // loading, channel derivation and preprocessing
	SampleRate   int
	SourceTracks int
	DurationSecs float64
	Protocol     string // protocol file, or "builtin"
	Record       *results.Record
	Stats        engine.Stats
}

// LogPath returns the run log path for an input inside outputDir:
// recording.wav → <outputDir>/recording-sigtrace.log
func LogPath(outputDir, inputPath string) string {
	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(outputDir, stem+"-sigtrace.log")
}

// WriteRunLog creates the run log at path.
//
// Log structure:
// 1. Header - file info, run ID and timestamp
// 2. Processing Summary - stage timings
// 3. Method Status - one row per result with wall time and failure message
// 4. Skipped Declarations - unknown or unnamed methods
// 5. Measurements - one table per method, one column per channel
func WriteRunLog(path string, data RunData) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer f.Close()

	writeRunHeader(f, data)
	writeProcessingSummary(f, data)
	if data.Record == nil {
		return nil
	}
	writeMethodStatus(f, data.Record, data.Stats)
	writeSkipped(f, data.Stats.Skipped)
	writeMeasurements(f, data.Record)
	return nil
}

// writeRunHeader outputs the log header with file info and timestamp.
func writeRunHeader(w io.Writer, data RunData) {
	fmt.Fprintln(w, "Sigtrace Analysis Log")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintf(w, "File: %s\n", filepath.Base(data.InputPath))
	fmt.Fprintf(w, "Run ID: %s\n", data.RunID)
	fmt.Fprintf(w, "Analysed: %s\n", data.EndTime.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Duration: %s\n", formatDurationHMS(data.DurationSecs))
	fmt.Fprintf(w, "Sample Rate: %d Hz\n", data.SampleRate)
	fmt.Fprintf(w, "Source: %s\n", trackName(data.SourceTracks))
	fmt.Fprintf(w, "Protocol: %s\n", data.Protocol)
	fmt.Fprintln(w, "")
}

// writeProcessingSummary outputs preparation and analysis times.
func writeProcessingSummary(w io.Writer, data RunData) {
	writeSection(w, "Processing Summary")

	fmt.Fprintf(w, "Preparation: %s\n", formatDuration(data.PrepTime))
	fmt.Fprintf(w, "Analysis:    %s\n", formatDuration(data.Stats.Elapsed))

	total := data.EndTime.Sub(data.StartTime)
	fmt.Fprintf(w, "Total:       %s", formatDuration(total))
	if data.DurationSecs > 0 && total > 0 {
		audio := time.Duration(data.DurationSecs * float64(time.Second))
		fmt.Fprintf(w, " (%.0fx real-time)", float64(audio)/float64(total))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "")
}

// writeMethodStatus tabulates every result in declaration order.
func writeMethodStatus(w io.Writer, rec *results.Record, stats engine.Stats) {
	writeSection(w, "Method Status")

	summary := rec.Summary()
	timed := len(stats.Timings) == len(summary.Methods)

	table := NewMetricTable("Status", "Time")
	table.Note = "Failure"
	for i, m := range summary.Methods {
		elapsed := MissingValue
		if timed {
			elapsed = formatDuration(stats.Timings[i].Elapsed)
		}
		note := ""
		if m.Failure != nil {
			note = m.Failure.Kind + ": " + m.Failure.Message
		}
		table.AddRow(m.Category+"/"+m.Key, []string{m.Status, elapsed}, "", note)
	}
	fmt.Fprint(w, table.String())
	fmt.Fprintf(w, "\n%d methods, %d succeeded, %d failed\n\n", summary.Total, summary.Succeeded, summary.Failed)
}

func writeSkipped(w io.Writer, skipped []results.Skipped) {
	if len(skipped) == 0 {
		return
	}
	writeSection(w, "Skipped Declarations")
	for _, s := range skipped {
		name := s.Method
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "  %s/%s: %s\n", s.Category, name, s.Reason)
	}
	fmt.Fprintln(w, "")
}

// writeMeasurements writes one channel-column table per successful method.
// Only scalar measurements and list lengths are shown; the JSON record has the rest.
func writeMeasurements(w io.Writer, rec *results.Record) {
	for _, cat := range rec.Categories() {
		writeSection(w, "Measurements: "+cat)
		for _, key := range rec.Keys(cat) {
			res, ok := rec.Result(cat, key)
			if !ok || res.Failed() {
				continue
			}
			table := MeasurementTable(res.Measurements)
			if len(table.Rows) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s\n", key)
			fmt.Fprint(w, table.String())
			fmt.Fprintln(w, "")
		}
	}
}

// MeasurementTable turns channel-keyed measurements into a table with one column
// per channel (or channel pair) and one row per measurement name.
func MeasurementTable(measurements map[string]any) *MetricTable {
	columns := make([]string, 0, len(measurements))
	for k := range measurements {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	byName := map[string][]string{}
	var names []string
	for i, col := range columns {
		fields, ok := measurements[col].(map[string]any)
		if !ok {
			continue
		}
		for name, v := range fields {
			cell, ok := formatMeasurement(name, v)
			if !ok {
				continue
			}
			if _, seen := byName[name]; !seen {
				byName[name] = make([]string, len(columns))
				names = append(names, name)
			}
			byName[name][i] = cell
		}
	}
	sort.Strings(names)

	table := NewMetricTable(columns...)
	for _, name := range names {
		table.AddRow(name, byName[name], unitFor(name), "")
	}
	return table
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// trackName returns a human-readable source layout
func trackName(tracks int) string {
	switch tracks {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d tracks", tracks)
	}
}
