// This file provides the console summary printed after a run without the TUI.

package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/linuxmatters/sigtrace/internal/audio"
	"github.com/linuxmatters/sigtrace/internal/results"
)

// DisplaySummary outputs file info and per-category method status to the console.
func DisplaySummary(w io.Writer, inputPath string, metadata *audio.Metadata, rec *results.Record) {
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "ANALYSIS: %s\n", filepath.Base(inputPath))
	fmt.Fprintln(w, strings.Repeat("=", 70))

	if metadata != nil {
		fmt.Fprintf(w, "Duration:    %s\n", formatDurationHMS(metadata.Duration))
		fmt.Fprintf(w, "Sample Rate: %s\n", formatMetricWithUnit(float64(metadata.SampleRate), 0, "Hz"))
		fmt.Fprintf(w, "Source:      %s, %d-bit %s\n", trackName(metadata.Channels), metadata.BitDepth, metadata.Format)
		fmt.Fprintln(w)
	}
	if rec == nil {
		return
	}

	summary := rec.Summary()
	byCategory := map[string][]results.MethodStatus{}
	for _, m := range summary.Methods {
		byCategory[m.Category] = append(byCategory[m.Category], m)
	}
	for _, cat := range rec.Categories() {
		writeAnalysisSection(w, strings.ToUpper(strings.ReplaceAll(cat, "_", " ")))
		for _, m := range byCategory[cat] {
			if m.Failure != nil {
				fmt.Fprintf(w, "  %-26s %s (%s)\n", m.Key, m.Failure.Kind, m.Failure.Message)
				continue
			}
			fmt.Fprintf(w, "  %-26s %s\n", m.Key, m.Status)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d methods: %d succeeded, %d failed\n", summary.Total, summary.Succeeded, summary.Failed)
}

// writeAnalysisSection writes a section header for analysis output.
func writeAnalysisSection(w io.Writer, title string) {
	fmt.Fprintln(w, title)
}

// formatDurationHMS formats duration as "Xh Ym Zs" or "Ym Zs" or "Z.Xs".
func formatDurationHMS(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}

	totalSeconds := int(seconds)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	secs := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	}
	return fmt.Sprintf("%dm %ds", minutes, secs)
}
