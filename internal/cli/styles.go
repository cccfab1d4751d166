package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/sigtrace/internal/archive"
	"github.com/linuxmatters/sigtrace/internal/engine"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#1F6FB2") // Sigtrace blue
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White
	errorColor   = lipgloss.Color("#A40000") // Red
)

// Styles
var (
	// Title style
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// Category heading for listings
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("Sigtrace"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintMethods lists registry entries grouped by category, in registration order.
func PrintMethods(w io.Writer, reg *engine.Registry) {
	fmt.Fprintln(w, TitleStyle.Render(fmt.Sprintf("Sigtrace methods (%d)", reg.Len())))

	entries := reg.Entries()
	for _, cat := range reg.Categories() {
		fmt.Fprintln(w, SectionStyle.Render(strings.ToUpper(cat)))
		for _, e := range entries {
			if e.Category != cat {
				continue
			}
			fmt.Fprintf(w, "  %s %s\n", ValueStyle.Render(fmt.Sprintf("%-26s", e.ID)), e.Description)
			if defaults := formatDefaults(e.Defaults); defaults != "" {
				fmt.Fprintf(w, "  %26s %s\n", "", KeyStyle.Render(defaults))
			}
		}
		fmt.Fprintln(w)
	}
}

func formatDefaults(p engine.Params) string {
	m := p.Map()
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(parts, " ")
}

// PrintRuns lists archived runs, newest first.
func PrintRuns(w io.Writer, runs []archive.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, KeyStyle.Render("No archived runs"))
		return
	}
	for _, r := range runs {
		status := ValueStyle.Render(fmt.Sprintf("%d/%d ok", r.Total-r.Failed, r.Total))
		if r.Failed > 0 {
			status = ErrorStyle.Render(fmt.Sprintf("%d/%d ok", r.Total-r.Failed, r.Total))
		}
		fmt.Fprintf(w, "%s  %s  %s\n", KeyStyle.Render(r.CreatedAt.Local().Format(time.DateTime)), r.ID, status)
		fmt.Fprintf(w, "  %s %s (%d Hz, %.1fs)\n", KeyStyle.Render("file:"), r.AudioFile, r.SampleRate, r.Duration)
	}
}
