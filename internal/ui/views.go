package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Spinner frames for the active file
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	accentColor = lipgloss.Color("#1F6FB2")
	mutedColor  = lipgloss.Color("#888888")
	okColor     = lipgloss.Color("#00AA00")
	warnColor   = lipgloss.Color("#FFA500")
	errorColor  = lipgloss.Color("#A40000")
)

// renderProcessingView renders the main batch view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	b.WriteString(renderFileQueue(m))
	b.WriteString("\n\n")

	b.WriteString(renderOverallProgress(m))

	return b.String()
}

// renderHeader renders the application header
func renderHeader(m Model) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accentColor).
		Render("Sigtrace - Forensic Signal Analysis")

	subtitle := lipgloss.NewStyle().
		Foreground(mutedColor).
		Italic(true).
		Render(fmt.Sprintf("Analysing %d file(s)", m.TotalFiles))

	return title + "\n" + subtitle
}

// renderFileQueue renders the list of files with their status
func renderFileQueue(m Model) string {
	var b strings.Builder
	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file, m.spinnerIndex))
		b.WriteString("\n")
	}
	return b.String()
}

// renderFileEntry renders a single file entry in the queue
func renderFileEntry(file FileProgress, spinnerIndex int) string {
	fileName := filepath.Base(file.InputPath)

	switch file.Status {
	case StatusComplete:
		icon := lipgloss.NewStyle().Foreground(okColor).Render("✓")
		if file.Failed > 0 {
			icon = lipgloss.NewStyle().Foreground(warnColor).Render("!")
		}
		return fmt.Sprintf(" %s %s\n   %s", icon, fileName, methodSummary(file))

	case StatusPreparing:
		spinner := lipgloss.NewStyle().Foreground(accentColor).Render(spinnerFrames[spinnerIndex%len(spinnerFrames)])
		return fmt.Sprintf(" %s %s\n   Loading and preprocessing... [%s]", spinner, fileName, formatElapsed(file.ElapsedTime))

	case StatusAnalysing:
		spinner := lipgloss.NewStyle().Foreground(accentColor).Render(spinnerFrames[spinnerIndex%len(spinnerFrames)])
		return fmt.Sprintf(" %s %s\n%s", spinner, fileName, renderFileDetails(file))

	case StatusError:
		icon := lipgloss.NewStyle().Foreground(errorColor).Render("✗")
		return fmt.Sprintf(" %s %s\n   Error: %v", icon, fileName, file.Error)

	default:
		icon := lipgloss.NewStyle().Foreground(mutedColor).Render("○")
		return fmt.Sprintf(" %s %s\n   Queued...", icon, fileName)
	}
}

// methodSummary describes method outcomes for a finished file
func methodSummary(file FileProgress) string {
	s := fmt.Sprintf("%d methods | %d failed", file.Done, file.Failed)
	if file.Skipped > 0 {
		s += fmt.Sprintf(" | %d skipped", file.Skipped)
	}
	return s + fmt.Sprintf(" | %s", formatElapsed(file.ElapsedTime))
}

// renderFileDetails renders detailed progress for the active file
func renderFileDetails(file FileProgress) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1).
		Width(60)

	var content strings.Builder
	content.WriteString(fmt.Sprintf("Methods %d/%d", file.Done, file.Total))
	if file.Failed > 0 {
		content.WriteString(lipgloss.NewStyle().Foreground(warnColor).Render(fmt.Sprintf(" (%d failed)", file.Failed)))
	}
	content.WriteString("\n")
	content.WriteString(renderProgressBar(file.Progress(), 40))
	content.WriteString("\n\n")

	elapsed := file.ElapsedTime.Seconds()
	var remaining float64
	if p := file.Progress(); p > 0 {
		remaining = (elapsed / p) - elapsed
	}
	content.WriteString(fmt.Sprintf("Elapsed: %.1fs | Remaining: ~%.1fs", elapsed, remaining))
	if file.CurrentMethod != "" {
		content.WriteString("\nRunning: " + file.CurrentMethod)
	}

	return box.Render(content.String())
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	filled = max(0, min(width, filled))
	empty := width - filled

	filledStyle := lipgloss.NewStyle().Foreground(accentColor)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	bar := filledStyle.Render(strings.Repeat("━", filled)) + emptyStyle.Render(strings.Repeat("━", empty))

	return fmt.Sprintf("%s %3d%%", bar, int(progress*100))
}

// renderOverallProgress renders the overall progress footer
func renderOverallProgress(m Model) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(mutedColor).
		Padding(0, 1).
		Width(60)

	var content string
	if m.valid(m.CurrentIndex) {
		content = fmt.Sprintf("Analysing file %d of %d (%d complete)",
			m.CurrentIndex+1, m.TotalFiles, m.CompletedFiles)
	} else {
		content = fmt.Sprintf("Overall Progress: %d/%d complete", m.CompletedFiles, m.TotalFiles)
	}
	return box.Render(content)
}

// renderCompletionSummary renders the final completion summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(okColor).
		Render("Analysis Complete")
	b.WriteString(header)
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file, 0))
		if file.Status == StatusComplete && file.OutputDir != "" {
			b.WriteString("\n   Results: " + file.OutputDir)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d of %d file(s) analysed in %s", m.CompletedFiles, m.TotalFiles, formatElapsed(time.Since(m.StartTime))))
	if m.FailedFiles > 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render(fmt.Sprintf(", %d failed", m.FailedFiles)))
	}
	b.WriteString("\n")

	return b.String()
}

// formatElapsed formats elapsed time as MM:SS or HH:MM:SS
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
