// Package ui provides the Bubbletea terminal user interface for sigtrace
package ui

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/sigtrace/internal/engine"
)

// FileStatus represents the analysis state of a single file
type FileStatus int

const (
	StatusQueued FileStatus = iota
	StatusPreparing
	StatusAnalysing
	StatusComplete
	StatusError
)

// FileProgress tracks progress for a single audio file
type FileProgress struct {
	InputPath string
	OutputDir string
	Status    FileStatus

	// Method tracking
	Total         int
	Done          int
	Failed        int
	Skipped       int
	CurrentMethod string // "category/method" of the most recently started invocation

	StartTime   time.Time
	ElapsedTime time.Duration

	Error error
}

// Progress returns the completed fraction of the file's plan.
func (fp FileProgress) Progress() float64 {
	if fp.Total == 0 {
		return 0
	}
	return float64(fp.Done) / float64(fp.Total)
}

// Model is the Bubbletea model for the batch analysis UI
type Model struct {
	Files          []FileProgress
	CurrentIndex   int
	TotalFiles     int
	CompletedFiles int
	FailedFiles    int

	StartTime time.Time
	Done      bool

	// Terminal dimensions
	Width  int
	Height int

	spinnerIndex int
	logger       *slog.Logger
}

// tickMsg is sent for spinner/timer animation
type tickMsg time.Time

// NewModel creates a new UI model with the given input files.
// Debug traces go to logger; pass nil to discard them.
func NewModel(inputFiles []string, logger *slog.Logger) Model {
	files := make([]FileProgress, len(inputFiles))
	for i, path := range inputFiles {
		files[i] = FileProgress{InputPath: path, Status: StatusQueued}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return Model{
		Files:        files,
		CurrentIndex: -1, // No file started yet
		TotalFiles:   len(inputFiles),
		StartTime:    time.Now(),
		logger:       logger,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// tickCmd returns a command that sends a tick message every 100ms
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		if m.Done {
			return m, nil
		}
		m.spinnerIndex = (m.spinnerIndex + 1) % len(spinnerFrames)
		if m.valid(m.CurrentIndex) {
			fp := &m.Files[m.CurrentIndex]
			if fp.Status == StatusPreparing || fp.Status == StatusAnalysing {
				fp.ElapsedTime = time.Since(fp.StartTime)
			}
		}
		return m, tickCmd()

	case FileStartMsg:
		m.logger.Debug("file started", "index", msg.FileIndex, "file", msg.FileName)
		if !m.valid(msg.FileIndex) {
			return m, nil
		}
		m.CurrentIndex = msg.FileIndex
		m.Files[m.CurrentIndex].Status = StatusPreparing
		m.Files[m.CurrentIndex].StartTime = time.Now()

	case MethodMsg:
		if m.valid(msg.FileIndex) {
			m.Files[msg.FileIndex] = applyEvent(m.Files[msg.FileIndex], msg.Event)
		}

	case FileCompleteMsg:
		m.logger.Debug("file complete", "index", msg.FileIndex, "failed_methods", msg.Failed, "error", msg.Error)
		if !m.valid(msg.FileIndex) {
			return m, nil
		}
		fp := &m.Files[msg.FileIndex]
		fp.ElapsedTime = time.Since(fp.StartTime)
		fp.OutputDir = msg.OutputDir
		fp.Error = msg.Error
		fp.CurrentMethod = ""
		if msg.Error != nil {
			fp.Status = StatusError
			m.FailedFiles++
		} else {
			fp.Status = StatusComplete
			fp.Done = msg.Succeeded + msg.Failed
			fp.Failed = msg.Failed
			m.CompletedFiles++
		}

	case AllCompleteMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) valid(i int) bool {
	return i >= 0 && i < len(m.Files)
}

// applyEvent folds an engine event into a file's progress
func applyEvent(fp FileProgress, ev engine.Event) FileProgress {
	if fp.Status == StatusQueued || fp.Status == StatusPreparing {
		fp.Status = StatusAnalysing
	}
	switch ev.Kind {
	case engine.EventStarted:
		fp.CurrentMethod = fmt.Sprintf("%s/%s", ev.Category, ev.Method)
	case engine.EventCompleted:
		fp.Done++
	case engine.EventFailed:
		fp.Done++
		fp.Failed++
	case engine.EventSkipped:
		fp.Skipped++
	}
	if ev.Total > 0 {
		fp.Total = ev.Total
	}
	return fp
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return fmt.Sprintf("Initializing...\nFiles: %d\n", len(m.Files))
	}
	if m.Done {
		return renderCompletionSummary(m)
	}
	return renderProcessingView(m)
}
