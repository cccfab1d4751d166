package ui

import (
	"github.com/linuxmatters/sigtrace/internal/engine"
)

// FileStartMsg indicates a new file has started loading and preprocessing
type FileStartMsg struct {
	FileIndex int
	FileName  string
}

// MethodMsg carries an engine progress event for the current file
type MethodMsg struct {
	FileIndex int
	Event     engine.Event
}

// FileCompleteMsg indicates a file has finished analysis
type FileCompleteMsg struct {
	FileIndex int
	Succeeded int
	Failed    int
	OutputDir string
	Error     error
}

// AllCompleteMsg indicates all files have been analysed
type AllCompleteMsg struct{}

