package tui

import "invoiz/internal/model"

// Async message types for Bubble Tea commands.

type recordsLoadedMsg struct {
	records []model.EmailRecord
	err     error
}

type openResultMsg struct {
	target string
	err    error
}

type statusMsg string
