package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"invoiz/internal/model"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type viewState int

const (
	viewLoading viewState = iota
	viewRecords           // stored records list
	viewDetail            // one record
)

// RecordSource is where the browser reads records from.
type RecordSource interface {
	LoadRecords(ctx context.Context, runID string) ([]model.EmailRecord, error)
}

type AppModel struct {
	// Core state
	source  RecordSource
	runID   string
	heading string
	Err     error
	status  string

	// View state machine
	view     viewState
	records  []model.EmailRecord
	selected *model.EmailRecord

	// Sub-models
	recordsList    list.Model
	detailViewport viewport.Model

	// Layout
	width, height int

	// open is swapped out in tests.
	open func(target string) error
}

// NewAppModel browses the records of runID, or of every run if runID is "".
func NewAppModel(source RecordSource, runID string) AppModel {
	rl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	// Remove esc from the list's built-in Quit binding so it doesn't exit on home
	rl.KeyMap.Quit.SetKeys("q")

	return AppModel{
		source:         source,
		runID:          runID,
		status:         "Loading records...",
		view:           viewLoading,
		recordsList:    rl,
		detailViewport: viewport.New(0, 0),
		open:           openTarget,
	}
}

// SetHeading replaces the list title, which otherwise counts the loaded records.
func (m *AppModel) SetHeading(h string) {
	m.heading = h
}

func (m *AppModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recordsList.SetSize(msg.Width, msg.Height-4) // room for footer
		m.detailViewport.Width = msg.Width
		m.detailViewport.Height = msg.Height - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case recordsLoadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Loading records failed!"
			return m, tea.Quit
		}
		m.records = msg.records
		m.recordsList.SetItems(recordsToItems(m.records))
		m.recordsList.Title = m.heading
		if m.heading == "" {
			m.recordsList.Title = fmt.Sprintf("Processed emails (%d)", len(m.records))
		}
		m.view = viewRecords
		m.status = ""
		if len(m.records) == 0 {
			m.status = "No records yet. Run `invoiz run` first."
		}
		return m, nil

	case openResultMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Open failed: %v", msg.err)
		} else {
			m.status = "Opened " + msg.target
		}
		return m, clearStatusAfter(2 * time.Second)

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewRecords:
		m.recordsList, cmd = m.recordsList.Update(msg)
	case viewDetail:
		m.detailViewport, cmd = m.detailViewport.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global keys
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	}

	switch m.view {
	case viewLoading:
		if key == "q" {
			return m, tea.Quit
		}

	case viewRecords:
		// When the list is filtering, let it handle all keys except ctrl+c
		if m.recordsList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.recordsList, cmd = m.recordsList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.enterRecord()
		case "o":
			if r := m.current(); r != nil {
				return m, m.openCmd(r.Folder)
			}
			return m, nil
		case "g":
			if r := m.current(); r != nil {
				return m, m.openCmd(gmailURL(r.MessageID))
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.recordsList, cmd = m.recordsList.Update(msg)
		return m, cmd

	case viewDetail:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewRecords
			m.selected = nil
			return m, nil
		case "o":
			return m, m.openCmd(m.selected.Folder)
		case "g":
			return m, m.openCmd(gmailURL(m.selected.MessageID))
		}
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

// current is the record under the list cursor.
func (m *AppModel) current() *model.EmailRecord {
	item, ok := m.recordsList.SelectedItem().(recordItem)
	if !ok {
		return nil
	}
	r := item.EmailRecord
	return &r
}

func (m *AppModel) enterRecord() (tea.Model, tea.Cmd) {
	r := m.current()
	if r == nil {
		return m, nil
	}
	m.selected = r
	m.detailViewport.SetContent(renderDetail(*r))
	m.detailViewport.GotoTop()
	m.view = viewDetail
	return m, nil
}

// Commands

func (m *AppModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		recs, err := m.source.LoadRecords(context.Background(), m.runID)
		return recordsLoadedMsg{records: recs, err: err}
	}
}

func (m *AppModel) openCmd(target string) tea.Cmd {
	if target == "" {
		return func() tea.Msg {
			return openResultMsg{err: fmt.Errorf("nothing to open")}
		}
	}
	open := m.open
	return func() tea.Msg {
		return openResultMsg{target: target, err: open(target)}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	// Error state
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	// Loading
	if m.view == viewLoading {
		if m.status != "" {
			return m.status + "\n"
		}
		return "Loading...\n"
	}

	var b strings.Builder

	switch m.view {
	case viewRecords:
		b.WriteString(m.recordsList.View())
		b.WriteString("\n")
		b.WriteString(recordsFooter())
	case viewDetail:
		b.WriteString(m.detailViewport.View())
		b.WriteString("\n")
		b.WriteString(detailFooter())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}
