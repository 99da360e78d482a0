package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lepinkainen/visiontagger/batch"
)

type phase int

const (
	phaseLoading phase = iota
	phaseRunning
	phaseDone
)

// Row status markers
const (
	statusWaiting    = "⏳"
	statusProcessing = "🔄"
	statusDone       = "✓"
	statusError      = "❌"
	statusSkipped    = "⏭"
)

// RowItem is one results-table row in the file list
type RowItem struct {
	FileName string
	Response string
	Status   string
}

func (r RowItem) FilterValue() string { return r.FileName }
func (r RowItem) Title() string       { return fmt.Sprintf("%s %s", r.Status, r.FileName) }
func (r RowItem) Description() string {
	if r.Response == "" {
		return "waiting..."
	}
	// Show the tail so streaming text is visible as it grows
	const maxLen = 80
	text := strings.ReplaceAll(r.Response, "\n", " ")
	if len(text) > maxLen {
		text = "…" + text[len(text)-maxLen:]
	}
	return text
}

// Model is the TUI for a describe run: model-load progress first, then
// per-image streaming results
type Model struct {
	table    *batch.Table
	statuses []string

	totalRows     int
	processedRows int

	phase       phase
	loadStatus  string
	loadPercent int
	loadErr     error
	batchErr    error

	loadProgress    progress.Model
	overallProgress progress.Model
	rowList         list.Model

	width  int
	height int

	quitting bool

	Version string
}

// NewModel creates the TUI model over a results table
func NewModel(table *batch.Table, version string) Model {
	statuses := make([]string, table.Len())
	items := make([]list.Item, table.Len())
	for i := range items {
		statuses[i] = statusWaiting
		items[i] = RowItem{FileName: table.Row(i).FileName, Status: statusWaiting}
	}

	rowList := list.New(items, list.NewDefaultDelegate(), 0, 0)
	rowList.Title = "Images"

	return Model{
		table:           table,
		statuses:        statuses,
		totalRows:       table.Len(),
		phase:           phaseLoading,
		loadStatus:      "contacting model server",
		loadProgress:    progress.New(progress.WithDefaultGradient()),
		overallProgress: progress.New(progress.WithDefaultGradient()),
		rowList:         rowList,
		Version:         version,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rowList.SetSize(msg.Width-4, msg.Height/2)

	case LoadProgressMsg:
		m.loadStatus = msg.Status
		m.loadPercent = msg.Percent

	case LoadDoneMsg:
		if msg.Err != nil {
			m.loadErr = msg.Err
			m.phase = phaseDone
			return m, tea.Quit
		}
		m.phase = phaseRunning

	case RowStartedMsg:
		m.setStatus(msg.Index, statusProcessing)

	case RowTextMsg:
		m.refreshRow(msg.Index)

	case RowDoneMsg:
		status := statusDone
		if msg.Err != nil {
			status = statusError
		} else if strings.HasPrefix(m.table.Row(msg.Index).Response, batch.DuplicatePrefix) {
			status = statusSkipped
		}
		m.setStatus(msg.Index, status)
		m.processedRows++

	case BatchDoneMsg:
		m.batchErr = msg.Err
		m.phase = phaseDone
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) setStatus(i int, status string) {
	if i < 0 || i >= len(m.statuses) {
		return
	}
	m.statuses[i] = status
	m.refreshRow(i)
}

func (m *Model) refreshRow(i int) {
	if i < 0 || i >= m.totalRows {
		return
	}
	row := m.table.Row(i)
	m.rowList.SetItem(i, RowItem{
		FileName: row.FileName,
		Response: row.Response,
		Status:   m.statuses[i],
	})
}

// View implements tea.Model
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	header := HeaderStyle.Render(fmt.Sprintf("VisionTagger %s", m.Version))

	var body string
	switch m.phase {
	case phaseLoading:
		body = fmt.Sprintf("Loading model: %s\n%s",
			InfoStyle.Render(m.loadStatus),
			m.loadProgress.ViewAs(float64(m.loadPercent)/100.0))
	default:
		overallPercent := 0.0
		if m.totalRows > 0 {
			overallPercent = float64(m.processedRows) / float64(m.totalRows)
		}
		body = fmt.Sprintf("Overall Progress: %s (%d/%d)\n\n%s",
			m.overallProgress.ViewAs(overallPercent),
			m.processedRows,
			m.totalRows,
			m.rowList.View())
	}

	controls := "Controls: [q] Quit"

	return strings.Join([]string{header, body, controls}, "\n\n")
}

// LoadFailed reports whether the run ended in a model-load error
func (m Model) LoadFailed() error {
	return m.loadErr
}

// BatchFailed reports whether the run ended in a fatal batch error
func (m Model) BatchFailed() error {
	return m.batchErr
}
