package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/domain"
	"github.com/ledgerline/paysync/internal/resync"
)

// Tab identifies which controller the dashboard is focused on
type Tab int

const (
	TabFetch Tab = iota
	TabResync
)

// Model is the TUI application model
type Model struct {
	// Controllers
	fetch  *batchfetch.Runner
	resync *resync.Controller

	// Snapshots refreshed on tick
	fetchState  domain.RunState
	resyncState domain.RunState
	resyncSkip  int
	resyncPct   float64
	logLines    []domain.LogEntry

	// UI state
	width     int
	height    int
	activeTab Tab
	logScroll int
	statusMsg string

	// Refresh
	lastRefresh time.Time
}

// NewModel creates a new TUI model
func NewModel(fetch *batchfetch.Runner, rc *resync.Controller) Model {
	m := Model{fetch: fetch, resync: rc}
	m.refresh()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// refresh copies controller state into the model
func (m *Model) refresh() {
	if m.fetch != nil {
		m.fetchState = m.fetch.Tracker().State()
	}
	if m.resync != nil {
		m.resyncState = m.resync.Tracker().State()
		m.resyncSkip = m.resync.Skip()
		m.resyncPct = m.resync.Progress()
	}

	switch m.activeTab {
	case TabFetch:
		if m.fetch != nil {
			m.logLines = m.fetch.Tracker().Log()
		}
	case TabResync:
		if m.resync != nil {
			m.logLines = m.resync.Tracker().Log()
		}
	}

	m.lastRefresh = time.Now()
}

// activeState returns the focused controller's state
func (m Model) activeState() domain.RunState {
	if m.activeTab == TabResync {
		return m.resyncState
	}
	return m.fetchState
}

// TickMsg triggers a refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
