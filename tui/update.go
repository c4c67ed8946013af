package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ControlResultMsg is sent when a pause/resume/reset action settles
type ControlResultMsg struct {
	Action string
	Err    error
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			if m.activeTab == TabFetch {
				m.activeTab = TabResync
			} else {
				m.activeTab = TabFetch
			}
			m.logScroll = 0
			m.refresh()
		case "k", "up":
			if m.logScroll < len(m.logLines)-1 {
				m.logScroll++
			}
		case "j", "down":
			if m.logScroll > 0 {
				m.logScroll--
			}
		case "p":
			return m, m.pauseCmd()
		case "r":
			return m, m.resumeCmd()
		case "R":
			return m, m.resetCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case ControlResultMsg:
		if msg.Err != nil {
			m.statusMsg = msg.Action + ": " + msg.Err.Error()
		} else {
			m.statusMsg = msg.Action + " requested"
		}
		m.refresh()
		return m, nil
	}

	return m, nil
}

func (m Model) pauseCmd() tea.Cmd {
	tab := m.activeTab
	fetch, rc := m.fetch, m.resync
	return func() tea.Msg {
		if tab == TabResync && rc != nil {
			rc.Pause()
		} else if fetch != nil {
			fetch.Pause()
		}
		return ControlResultMsg{Action: "pause"}
	}
}

func (m Model) resumeCmd() tea.Cmd {
	tab := m.activeTab
	fetch, rc := m.fetch, m.resync
	return func() tea.Msg {
		var resume func(context.Context) error
		if tab == TabResync && rc != nil {
			resume = rc.Resume
		} else if fetch != nil {
			resume = fetch.Resume
		}
		if resume == nil {
			return ControlResultMsg{Action: "resume"}
		}
		// Resume blocks for the rest of the run but rejects a
		// non-paused run immediately. Wait just long enough to
		// catch that rejection.
		errCh := make(chan error, 1)
		go func() { errCh <- resume(context.Background()) }()
		select {
		case err := <-errCh:
			return ControlResultMsg{Action: "resume", Err: err}
		case <-time.After(100 * time.Millisecond):
			return ControlResultMsg{Action: "resume"}
		}
	}
}

func (m Model) resetCmd() tea.Cmd {
	tab := m.activeTab
	fetch, rc := m.fetch, m.resync
	return func() tea.Msg {
		var err error
		if tab == TabResync && rc != nil {
			err = rc.Reset()
		} else if fetch != nil {
			err = fetch.Reset()
		}
		return ControlResultMsg{Action: "reset", Err: err}
	}
}
