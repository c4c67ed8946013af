package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ledgerline/paysync/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	pausedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	// Header
	header := fmt.Sprintf(" paysync │ fetch: %s │ resync: %s ",
		m.fetchState.Phase(), m.resyncState.Phase())
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	// Tab bar
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	// Progress section for the focused controller
	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderProgress()))
	b.WriteString("\n")

	// Log tail
	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderLog()))
	b.WriteString("\n")

	// Status bar
	bar := " [tab] switch  [p]ause  [r]esume  [R]eset  [q]uit "
	if m.statusMsg != "" {
		bar += "│ " + m.statusMsg
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []string{"Batch Fetch", "Resync"}
	parts := make([]string, len(tabs))
	for i, name := range tabs {
		if Tab(i) == m.activeTab {
			parts[i] = tabActiveStyle.Render(name)
		} else {
			parts[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(parts, "  ")
}

func (m Model) renderProgress() string {
	state := m.activeState()

	var b strings.Builder
	b.WriteString(phaseStyle(state).Render(strings.ToUpper(string(state.Phase()))))
	b.WriteString("\n")

	width := m.width - 20
	if width < 10 {
		width = 10
	}
	b.WriteString(progressBar(state.Processed, state.Total, width))
	b.WriteString(fmt.Sprintf("  %d/%d", state.Processed, state.Total))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("ok %d  failed %d", state.Successful, state.Failed))
	if m.activeTab == TabResync {
		b.WriteString(fmt.Sprintf("  skip %d  %.0f%%", m.resyncSkip, m.resyncPct))
	}
	if state.CurrentItem != "" {
		b.WriteString("\n")
		b.WriteString(dimmedStyle.Render("processing " + state.CurrentItem))
	}

	return b.String()
}

func (m Model) renderLog() string {
	if len(m.logLines) == 0 {
		return dimmedStyle.Render("no log entries")
	}

	visible := m.height - 12
	if visible < 3 {
		visible = 3
	}

	// Tail the log, offset by the scroll position from the bottom
	end := len(m.logLines) - m.logScroll
	if end < 1 {
		end = 1
	}
	start := end - visible
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for i, entry := range m.logLines[start:end] {
		if i > 0 {
			b.WriteString("\n")
		}
		line := fmt.Sprintf("%s %s", entry.Timestamp.Format("15:04:05"), entry.Message)
		b.WriteString(severityStyle(entry.Severity).Render(line))
	}
	return b.String()
}

func phaseStyle(state domain.RunState) lipgloss.Style {
	switch state.Phase() {
	case domain.PhaseRunning:
		return runningStyle
	case domain.PhasePaused:
		return pausedStyle
	case domain.PhaseCompleted:
		return runningStyle
	default:
		return dimmedStyle
	}
}

func severityStyle(severity domain.Severity) lipgloss.Style {
	switch severity {
	case domain.SeveritySuccess:
		return runningStyle
	case domain.SeverityError:
		return errorStyle
	default:
		return dimmedStyle
	}
}

// progressBar renders a fixed-width bar like ███████░░░░░
func progressBar(done, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
