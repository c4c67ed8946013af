package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/domain"
)

func testModel() Model {
	tracker := batchfetch.NewTracker(100)
	tracker.Apply(batchfetch.Event{Kind: batchfetch.EventRunStarted, Total: 10})
	tracker.Apply(batchfetch.Event{Kind: batchfetch.EventItemDone, Item: "PMT-001", Success: true,
		Severity: domain.SeveritySuccess, Message: "PMT-001: 1 application"})
	tracker.Apply(batchfetch.Event{Kind: batchfetch.EventItemDone, Item: "PMT-002", Success: false,
		Severity: domain.SeverityError, Message: "PMT-002: gateway returned 500"})

	runner := batchfetch.NewRunner(nil, tracker, batchfetch.Options{})
	m := NewModel(runner, nil)
	m.width = 80
	m.height = 24
	return m
}

func TestNewModelSnapshotsTracker(t *testing.T) {
	m := testModel()

	if m.fetchState.Total != 10 {
		t.Errorf("Total = %d, want 10", m.fetchState.Total)
	}
	if m.fetchState.Processed != 2 {
		t.Errorf("Processed = %d, want 2", m.fetchState.Processed)
	}
	if m.fetchState.Successful != 1 || m.fetchState.Failed != 1 {
		t.Errorf("Successful/Failed = %d/%d, want 1/1",
			m.fetchState.Successful, m.fetchState.Failed)
	}
}

func TestUpdateQuit(t *testing.T) {
	m := testModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if msg := cmd(); msg != (tea.QuitMsg{}) {
		t.Errorf("expected tea.QuitMsg, got %T", msg)
	}
}

func TestUpdateTabSwitch(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	if m.activeTab != TabResync {
		t.Errorf("activeTab = %d, want TabResync", m.activeTab)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = updated.(Model)
	if m.activeTab != TabFetch {
		t.Errorf("activeTab = %d, want TabFetch", m.activeTab)
	}
}

func TestUpdateWindowSize(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = updated.(Model)
	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

func TestUpdateLogScroll(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = updated.(Model)
	if m.logScroll != 1 {
		t.Errorf("logScroll = %d, want 1 after scrolling up", m.logScroll)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	m = updated.(Model)
	if m.logScroll != 0 {
		t.Errorf("logScroll = %d, want 0 after scrolling back down", m.logScroll)
	}

	// Scrolling below the bottom stays at 0
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	m = updated.(Model)
	if m.logScroll != 0 {
		t.Errorf("logScroll = %d, want 0 at bottom", m.logScroll)
	}
}

func TestUpdateTickRefreshes(t *testing.T) {
	m := testModel()

	// Advance the tracker after the model snapshot
	m.fetch.Tracker().Apply(batchfetch.Event{Kind: batchfetch.EventItemDone, Item: "PMT-003", Success: true})

	updated, cmd := m.Update(TickMsg{})
	m = updated.(Model)
	if m.fetchState.Processed != 3 {
		t.Errorf("Processed = %d, want 3 after tick refresh", m.fetchState.Processed)
	}
	if cmd == nil {
		t.Error("expected tick command to reschedule")
	}
}

func TestControlResultMsgSetsStatus(t *testing.T) {
	m := testModel()

	updated, _ := m.Update(ControlResultMsg{Action: "pause"})
	m = updated.(Model)
	if m.statusMsg == "" {
		t.Error("expected status message after control result")
	}
}

func TestViewLoading(t *testing.T) {
	m := testModel()
	m.width = 0

	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestViewRendersCounters(t *testing.T) {
	m := testModel()

	view := m.View()
	if !strings.Contains(view, "paysync") {
		t.Error("view missing header")
	}
	if !strings.Contains(view, "2/10") {
		t.Error("view missing progress counters")
	}
	if !strings.Contains(view, "ok 1") || !strings.Contains(view, "failed 1") {
		t.Error("view missing success/failure counters")
	}
	if !strings.Contains(view, "Batch Fetch") || !strings.Contains(view, "Resync") {
		t.Error("view missing tab labels")
	}
}

func TestViewShowsLogEntries(t *testing.T) {
	m := testModel()
	m.fetch.Tracker().Apply(batchfetch.Event{
		Kind:     batchfetch.EventLog,
		Severity: domain.SeverityError,
		Message:  "gateway timeout on PMT-009",
	})
	m.refresh()

	if !strings.Contains(m.View(), "gateway timeout on PMT-009") {
		t.Error("view missing log entry text")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name        string
		done, total int
		width       int
		wantFilled  int
	}{
		{"empty", 0, 10, 10, 0},
		{"half", 5, 10, 10, 5},
		{"full", 10, 10, 10, 10},
		{"zero total", 0, 0, 10, 0},
		{"overshoot clamps", 15, 10, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := progressBar(tt.done, tt.total, tt.width)
			filled := strings.Count(bar, "█")
			if filled != tt.wantFilled {
				t.Errorf("progressBar(%d, %d, %d) filled = %d, want %d",
					tt.done, tt.total, tt.width, filled, tt.wantFilled)
			}
			if n := len([]rune(bar)); n != tt.width {
				t.Errorf("bar width = %d, want %d", n, tt.width)
			}
		})
	}
}

func TestUpdateResumeWithoutPausedRun(t *testing.T) {
	m := testModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if cmd == nil {
		t.Fatal("expected resume command")
	}

	msg, ok := cmd().(ControlResultMsg)
	if !ok {
		t.Fatalf("expected ControlResultMsg, got %T", msg)
	}
	if msg.Err != batchfetch.ErrNotPaused {
		t.Errorf("Err = %v, want ErrNotPaused", msg.Err)
	}

	updated, _ := m.Update(msg)
	m = updated.(Model)
	if !strings.Contains(m.statusMsg, batchfetch.ErrNotPaused.Error()) {
		t.Errorf("statusMsg = %q, should surface the resume rejection", m.statusMsg)
	}
}
