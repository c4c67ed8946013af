package batchfetch

import (
	"testing"

	"github.com/ledgerline/paysync/internal/domain"
)

func TestTracker_CounterInvariants(t *testing.T) {
	tracker := NewTracker(0)

	// Every intermediate state must satisfy the counter invariants.
	tracker.SetOnChange(func(state domain.RunState, _ *domain.LogEntry) {
		if state.Processed != state.Successful+state.Failed {
			t.Errorf("Processed = %d, Successful+Failed = %d", state.Processed, state.Successful+state.Failed)
		}
		if state.Processed > state.Total {
			t.Errorf("Processed = %d exceeds Total = %d", state.Processed, state.Total)
		}
		if state.IsRunning && state.IsPaused {
			t.Error("IsRunning and IsPaused are both true")
		}
	})

	tracker.Apply(Event{Kind: EventRunStarted, Total: 3})
	tracker.Apply(Event{Kind: EventItemStarted, Item: "PMT-1"})
	tracker.Apply(Event{Kind: EventItemDone, Item: "PMT-1", Success: true})
	tracker.Apply(Event{Kind: EventItemDone, Item: "PMT-2", Success: false})
	tracker.Apply(Event{Kind: EventPaused})
	tracker.Apply(Event{Kind: EventRunResumed})
	tracker.Apply(Event{Kind: EventItemDone, Item: "PMT-3", Success: true})
	tracker.Apply(Event{Kind: EventRunFinished})

	state := tracker.State()
	if state.Processed != 3 || state.Successful != 2 || state.Failed != 1 {
		t.Errorf("final state = %+v", state)
	}
	if state.Phase() != domain.PhaseCompleted {
		t.Errorf("Phase() = %q, want completed", state.Phase())
	}
}

func TestTracker_PausePreservesCounters(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Apply(Event{Kind: EventRunStarted, Total: 10})
	tracker.Apply(Event{Kind: EventItemDone, Item: "PMT-1", Success: true})
	tracker.Apply(Event{Kind: EventPaused})

	state := tracker.State()
	if state.Processed != 1 || state.Successful != 1 {
		t.Errorf("pause must preserve counters, got %+v", state)
	}
	if !state.IsPaused || state.IsRunning {
		t.Errorf("want paused, got %+v", state)
	}
}

func TestTracker_ResetClearsStateAndLog(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Apply(Event{Kind: EventRunStarted, Total: 2})
	tracker.Apply(Event{Kind: EventLog, Severity: domain.SeverityInfo, Message: "hello"})
	tracker.Apply(Event{Kind: EventItemDone, Item: "PMT-1", Success: true})
	tracker.Apply(Event{Kind: EventReset})

	state := tracker.State()
	if state != (domain.RunState{}) {
		t.Errorf("state after reset = %+v", state)
	}
	if len(tracker.Log()) != 0 {
		t.Errorf("log after reset has %d entries", len(tracker.Log()))
	}
}

func TestTracker_LogBounded(t *testing.T) {
	tracker := NewTracker(5)
	for i := 0; i < 20; i++ {
		tracker.Apply(Event{Kind: EventLog, Severity: domain.SeverityInfo, Message: "entry"})
	}
	if got := len(tracker.Log()); got != 5 {
		t.Errorf("retained %d entries, want 5", got)
	}
}

func TestTracker_LogDefaultsSeverity(t *testing.T) {
	tracker := NewTracker(0)
	tracker.Apply(Event{Kind: EventLog, Message: "plain"})

	entries := tracker.Log()
	if len(entries) != 1 || entries[0].Severity != domain.SeverityInfo {
		t.Errorf("entries = %+v", entries)
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("entry timestamp not set")
	}
}

func TestTracker_BatchDoneWithoutReportedTotal(t *testing.T) {
	tracker := NewTracker(10)
	tracker.Apply(Event{Kind: EventRunStarted})
	tracker.Apply(Event{Kind: EventBatchDone, Count: 50})
	tracker.Apply(Event{Kind: EventBatchDone, Count: 20})

	state := tracker.State()
	if state.Processed != 70 {
		t.Errorf("Processed = %d, want 70", state.Processed)
	}
	if state.Processed > state.Total {
		t.Errorf("Processed %d exceeds Total %d", state.Processed, state.Total)
	}

	// A late-reported total wins over the accumulated lower bound
	tracker.Apply(Event{Kind: EventBatchDone, Count: 10, Total: 100})
	state = tracker.State()
	if state.Total != 100 {
		t.Errorf("Total = %d, want 100", state.Total)
	}
	if state.Processed != 80 {
		t.Errorf("Processed = %d, want 80", state.Processed)
	}
}
