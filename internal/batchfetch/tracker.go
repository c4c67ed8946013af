package batchfetch

import (
	"sync"
	"time"

	"github.com/ledgerline/paysync/internal/domain"
)

// DefaultMaxLogEntries caps the retained log so a long resync cannot grow
// memory without bound; older entries are dropped first.
const DefaultMaxLogEntries = 2000

// EventKind identifies a tracker event.
type EventKind int

const (
	EventRunStarted EventKind = iota
	EventRunResumed
	EventItemStarted
	EventItemDone
	EventBatchDone
	EventPaused
	EventRunFinished
	EventLog
	EventReset
)

// Event is one scheduler occurrence applied to the run state. All state
// mutation flows through Tracker.Apply so concurrently settling requests
// can only increment, never overwrite, the counters.
type Event struct {
	Kind     EventKind
	Total    int
	Item     string
	Count    int
	Success  bool
	Severity domain.Severity
	Message  string
}

// ChangeCallback is invoked after each applied event, outside the lock.
type ChangeCallback func(state domain.RunState, entry *domain.LogEntry)

// Tracker reduces scheduler events into RunState counters and the
// append-only progress log.
type Tracker struct {
	mu       sync.Mutex
	state    domain.RunState
	log      []domain.LogEntry
	maxLog   int
	onChange ChangeCallback
}

// NewTracker creates a tracker retaining at most maxLog entries.
func NewTracker(maxLog int) *Tracker {
	if maxLog <= 0 {
		maxLog = DefaultMaxLogEntries
	}
	return &Tracker{maxLog: maxLog}
}

// SetOnChange registers a callback for state updates (TUI/SSE broadcast).
func (t *Tracker) SetOnChange(cb ChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = cb
}

// Apply folds one event into the run state.
func (t *Tracker) Apply(e Event) {
	t.mu.Lock()

	var entry *domain.LogEntry

	switch e.Kind {
	case EventRunStarted:
		t.state = domain.RunState{Total: e.Total, IsRunning: true}
	case EventRunResumed:
		t.state.IsRunning = true
		t.state.IsPaused = false
	case EventItemStarted:
		t.state.CurrentItem = e.Item
	case EventItemDone:
		t.state.Processed++
		if e.Success {
			t.state.Successful++
		} else {
			t.state.Failed++
		}
		if t.state.CurrentItem == e.Item {
			t.state.CurrentItem = ""
		}
	case EventBatchDone:
		// Server-side batches report their own size; the total becomes
		// known only once the server reports it.
		if e.Total > 0 {
			t.state.Total = e.Total
		}
		t.state.Processed += e.Count
		t.state.Successful += e.Count
		// Until the server reports a total, the processed count is the
		// only lower bound; Processed must never exceed Total.
		if t.state.Total < t.state.Processed {
			t.state.Total = t.state.Processed
		}
	case EventPaused:
		t.state.IsRunning = false
		t.state.IsPaused = true
		t.state.CurrentItem = ""
	case EventRunFinished:
		t.state.IsRunning = false
		t.state.IsPaused = false
		t.state.CurrentItem = ""
	case EventReset:
		t.state = domain.RunState{}
		t.log = nil
	}

	if e.Message != "" {
		severity := e.Severity
		if severity == "" {
			severity = domain.SeverityInfo
		}
		t.log = append(t.log, domain.LogEntry{
			Timestamp: time.Now(),
			Severity:  severity,
			Message:   e.Message,
		})
		if len(t.log) > t.maxLog {
			t.log = t.log[len(t.log)-t.maxLog:]
		}
		entry = &t.log[len(t.log)-1]
	}

	state := t.state
	callback := t.onChange
	t.mu.Unlock()

	// Notify outside of lock to avoid deadlock
	if callback != nil {
		callback(state, entry)
	}
}

// State returns a copy of the current run state.
func (t *Tracker) State() domain.RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Log returns a copy of the retained log entries.
func (t *Tracker) Log() []domain.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.LogEntry, len(t.log))
	copy(out, t.log)
	return out
}
