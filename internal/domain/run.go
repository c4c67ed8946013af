package domain

import "time"

// RunKind distinguishes the two batch controllers.
type RunKind string

const (
	RunKindFetch  RunKind = "fetch"
	RunKindResync RunKind = "resync"
)

// RunPhase is the lifecycle state of a run.
type RunPhase string

const (
	PhaseIdle      RunPhase = "idle"
	PhaseRunning   RunPhase = "running"
	PhasePaused    RunPhase = "paused"
	PhaseCompleted RunPhase = "completed"
	PhaseFailed    RunPhase = "failed"
)

// Severity classifies a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// LogEntry is one line of a run's progress log. Entries are append-only,
// ordered by creation time, and cleared only on explicit reset.
type LogEntry struct {
	Timestamp time.Time
	Severity  Severity
	Message   string
}

// RunState holds the mutable counters for one active run.
// Invariants: Processed == Successful + Failed, Processed <= Total,
// and IsRunning and IsPaused are never both true.
type RunState struct {
	Total       int
	Processed   int
	Successful  int
	Failed      int
	CurrentItem string
	IsRunning   bool
	IsPaused    bool
}

// Phase derives the lifecycle state from the counters and flags.
func (s RunState) Phase() RunPhase {
	switch {
	case s.IsRunning:
		return PhaseRunning
	case s.IsPaused:
		return PhasePaused
	case s.Total > 0 && s.Processed == s.Total:
		return PhaseCompleted
	default:
		return PhaseIdle
	}
}

// Run is a persisted record of a batch fetch or resync execution.
type Run struct {
	ID         string
	Kind       RunKind
	Status     RunPhase
	Total      int
	Processed  int
	Successful int
	Failed     int
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      string
}

// Duration returns the run's wall-clock time so far.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}
