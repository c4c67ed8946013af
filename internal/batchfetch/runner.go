package batchfetch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/paysync/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Default pacing for runs against the sync gateway.
const (
	DefaultBatchSize   = 10
	DefaultConcurrency = 5
	DefaultGroupDelay  = 50 * time.Millisecond
	DefaultBatchDelay  = 300 * time.Millisecond
)

// Common runner errors.
var (
	ErrEmptySelection = fmt.Errorf("at least one payment must be selected")
	ErrAlreadyRunning = fmt.Errorf("a run is already active")
	ErrNotPaused      = fmt.Errorf("no paused run to resume")
	ErrRunActive      = fmt.Errorf("cannot reset while a run is active")
)

// Fetcher performs one unit of remote work for one payment.
type Fetcher interface {
	FetchApplications(ctx context.Context, payment *domain.Payment) ([]domain.Application, error)
}

// Store persists run outcomes. The runner tolerates a nil store.
type Store interface {
	SaveRun(run *domain.Run) error
	AppendRunLog(runID string, entry domain.LogEntry) error
	ReplaceApplications(paymentRef string, apps []domain.Application) error
}

// Options configures run pacing. Zero values fall back to defaults;
// Concurrency is clamped to at least 1. Changing options mid-run has no
// effect because Start copies them into the run.
type Options struct {
	BatchSize   int
	Concurrency int
	GroupDelay  time.Duration
	BatchDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.GroupDelay <= 0 {
		o.GroupDelay = DefaultGroupDelay
	}
	if o.BatchDelay <= 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	return o
}

// Runner drives the fetcher across a committed payment selection in outer
// batches of BatchSize, each dispatched as concurrent groups of Concurrency
// requests. Pausing halts at group boundaries; items already dispatched
// finish and are counted, and completed items are never re-enqueued.
type Runner struct {
	fetcher Fetcher
	tracker *Tracker
	store   Store
	pause   PauseToken

	mu        sync.Mutex
	opts      Options
	runID     string
	remaining []*domain.Payment
	startedAt time.Time
	running   bool
}

// NewRunner creates a runner with the given pacing options.
func NewRunner(fetcher Fetcher, tracker *Tracker, opts Options) *Runner {
	return &Runner{
		fetcher: fetcher,
		tracker: tracker,
		opts:    opts.withDefaults(),
	}
}

// SetStore sets the persistence store for run records.
func (r *Runner) SetStore(store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = store
}

// Tracker returns the runner's progress tracker.
func (r *Runner) Tracker() *Tracker { return r.tracker }

// RunID returns the identifier of the current or last run.
func (r *Runner) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Remaining returns how many selected payments have not completed yet.
func (r *Runner) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.remaining)
}

// Start commits a fresh selection and runs it to completion or pause.
// It blocks until the run stops; callers wanting a background run invoke
// it from a goroutine. Item-level fetch failures are logged and counted,
// never fatal.
func (r *Runner) Start(ctx context.Context, payments []*domain.Payment) error {
	if len(payments) == 0 {
		return ErrEmptySelection
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.runID = uuid.NewString()
	r.remaining = make([]*domain.Payment, len(payments))
	copy(r.remaining, payments)
	r.startedAt = time.Now()
	r.running = true
	r.pause.Clear()
	opts := r.opts
	r.mu.Unlock()

	r.tracker.Apply(Event{Kind: EventRunStarted, Total: len(payments)})
	// The run row must exist before any log line referencing it
	r.persistRun(domain.PhaseRunning, "")
	r.logf(domain.SeverityInfo, "Starting batch fetch for %d payments (batch size %d, concurrency %d)",
		len(payments), opts.BatchSize, opts.Concurrency)

	r.run(ctx, opts)
	return nil
}

// Pause requests a halt before the next concurrent group. In-flight
// requests finish and are counted.
func (r *Runner) Pause() {
	r.pause.Pause()
}

// Resume continues a paused run from its remaining work set.
func (r *Runner) Resume(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	if !r.tracker.State().IsPaused || len(r.remaining) == 0 {
		r.mu.Unlock()
		return ErrNotPaused
	}
	r.running = true
	r.pause.Clear()
	remaining := len(r.remaining)
	opts := r.opts
	r.mu.Unlock()

	r.tracker.Apply(Event{Kind: EventRunResumed})
	r.persistRun(domain.PhaseRunning, "")
	r.logf(domain.SeverityInfo, "Resuming with %d payments remaining", remaining)

	r.run(ctx, opts)
	return nil
}

// Reset discards the current selection, counters and log. Rejected while
// a run is active.
func (r *Runner) Reset() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunActive
	}
	r.remaining = nil
	r.runID = ""
	r.mu.Unlock()

	r.tracker.Apply(Event{Kind: EventReset})
	return nil
}

func (r *Runner) run(ctx context.Context, opts Options) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	for {
		batch := r.takeBatch(opts.BatchSize)
		if len(batch) == 0 {
			r.finish()
			return
		}

		if r.halted(ctx) {
			return
		}

		for start := 0; start < len(batch); start += opts.Concurrency {
			if start > 0 && r.halted(ctx) {
				return
			}

			end := start + opts.Concurrency
			if end > len(batch) {
				end = len(batch)
			}
			group := batch[start:end]

			g, gctx := errgroup.WithContext(ctx)
			for _, payment := range group {
				payment := payment
				g.Go(func() error {
					r.processItem(gctx, payment)
					return nil
				})
			}
			g.Wait()

			r.dropCompleted(len(group))

			if end < len(batch) {
				sleep(ctx, opts.GroupDelay)
			}
		}

		if r.Remaining() > 0 {
			sleep(ctx, opts.BatchDelay)
		}
	}
}

// takeBatch peeks at the next outer batch without removing items; items
// leave the remaining set only after their group settles.
func (r *Runner) takeBatch(size int) []*domain.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if size > len(r.remaining) {
		size = len(r.remaining)
	}
	batch := make([]*domain.Payment, size)
	copy(batch, r.remaining[:size])
	return batch
}

func (r *Runner) dropCompleted(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.remaining) {
		n = len(r.remaining)
	}
	r.remaining = r.remaining[n:]
}

// halted checks the pause token and context at a yield point and, when
// halting, moves the run into its paused state.
func (r *Runner) halted(ctx context.Context) bool {
	if !r.pause.Paused() && ctx.Err() == nil {
		return false
	}

	state := r.tracker.State()
	r.tracker.Apply(Event{Kind: EventPaused})
	r.logf(domain.SeverityInfo, "Paused with %d of %d payments processed", state.Processed, state.Total)
	r.persistRun(domain.PhasePaused, "")
	return true
}

func (r *Runner) finish() {
	state := r.tracker.State()
	elapsed := time.Since(r.startedAt)

	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(state.Processed) / secs
	}

	r.tracker.Apply(Event{Kind: EventRunFinished})
	r.logf(domain.SeveritySuccess, "Completed: %d processed (%d successful, %d failed) in %s (%.1f payments/sec)",
		state.Processed, state.Successful, state.Failed, elapsed.Round(time.Millisecond), rate)
	r.persistRun(domain.PhaseCompleted, "")
}

func (r *Runner) processItem(ctx context.Context, payment *domain.Payment) {
	r.tracker.Apply(Event{Kind: EventItemStarted, Item: payment.RefNbr})

	apps, err := r.fetcher.FetchApplications(ctx, payment)
	if err != nil {
		r.logf(domain.SeverityError, "%s: %v", payment.Label(), err)
		r.tracker.Apply(Event{Kind: EventItemDone, Item: payment.RefNbr, Success: false})
		return
	}

	if len(apps) == 0 {
		r.logf(domain.SeverityInfo, "%s: no applications found", payment.Label())
	} else {
		r.logf(domain.SeveritySuccess, "%s: %d application(s)", payment.Label(), len(apps))
		for _, app := range apps {
			r.logf(domain.SeverityInfo, "    %s %s: paid %s, balance %s",
				app.DocType, app.InvoiceRef, app.AmountPaid, app.Balance)
		}
		r.persistApplications(payment.RefNbr, apps)
	}

	r.tracker.Apply(Event{Kind: EventItemDone, Item: payment.RefNbr, Success: true})
}

func (r *Runner) logf(severity domain.Severity, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	r.tracker.Apply(Event{Kind: EventLog, Severity: severity, Message: message})

	r.mu.Lock()
	store, runID := r.store, r.runID
	r.mu.Unlock()
	if store != nil && runID != "" {
		entry := domain.LogEntry{Timestamp: time.Now(), Severity: severity, Message: message}
		if err := store.AppendRunLog(runID, entry); err != nil {
			log.Printf("Warning: failed to persist run log: %v", err)
		}
	}
}

func (r *Runner) persistRun(status domain.RunPhase, errMsg string) {
	r.mu.Lock()
	store, runID, startedAt := r.store, r.runID, r.startedAt
	r.mu.Unlock()
	if store == nil || runID == "" {
		return
	}

	state := r.tracker.State()
	run := &domain.Run{
		ID:         runID,
		Kind:       domain.RunKindFetch,
		Status:     status,
		Total:      state.Total,
		Processed:  state.Processed,
		Successful: state.Successful,
		Failed:     state.Failed,
		StartedAt:  &startedAt,
		Error:      errMsg,
	}
	if status == domain.PhaseCompleted || status == domain.PhaseFailed {
		now := time.Now()
		run.FinishedAt = &now
	}
	if err := store.SaveRun(run); err != nil {
		log.Printf("Warning: failed to persist run %s: %v", runID, err)
	}
}

func (r *Runner) persistApplications(paymentRef string, apps []domain.Application) {
	r.mu.Lock()
	store := r.store
	r.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.ReplaceApplications(paymentRef, apps); err != nil {
		log.Printf("Warning: failed to persist applications for %s: %v", paymentRef, err)
	}
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
