package resync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/domain"
)

// DefaultBatchSize is the number of payments the gateway processes per
// server-side batch.
const DefaultBatchSize = 50

// DefaultDelay paces iterations so a full resync cannot hammer the gateway.
const DefaultDelay = 500 * time.Millisecond

// Common controller errors.
var (
	ErrAlreadyRunning = fmt.Errorf("a resync is already active")
	ErrNotPaused      = fmt.Errorf("no halted resync to resume")
	ErrRunActive      = fmt.Errorf("cannot reset while a resync is active")
)

// Client calls the gateway's batch resync endpoint.
type Client interface {
	RunResyncBatch(ctx context.Context, req domain.ResyncRequest) (*domain.ResyncResult, error)
}

// Store persists resync run records and mirrors the gateway's application
// data locally.
type Store interface {
	SaveRun(run *domain.Run) error
	AppendRunLog(runID string, entry domain.LogEntry) error
	ClearApplications() error
}

// Options configures a resync run.
type Options struct {
	BatchSize int
	StartSkip int
	// ClearFirst opts in to clearing existing application rows before the
	// run. It is honored only on the very first call of a fresh run at
	// skip 0; every later call, including after resume, passes false.
	ClearFirst bool
	Delay      time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	return o
}

// Controller loops on the gateway's batch resync endpoint, following the
// server-provided continuation (nextSkip/complete) until done. Unlike the
// per-payment batch fetch, an endpoint failure here is fatal to the run:
// the loop halts in a resumable state at the last good offset.
type Controller struct {
	client  Client
	tracker *batchfetch.Tracker
	store   Store
	pause   batchfetch.PauseToken

	mu          sync.Mutex
	opts        Options
	runID       string
	currentSkip int
	clearArmed  bool
	totals      domain.ResyncTotals
	lastResult  *domain.ResyncResult
	lastErr     error
	running     bool
	startedAt   time.Time
}

// NewController creates a resync controller.
func NewController(client Client, tracker *batchfetch.Tracker, opts Options) *Controller {
	return &Controller{
		client:  client,
		tracker: tracker,
		opts:    opts.withDefaults(),
	}
}

// SetStore sets the persistence store for run records.
func (c *Controller) SetStore(store Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// SetOptions replaces the options for the next run. It fails while a
// run is active because Start copies the options at entry.
func (c *Controller) SetOptions(opts Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	c.opts = opts.withDefaults()
	return nil
}

// Tracker returns the controller's progress tracker.
func (c *Controller) Tracker() *batchfetch.Tracker { return c.tracker }

// Skip returns the offset the next batch call will use.
func (c *Controller) Skip() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSkip
}

// Totals returns the accumulated run totals.
func (c *Controller) Totals() domain.ResyncTotals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totals
}

// LastError returns the error that halted the run, if any.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Progress returns the completion percentage reported by the server.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResult == nil {
		return 0
	}
	return c.lastResult.ProgressPercent()
}

// Start begins a fresh resync from the configured starting offset. It
// blocks until the run completes, halts on error, or pauses.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.runID = uuid.NewString()
	c.currentSkip = c.opts.StartSkip
	c.clearArmed = c.opts.ClearFirst && c.opts.StartSkip == 0
	c.totals = domain.ResyncTotals{}
	c.lastResult = nil
	c.lastErr = nil
	c.startedAt = time.Now()
	c.running = true
	c.pause.Clear()
	opts := c.opts
	startSkip := c.currentSkip
	clearArmed := c.clearArmed
	c.mu.Unlock()

	c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventRunStarted})
	// The run row must exist before any log line referencing it
	c.persistRun(domain.PhaseRunning, "")
	c.logf(domain.SeverityInfo, "Starting full resync from skip %d (batch size %d, clear first: %v)",
		startSkip, opts.BatchSize, clearArmed)

	// When the gateway is told to rebuild from scratch, the local mirror
	// must drop its stale rows too
	if clearArmed {
		c.mu.Lock()
		store := c.store
		c.mu.Unlock()
		if store != nil {
			if err := store.ClearApplications(); err != nil {
				c.logf(domain.SeverityError, "Failed to clear local applications: %v", err)
			} else {
				c.logf(domain.SeverityInfo, "Cleared local application mirror")
			}
		}
	}

	c.loop(ctx, opts)
	return nil
}

// Pause requests a halt before the next iteration.
func (c *Controller) Pause() {
	c.pause.Pause()
}

// Resume continues a halted resync from the last recorded offset. The
// next batch call always passes clearFirst=false regardless of the
// original setting.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if !c.tracker.State().IsPaused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.clearArmed = false
	c.lastErr = nil
	c.running = true
	c.pause.Clear()
	opts := c.opts
	skip := c.currentSkip
	c.mu.Unlock()

	c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventRunResumed})
	c.persistRun(domain.PhaseRunning, "")
	c.logf(domain.SeverityInfo, "Resuming resync from skip %d", skip)

	c.loop(ctx, opts)
	return nil
}

// Reset discards the continuation state, totals and log. Rejected while
// a run is active.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunActive
	}
	c.runID = ""
	c.currentSkip = 0
	c.totals = domain.ResyncTotals{}
	c.lastResult = nil
	c.lastErr = nil
	c.mu.Unlock()

	c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventReset})
	return nil
}

func (c *Controller) loop(ctx context.Context, opts Options) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	for {
		if c.pause.Paused() || ctx.Err() != nil {
			c.mu.Lock()
			skip := c.currentSkip
			c.mu.Unlock()
			c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventPaused})
			c.logf(domain.SeverityInfo, "Resync paused at skip %d", skip)
			c.persistRun(domain.PhasePaused, "")
			return
		}

		c.mu.Lock()
		req := domain.ResyncRequest{
			BatchSize:  opts.BatchSize,
			Skip:       c.currentSkip,
			ClearFirst: c.clearArmed,
		}
		c.clearArmed = false
		c.mu.Unlock()

		result, err := c.client.RunResyncBatch(ctx, req)
		if err != nil {
			c.fail(req.Skip, err)
			return
		}
		if !result.Success {
			c.fail(req.Skip, fmt.Errorf("gateway reported failure: %s", strings.Join(result.Errors, "; ")))
			return
		}

		c.mu.Lock()
		c.totals.Add(result)
		c.lastResult = result
		if result.NextSkip > 0 {
			c.currentSkip = result.NextSkip
		} else {
			c.currentSkip = req.Skip + opts.BatchSize
		}
		c.mu.Unlock()

		c.tracker.Apply(batchfetch.Event{
			Kind:  batchfetch.EventBatchDone,
			Count: result.Processed,
			Total: result.TotalPayments,
		})
		c.logf(domain.SeverityInfo, "Batch at skip %d: %d payments, %d applications (%.0f%% complete)",
			req.Skip, result.Processed, result.TotalApplications, result.ProgressPercent())

		if result.Complete {
			c.finish()
			return
		}

		sleep(ctx, opts.Delay)
	}
}

// fail halts the run. Batch-endpoint failures are fatal, unlike per-item
// fetch failures: the loop stops, the error is surfaced, and the run stays
// resumable from the last good offset.
func (c *Controller) fail(skip int, err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventPaused})
	c.logf(domain.SeverityError, "Resync halted at skip %d: %v", skip, err)
	c.persistRun(domain.PhaseFailed, err.Error())
}

func (c *Controller) finish() {
	c.mu.Lock()
	totals := c.totals
	elapsed := time.Since(c.startedAt)
	c.mu.Unlock()

	c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventRunFinished})
	c.logf(domain.SeveritySuccess, "Resync complete: %d payments, %d applications in %d batches (%s)",
		totals.Processed, totals.TotalApplications, totals.Batches, elapsed.Round(time.Millisecond))
	for docType, n := range totals.Breakdown {
		c.logf(domain.SeverityInfo, "    %s: %d", docType, n)
	}
	c.persistRun(domain.PhaseCompleted, "")
}

func (c *Controller) logf(severity domain.Severity, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	c.tracker.Apply(batchfetch.Event{Kind: batchfetch.EventLog, Severity: severity, Message: message})

	c.mu.Lock()
	store, runID := c.store, c.runID
	c.mu.Unlock()
	if store != nil && runID != "" {
		entry := domain.LogEntry{Timestamp: time.Now(), Severity: severity, Message: message}
		if err := store.AppendRunLog(runID, entry); err != nil {
			log.Printf("Warning: failed to persist resync log: %v", err)
		}
	}
}

func (c *Controller) persistRun(status domain.RunPhase, errMsg string) {
	c.mu.Lock()
	store, runID, startedAt := c.store, c.runID, c.startedAt
	c.mu.Unlock()
	if store == nil || runID == "" {
		return
	}

	state := c.tracker.State()
	run := &domain.Run{
		ID:         runID,
		Kind:       domain.RunKindResync,
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
		log.Printf("Warning: failed to persist resync run %s: %v", runID, err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
