//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/domain"
	"github.com/ledgerline/paysync/internal/resync"
	"github.com/ledgerline/paysync/internal/runstore"
)

func testRefs(n int) []string {
	refs := make([]string, n)
	for i := range refs {
		refs[i] = fmt.Sprintf("PMT-%03d", i+1)
	}
	return refs
}

func fastOptions() batchfetch.Options {
	return batchfetch.Options{
		BatchSize:   5,
		Concurrency: 2,
		GroupDelay:  time.Millisecond,
		BatchDelay:  time.Millisecond,
	}
}

func TestFetchRunPersistsApplications(t *testing.T) {
	refs := testRefs(12)
	gateway := NewFakeGateway(t, refs)
	gateway.FailRef("PMT-007")

	store, err := runstore.New(TempDBPath(t))
	if err != nil {
		t.Fatalf("runstore.New: %v", err)
	}
	defer store.Close()

	payments := make([]*domain.Payment, len(refs))
	for i, ref := range refs {
		payments[i] = &domain.Payment{RefNbr: ref}
	}

	runner := batchfetch.NewRunner(gateway.Client(t), batchfetch.NewTracker(100), fastOptions())
	runner.SetStore(store)

	if err := runner.Start(context.Background(), payments); err != nil {
		t.Fatalf("Start: %v", err)
	}

	state := runner.Tracker().State()
	if state.Processed != 12 {
		t.Errorf("Processed = %d, want 12", state.Processed)
	}
	if state.Successful != 11 || state.Failed != 1 {
		t.Errorf("Successful/Failed = %d/%d, want 11/1", state.Successful, state.Failed)
	}
	if state.Processed != state.Successful+state.Failed {
		t.Errorf("counter mismatch: %d != %d + %d", state.Processed, state.Successful, state.Failed)
	}

	// Applications for successful payments landed in the database
	apps, err := store.GetApplications("PMT-001")
	if err != nil {
		t.Fatalf("GetApplications: %v", err)
	}
	if len(apps) != 1 || apps[0].InvoiceRef != "INV-PMT-001" {
		t.Errorf("unexpected applications for PMT-001: %+v", apps)
	}

	// The failed payment stored nothing
	apps, err = store.GetApplications("PMT-007")
	if err != nil {
		t.Fatalf("GetApplications: %v", err)
	}
	if len(apps) != 0 {
		t.Errorf("expected no applications for failed PMT-007, got %d", len(apps))
	}

	// The run record reflects the outcome
	run, err := store.GetRun(runner.RunID())
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("run record not persisted")
	}
	if run.Kind != domain.RunKindFetch {
		t.Errorf("run kind = %s, want fetch", run.Kind)
	}
	if run.Processed != 12 || run.Failed != 1 {
		t.Errorf("persisted counters = %d/%d failed, want 12/1", run.Processed, run.Failed)
	}

	entries, err := store.GetRunLog(runner.RunID(), 0)
	if err != nil {
		t.Fatalf("GetRunLog: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected persisted run log entries")
	}
}

func TestResyncRunFollowsContinuation(t *testing.T) {
	gateway := NewFakeGateway(t, testRefs(23))

	store, err := runstore.New(TempDBPath(t))
	if err != nil {
		t.Fatalf("runstore.New: %v", err)
	}
	defer store.Close()

	rc := resync.NewController(gateway.Client(t), batchfetch.NewTracker(100), resync.Options{
		BatchSize:  10,
		ClearFirst: true,
		Delay:      time.Millisecond,
	})
	rc.SetStore(store)

	if err := rc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := rc.LastError(); err != nil {
		t.Fatalf("resync halted: %v", err)
	}

	calls := gateway.ResyncCalls()
	if len(calls) != 3 {
		t.Fatalf("resync calls = %d, want 3", len(calls))
	}
	if calls[0]["skip"] != 0 || calls[0]["clearFirst"] != true {
		t.Errorf("first call = %+v, want skip 0 clearFirst true", calls[0])
	}
	for i, call := range calls[1:] {
		if call["clearFirst"] != false {
			t.Errorf("call %d passed clearFirst", i+2)
		}
	}
	if calls[1]["skip"] != 10 || calls[2]["skip"] != 20 {
		t.Errorf("continuation skips = %v, %v, want 10, 20", calls[1]["skip"], calls[2]["skip"])
	}

	totals := rc.Totals()
	if totals.Processed != 23 {
		t.Errorf("Processed = %d, want 23", totals.Processed)
	}
	if totals.Batches != 3 {
		t.Errorf("Batches = %d, want 3", totals.Batches)
	}

	state := rc.Tracker().State()
	if state.Total != 23 || state.Processed != 23 {
		t.Errorf("tracker shows %d/%d, want 23/23", state.Processed, state.Total)
	}

	run, err := store.LatestRun(domain.RunKindResync)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run == nil || run.Status != domain.PhaseCompleted {
		t.Errorf("expected completed resync run record, got %+v", run)
	}
}
