package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/config"
	"github.com/ledgerline/paysync/internal/domain"
	"github.com/ledgerline/paysync/internal/resync"
	"github.com/ledgerline/paysync/internal/runstore"
	"github.com/ledgerline/paysync/internal/schedule"
	"github.com/ledgerline/paysync/internal/selection"
	"github.com/ledgerline/paysync/web/api"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := newGatewayClient(cfg)
	if err != nil {
		return err
	}

	runner := batchfetch.NewRunner(client, batchfetch.NewTracker(500), batchfetch.Options{
		BatchSize:   cfg.Batch.BatchSize,
		Concurrency: cfg.Batch.Concurrency,
		GroupDelay:  cfg.Batch.GroupDelay,
		BatchDelay:  cfg.Batch.BatchDelay,
	})
	runner.SetStore(store)

	rc := resync.NewController(client, batchfetch.NewTracker(500), resync.Options{
		BatchSize: cfg.Resync.BatchSize,
		Delay:     cfg.Resync.Delay,
	})
	rc.SetStore(store)

	port := servePort
	if port == 0 {
		port = cfg.Web.Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, port)
	server := api.NewServer(store, runner, rc, addr)
	server.SetSelectionsDir(cfg.General.SelectionsDir)

	// Live state flows to SSE and websocket clients on every tracker change
	runner.Tracker().SetOnChange(func(state domain.RunState, entry *domain.LogEntry) {
		server.Broadcast(api.SSEEvent{Type: "fetch_update", Data: state})
	})
	rc.Tracker().SetOnChange(func(state domain.RunState, entry *domain.LogEntry) {
		server.Broadcast(api.SSEEvent{Type: "resync_update", Data: state})
	})

	if sched := startScheduler(cfg, rc, store); sched != nil {
		defer sched.Stop()
	}

	if watcher, err := selection.NewWatcher(cfg.General.SelectionsDir, func(changed []string) {
		log.Printf("Selection files changed: %v", changed)
		server.Broadcast(api.SSEEvent{Type: "selections_changed", Data: changed})
	}); err != nil {
		log.Printf("Warning: not watching selections dir: %v", err)
	} else {
		watcher.Start(context.Background())
		defer watcher.Stop()
	}

	fmt.Printf("Starting paysync API at http://%s\n", addr)
	return server.Start()
}

// startScheduler wires cron-driven resync jobs if a schedule file exists.
func startScheduler(cfg *config.Config, rc *resync.Controller, store *runstore.Store) *schedule.Scheduler {
	scfg, err := schedule.LoadScheduleConfig(cfg.General.SchedulePath)
	if err != nil {
		log.Printf("Warning: could not load schedule: %v", err)
		return nil
	}
	if len(scfg.Jobs) == 0 {
		return nil
	}

	sched, err := schedule.NewScheduler(scfg.Jobs)
	if err != nil {
		log.Printf("Warning: invalid schedule: %v", err)
		return nil
	}

	notifier := newNotifier(cfg)
	sched.Start(func(job schedule.JobConfig) error {
		if err := rc.SetOptions(resync.Options{
			BatchSize:  job.BatchSize,
			ClearFirst: job.ClearFirst,
			Delay:      cfg.Resync.Delay,
		}); err != nil {
			return err
		}
		if err := rc.Start(context.Background()); err != nil {
			return err
		}
		if err := rc.LastError(); err != nil {
			return fmt.Errorf("halted at skip %d: %w", rc.Skip(), err)
		}
		if job.NotifyOnComplete {
			notifyRun(store, notifier, runnerRunID(store, domain.RunKindResync))
		}
		return nil
	})

	log.Printf("Scheduler running %d resync jobs", len(scfg.Jobs))
	return sched
}
