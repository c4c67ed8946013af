package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ledgerline/paysync/internal/batchfetch"
	"github.com/ledgerline/paysync/internal/config"
	"github.com/ledgerline/paysync/internal/domain"
	"github.com/ledgerline/paysync/internal/erp"
	"github.com/ledgerline/paysync/internal/notify"
	"github.com/ledgerline/paysync/internal/resync"
	"github.com/ledgerline/paysync/internal/runstore"
	"github.com/ledgerline/paysync/internal/selection"
	"github.com/ledgerline/paysync/tui"
	"github.com/spf13/cobra"
)

var (
	fetchFile        string
	fetchDir         string
	fetchBatchSize   int
	fetchConcurrency int
	resyncSkip       int
	resyncClearFirst bool
	resyncBatchSize  int
	listKind         string
	listStatus       string
	listLimit        int
	logsLimit        int
	servePort        int
)

func init() {
	// fetch command
	fetchCmd := &cobra.Command{
		Use:   "fetch [REF...]",
		Short: "Fetch applications for selected payments",
		RunE:  runFetch,
	}
	fetchCmd.Flags().StringVar(&fetchFile, "file", "", "CSV file with payment references")
	fetchCmd.Flags().StringVar(&fetchDir, "dir", "", "selections directory (default from config)")
	fetchCmd.Flags().IntVar(&fetchBatchSize, "batch-size", 0, "outer batch size")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "concurrent requests per group")
	rootCmd.AddCommand(fetchCmd)

	// resync command
	resyncCmd := &cobra.Command{
		Use:   "resync",
		Short: "Run a full offset-based resync against the gateway",
		RunE:  runResync,
	}
	resyncCmd.Flags().IntVar(&resyncSkip, "skip", 0, "starting offset")
	resyncCmd.Flags().BoolVar(&resyncClearFirst, "clear-first", false, "clear stored applications before the first batch")
	resyncCmd.Flags().IntVar(&resyncBatchSize, "batch-size", 0, "server batch size")
	rootCmd.AddCommand(resyncCmd)

	// status command
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest fetch and resync runs",
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  runList,
	}
	runsCmd.Flags().StringVar(&listKind, "kind", "", "filter by kind (fetch|resync)")
	runsCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	runsCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum rows")
	rootCmd.AddCommand(runsCmd)

	// logs command
	logsCmd := &cobra.Command{
		Use:   "logs RUN",
		Short: "Show the progress log of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	logsCmd.Flags().IntVar(&logsLimit, "limit", 0, "maximum entries (0 = all)")
	rootCmd.AddCommand(logsCmd)

	// applications command
	appsCmd := &cobra.Command{
		Use:   "applications REF",
		Short: "Show stored applications for a payment",
		Args:  cobra.ExactArgs(1),
		RunE:  runApplications,
	}
	rootCmd.AddCommand(appsCmd)

	// breakdown command
	breakdownCmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Show stored application counts by document type",
		RunE:  runBreakdown,
	}
	rootCmd.AddCommand(breakdownCmd)

	// priority command
	priorityCmd := &cobra.Command{
		Use:   "priority",
		Short: "Manage customer fetch priorities",
	}
	priorityCmd.AddCommand(&cobra.Command{
		Use:   "set CUSTOMER PRIORITY",
		Short: "Set a customer's priority (lower runs first)",
		Args:  cobra.ExactArgs(2),
		RunE:  runPrioritySet,
	})
	priorityCmd.AddCommand(&cobra.Command{
		Use:   "rm CUSTOMER",
		Short: "Remove a customer's priority",
		Args:  cobra.ExactArgs(1),
		RunE:  runPriorityRemove,
	})
	priorityCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List customer priorities",
		RunE:  runPriorityList,
	})
	rootCmd.AddCommand(priorityCmd)

	// tui command
	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI dashboard",
		RunE:  runTUI,
	}
	rootCmd.AddCommand(tuiCmd)

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API server and scheduled resync daemon",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadWithLocalFallback(configPath)
}

func newGatewayClient(cfg *config.Config) (*erp.Client, error) {
	return erp.NewClient(erp.Config{
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: cfg.Gateway.Timeout,
	}, erp.StaticToken(cfg.GatewayToken()))
}

func newNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktopNotifier(true))
	}
	if cfg.Notifications.SlackWebhook != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.Notifications.SlackWebhook))
	}
	return notify.NewMultiNotifier(notifiers...)
}

func notifyRun(store *runstore.Store, notifier notify.Notifier, runID string) {
	run, err := store.GetRun(runID)
	if err != nil || run == nil {
		return
	}
	if err := notifier.Send(notify.ForRun(run)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: notification failed: %v\n", err)
	}
}

// printEntries streams tracker log entries to stdout as they happen.
func printEntries(tracker *batchfetch.Tracker) {
	tracker.SetOnChange(func(state domain.RunState, entry *domain.LogEntry) {
		if entry != nil {
			fmt.Printf("%s  %s\n", entry.Timestamp.Format("15:04:05"), entry.Message)
		}
	})
}

func loadSelection(cfg *config.Config, args []string) ([]*domain.Payment, error) {
	if len(args) > 0 {
		payments := make([]*domain.Payment, 0, len(args))
		for _, ref := range args {
			p := &domain.Payment{RefNbr: ref}
			if err := p.Validate(); err != nil {
				return nil, err
			}
			payments = append(payments, p)
		}
		return payments, nil
	}
	if fetchFile != "" {
		return selection.LoadCSVFile(fetchFile)
	}
	dir := fetchDir
	if dir == "" {
		dir = cfg.General.SelectionsDir
	}
	sel, err := selection.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return sel.Payments, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	payments, err := loadSelection(cfg, args)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		fmt.Println("No payments selected")
		return nil
	}

	priorities, err := store.GetCustomerPriorities()
	if err != nil {
		return err
	}
	payments = selection.Prioritize(payments, priorities)

	client, err := newGatewayClient(cfg)
	if err != nil {
		return err
	}

	opts := batchfetch.Options{
		BatchSize:   cfg.Batch.BatchSize,
		Concurrency: cfg.Batch.Concurrency,
		GroupDelay:  cfg.Batch.GroupDelay,
		BatchDelay:  cfg.Batch.BatchDelay,
	}
	if fetchBatchSize > 0 {
		opts.BatchSize = fetchBatchSize
	}
	if fetchConcurrency > 0 {
		opts.Concurrency = fetchConcurrency
	}

	tracker := batchfetch.NewTracker(0)
	printEntries(tracker)
	runner := batchfetch.NewRunner(client, tracker, opts)
	runner.SetStore(store)

	// Ctrl+C pauses at the next group boundary instead of killing mid-flight work
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Fetching applications for %d payments\n", len(payments))
	if err := runner.Start(ctx, payments); err != nil {
		return err
	}

	state := tracker.State()
	fmt.Printf("Done: %d processed, %d ok, %d failed\n",
		state.Processed, state.Successful, state.Failed)
	if remaining := runner.Remaining(); remaining > 0 {
		fmt.Printf("%d payments remaining; resume with the dashboard or rerun fetch\n", remaining)
	}

	notifyRun(store, newNotifier(cfg), runner.RunID())
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
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

	opts := resync.Options{
		BatchSize:  cfg.Resync.BatchSize,
		StartSkip:  resyncSkip,
		ClearFirst: resyncClearFirst,
		Delay:      cfg.Resync.Delay,
	}
	if resyncBatchSize > 0 {
		opts.BatchSize = resyncBatchSize
	}

	tracker := batchfetch.NewTracker(0)
	printEntries(tracker)
	rc := resync.NewController(client, tracker, opts)
	rc.SetStore(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rc.Start(ctx); err != nil {
		return err
	}

	totals := rc.Totals()
	fmt.Printf("Resync: %d batches, %d payments, %d applications\n",
		totals.Batches, totals.Processed, totals.TotalApplications)
	if err := rc.LastError(); err != nil {
		fmt.Printf("Halted at skip %d: %v\n", rc.Skip(), err)
		fmt.Printf("Resume with: paysync resync --skip %d\n", rc.Skip())
	}

	notifyRun(store, newNotifier(cfg), runnerRunID(store, domain.RunKindResync))
	return nil
}

// runnerRunID finds the most recent run of a kind for notification lookup.
func runnerRunID(store *runstore.Store, kind domain.RunKind) string {
	run, err := store.LatestRun(kind)
	if err != nil || run == nil {
		return ""
	}
	return run.ID
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, kind := range []domain.RunKind{domain.RunKindFetch, domain.RunKindResync} {
		run, err := store.LatestRun(kind)
		if err != nil {
			return err
		}
		if run == nil {
			fmt.Printf("%s: no runs recorded\n", kind)
			continue
		}
		fmt.Printf("%s: %s | %d/%d processed | %d ok | %d failed | %s\n",
			kind, run.Status, run.Processed, run.Total,
			run.Successful, run.Failed, run.Duration().Round(time.Second))
	}

	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{
		Kind:   domain.RunKind(listKind),
		Status: domain.RunPhase(listStatus),
		Limit:  listLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPROCESSED\tOK\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%d\n",
			r.ID, r.Kind, r.Status, r.Processed, r.Total, r.Successful, r.Failed)
	}
	w.Flush()

	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.GetRunLog(args[0], logsLimit)
	if err != nil {
		return err
	}

	for _, e := range entries {
		fmt.Printf("%s  [%s]  %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Severity, e.Message)
	}

	return nil
}

func runApplications(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	apps, err := store.GetApplications(args[0])
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		fmt.Printf("No applications stored for %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INVOICE\tTYPE\tPAID\tBALANCE")
	for _, a := range apps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.InvoiceRef, a.DocType, a.AmountPaid.StringFixed(2), a.Balance.StringFixed(2))
	}
	w.Flush()

	return nil
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	breakdown, err := store.ApplicationBreakdown()
	if err != nil {
		return err
	}

	types := make([]string, 0, len(breakdown))
	for t := range breakdown {
		types = append(types, string(t))
	}
	sort.Strings(types)

	total := 0
	for _, t := range types {
		count := breakdown[domain.DocType(t)]
		fmt.Printf("%s: %d\n", t, count)
		total += count
	}
	fmt.Printf("total: %d\n", total)

	return nil
}

func runPrioritySet(cmd *cobra.Command, args []string) error {
	priority, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("priority must be a number: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetCustomerPriority(args[0], priority); err != nil {
		return err
	}
	fmt.Printf("Priority for %s set to %d\n", args[0], priority)
	return nil
}

func runPriorityRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RemoveCustomerPriority(args[0]); err != nil {
		return err
	}
	fmt.Printf("Priority for %s removed\n", args[0])
	return nil
}

func runPriorityList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := runstore.New(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	priorities, err := store.GetCustomerPriorities()
	if err != nil {
		return err
	}

	customers := make([]string, 0, len(priorities))
	for c := range priorities {
		customers = append(customers, c)
	}
	sort.Slice(customers, func(i, j int) bool {
		if priorities[customers[i]] != priorities[customers[j]] {
			return priorities[customers[i]] < priorities[customers[j]]
		}
		return customers[i] < customers[j]
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CUSTOMER\tPRIORITY")
	for _, c := range customers {
		fmt.Fprintf(w, "%s\t%d\n", c, priorities[c])
	}
	w.Flush()

	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
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

	p := tea.NewProgram(tui.NewModel(runner, rc), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
