package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerline/paysync/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for runs, their logs, and the
// fetched application records.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Concurrent group goroutines all write through this handle; a single
	// connection serializes them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}

	// Run migrations
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, status, total, processed, successful, failed, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			processed = excluded.processed,
			successful = excluded.successful,
			failed = excluded.failed,
			finished_at = excluded.finished_at,
			error = excluded.error
	`,
		run.ID,
		string(run.Kind),
		string(run.Status),
		run.Total,
		run.Processed,
		run.Successful,
		run.Failed,
		run.StartedAt,
		run.FinishedAt,
		run.Error,
	)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`
		SELECT id, kind, status, total, processed, successful, failed, started_at, finished_at, error
		FROM runs WHERE id = ?
	`, id)

	return scanRun(row.Scan)
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Kind   domain.RunKind
	Status domain.RunPhase
	Limit  int
}

// ListRuns returns runs matching the given options, newest first.
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT id, kind, status, total, processed, successful, failed, started_at, finished_at, error FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LatestRun returns the most recently started run of the given kind, or
// nil when none exists.
func (s *Store) LatestRun(kind domain.RunKind) (*domain.Run, error) {
	runs, err := s.ListRuns(ListOptions{Kind: kind, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

// AppendRunLog stores one progress log line for a run.
func (s *Store) AppendRunLog(runID string, entry domain.LogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, severity, message)
		VALUES (?, ?, ?, ?)
	`, runID, entry.Timestamp, string(entry.Severity), entry.Message)
	return err
}

// GetRunLog returns a run's log lines in insertion order. A limit of 0
// returns everything.
func (s *Store) GetRunLog(runID string, limit int) ([]domain.LogEntry, error) {
	query := `SELECT timestamp, severity, message FROM run_logs WHERE run_id = ? ORDER BY id`
	args := []interface{}{runID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var entry domain.LogEntry
		var severity string
		if err := rows.Scan(&entry.Timestamp, &severity, &entry.Message); err != nil {
			return nil, err
		}
		entry.Severity = domain.Severity(severity)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ReplaceApplications swaps the stored application rows for one payment
// with a freshly fetched set. The delete and inserts run in a single
// transaction so readers never see a partial set.
func (s *Store) ReplaceApplications(paymentRef string, apps []domain.Application) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM applications WHERE payment_ref = ?`, paymentRef); err != nil {
		return err
	}

	for _, app := range apps {
		_, err := tx.Exec(`
			INSERT INTO applications (payment_ref, invoice_ref, amount_paid, balance, doc_type, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, paymentRef, app.InvoiceRef, app.AmountPaid.String(), app.Balance.String(), string(app.DocType), time.Now())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetApplications returns the stored application rows for one payment.
func (s *Store) GetApplications(paymentRef string) ([]domain.Application, error) {
	rows, err := s.db.Query(`
		SELECT payment_ref, invoice_ref, amount_paid, balance, doc_type
		FROM applications WHERE payment_ref = ? ORDER BY id
	`, paymentRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		var app domain.Application
		var amountPaid, balance, docType string
		if err := rows.Scan(&app.PaymentRef, &app.InvoiceRef, &amountPaid, &balance, &docType); err != nil {
			return nil, err
		}
		if app.AmountPaid, err = decimal.NewFromString(amountPaid); err != nil {
			return nil, fmt.Errorf("parsing amount_paid for %s: %w", app.PaymentRef, err)
		}
		if app.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parsing balance for %s: %w", app.PaymentRef, err)
		}
		app.DocType = domain.DocType(docType)
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// ApplicationBreakdown counts stored application rows per document type.
func (s *Store) ApplicationBreakdown() (map[domain.DocType]int, error) {
	rows, err := s.db.Query(`SELECT doc_type, COUNT(*) FROM applications GROUP BY doc_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breakdown := make(map[domain.DocType]int)
	for rows.Next() {
		var docType string
		var count int
		if err := rows.Scan(&docType, &count); err != nil {
			return nil, err
		}
		breakdown[domain.DocType(docType)] = count
	}
	return breakdown, rows.Err()
}

// ClearApplications removes every stored application row. Used when a
// resync run asks the gateway to rebuild from scratch.
func (s *Store) ClearApplications() error {
	_, err := s.db.Exec(`DELETE FROM applications`)
	return err
}

// SetCustomerPriority sets the processing priority for a customer. Lower
// values are processed first.
func (s *Store) SetCustomerPriority(customerID string, priority int) error {
	_, err := s.db.Exec(`
		INSERT INTO customer_priorities (customer_id, priority)
		VALUES (?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET priority = excluded.priority
	`, customerID, priority)
	return err
}

// GetCustomerPriorities returns the priority map for all customers.
func (s *Store) GetCustomerPriorities() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT customer_id, priority FROM customer_priorities`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	priorities := make(map[string]int)
	for rows.Next() {
		var customerID string
		var priority int
		if err := rows.Scan(&customerID, &priority); err != nil {
			return nil, err
		}
		priorities[customerID] = priority
	}
	return priorities, rows.Err()
}

// RemoveCustomerPriority removes a customer's priority entry.
func (s *Store) RemoveCustomerPriority(customerID string) error {
	_, err := s.db.Exec(`DELETE FROM customer_priorities WHERE customer_id = ?`, customerID)
	return err
}

func scanRun(scan func(dest ...interface{}) error) (*domain.Run, error) {
	var run domain.Run
	var kind, status string
	var startedAt, finishedAt sql.NullTime
	var errMsg sql.NullString

	err := scan(&run.ID, &kind, &status, &run.Total, &run.Processed, &run.Successful, &run.Failed, &startedAt, &finishedAt, &errMsg)
	if err != nil {
		return nil, err
	}

	run.Kind = domain.RunKind(kind)
	run.Status = domain.RunPhase(status)
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return &run, nil
}
